package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	periodsvc "github.com/hourledger/hourledger/domains/periods/be/service"
	"github.com/hourledger/hourledger/domains/timeentries/be/service"
	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/httpapi"
	platformlogging "github.com/hourledger/hourledger/platform/go/logging"
)

const dateLayout = "2006-01-02"

// Handler exposes the time entry ledger over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("entries service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the ledger router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Patch("/bulk", h.bulkUpdate)
	r.Delete("/{entryID}", h.del)
	return r
}

type entryResponse struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"userId"`
	ClientID        uuid.UUID  `json:"clientId"`
	WorkstreamID    uuid.UUID  `json:"workstreamId"`
	Date            string     `json:"date"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	Billable        bool       `json:"billable"`
	Notes           string     `json:"notes,omitempty"`
}

type createRequest struct {
	ClientID        uuid.UUID  `json:"clientId"`
	WorkstreamID    uuid.UUID  `json:"workstreamId"`
	Date            string     `json:"date"`
	StartedAt       *time.Time `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt"`
	DurationMinutes *int       `json:"durationMinutes"`
	Duration        string     `json:"duration"`
	Billable        *bool      `json:"billable"`
	Notes           string     `json:"notes"`
}

type bulkUpdateRequest struct {
	EntryIDs []uuid.UUID `json:"entryIds"`
	Patch    patchBody   `json:"patch"`
}

type patchBody struct {
	ClientID        *uuid.UUID `json:"clientId"`
	WorkstreamID    *uuid.UUID `json:"workstreamId"`
	Date            *string    `json:"date"`
	StartedAt       *time.Time `json:"startedAt"`
	ClearStartedAt  bool       `json:"clearStartedAt"`
	EndedAt         *time.Time `json:"endedAt"`
	ClearEndedAt    bool       `json:"clearEndedAt"`
	DurationMinutes *int       `json:"durationMinutes"`
	Billable        *bool      `json:"billable"`
	Notes           *string    `json:"notes"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	var req createRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("invalid request body", nil))
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("date must be YYYY-MM-DD", nil))
		return
	}

	entry, err := h.svc.Create(r.Context(), p, service.CreateInput{
		ClientID:        req.ClientID,
		WorkstreamID:    req.WorkstreamID,
		Date:            date,
		StartedAt:       req.StartedAt,
		EndedAt:         req.EndedAt,
		DurationMinutes: req.DurationMinutes,
		Duration:        req.Duration,
		Billable:        req.Billable,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeError(r.Context(), w, err, "createEntry")
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	var req bulkUpdateRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("invalid request body", nil))
		return
	}

	patch := service.BulkPatch{
		ClientID:        req.Patch.ClientID,
		WorkstreamID:    req.Patch.WorkstreamID,
		StartedAt:       req.Patch.StartedAt,
		ClearStartedAt:  req.Patch.ClearStartedAt,
		EndedAt:         req.Patch.EndedAt,
		ClearEndedAt:    req.Patch.ClearEndedAt,
		DurationMinutes: req.Patch.DurationMinutes,
		Billable:        req.Patch.Billable,
		Notes:           req.Patch.Notes,
	}
	if req.Patch.Date != nil {
		date, err := time.Parse(dateLayout, *req.Patch.Date)
		if err != nil {
			httpapi.WriteProblem(w, httpapi.Validation("date must be YYYY-MM-DD", nil))
			return
		}
		patch.Date = &date
	}

	entries, err := h.svc.BulkUpdate(r.Context(), p, req.EntryIDs, patch)
	if err != nil {
		h.writeError(r.Context(), w, err, "bulkUpdateEntries")
		return
	}

	items := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toEntryResponse(entry))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) del(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("entry id must be a UUID", nil))
		return
	}

	if err = h.svc.Delete(r.Context(), p, entryID); err != nil {
		h.writeError(r.Context(), w, err, "deleteEntry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	input := service.ListInput{}
	q := r.URL.Query()

	var parseErr error
	input.UserIDs, parseErr = parseUUIDList(q["userId"])
	if parseErr == nil {
		input.ClientIDs, parseErr = parseUUIDList(q["clientId"])
	}
	if parseErr == nil {
		input.WorkstreamIDs, parseErr = parseUUIDList(q["workstreamId"])
	}
	if parseErr != nil {
		httpapi.WriteProblem(w, httpapi.Validation("filter ids must be UUIDs", nil))
		return
	}

	if from := q.Get("dateFrom"); from != "" {
		date, err := time.Parse(dateLayout, from)
		if err != nil {
			httpapi.WriteProblem(w, httpapi.Validation("dateFrom must be YYYY-MM-DD", nil))
			return
		}
		input.DateFrom = &date
	}
	if to := q.Get("dateTo"); to != "" {
		date, err := time.Parse(dateLayout, to)
		if err != nil {
			httpapi.WriteProblem(w, httpapi.Validation("dateTo must be YYYY-MM-DD", nil))
			return
		}
		input.DateTo = &date
	}
	if billable := q.Get("billable"); billable != "" {
		val := billable == "true"
		input.Billable = &val
	}

	entries, err := h.svc.List(r.Context(), p, input)
	if err != nil {
		h.writeError(r.Context(), w, err, "listEntries")
		return
	}

	items := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toEntryResponse(entry))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseUUIDList(values []string) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		httpapi.WriteProblem(w, httpapi.Validation(validation.Reason, nil))
	case errors.Is(err, service.ErrNotFound):
		httpapi.WriteProblem(w, httpapi.NotFound("time entry, client, or workstream not found"))
	case errors.Is(err, service.ErrForbidden):
		httpapi.WriteProblem(w, httpapi.Forbidden("cannot modify entries owned by other users"))
	case errors.Is(err, service.ErrAccessDenied):
		httpapi.WriteProblem(w, httpapi.AccessDenied("client outside your access scope"))
	case errors.Is(err, periodsvc.ErrPeriodLocked):
		httpapi.WriteProblem(w, httpapi.PeriodLocked(err.Error()))
	default:
		logger, _ := platformlogging.FromContext(ctx)
		if logger == nil {
			logger = h.logger
		}
		logger.Error("entry operation failed", zap.String("operation", op), zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}

func toEntryResponse(entry service.Entry) entryResponse {
	return entryResponse{
		ID:              entry.ID,
		UserID:          entry.UserID,
		ClientID:        entry.ClientID,
		WorkstreamID:    entry.WorkstreamID,
		Date:            entry.Date.Format(dateLayout),
		StartedAt:       entry.StartedAt,
		EndedAt:         entry.EndedAt,
		DurationMinutes: entry.DurationMinutes,
		Billable:        entry.Billable,
		Notes:           entry.Notes,
	}
}
