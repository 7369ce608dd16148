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
	"github.com/hourledger/hourledger/domains/timers/be/service"
	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/httpapi"
	platformlogging "github.com/hourledger/hourledger/platform/go/logging"
)

// Handler exposes the timer over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("timers service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the timer router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.current)
	r.Post("/start", h.start)
	r.Post("/stop", h.stop)
	r.Post("/discard", h.discard)
	return r
}

type sessionResponse struct {
	ID           uuid.UUID  `json:"id"`
	ClientID     *uuid.UUID `json:"clientId,omitempty"`
	WorkstreamID *uuid.UUID `json:"workstreamId,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
}

type startRequest struct {
	ClientID     *uuid.UUID `json:"clientId"`
	WorkstreamID *uuid.UUID `json:"workstreamId"`
	Notes        string     `json:"notes"`
}

type stopRequest struct {
	ClientID     *uuid.UUID `json:"clientId"`
	WorkstreamID *uuid.UUID `json:"workstreamId"`
	Notes        *string    `json:"notes"`
}

type stoppedResponse struct {
	EntryID         uuid.UUID `json:"entryId"`
	ClientID        uuid.UUID `json:"clientId"`
	WorkstreamID    uuid.UUID `json:"workstreamId"`
	Date            string    `json:"date"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
	DurationMinutes int       `json:"durationMinutes"`
	Billable        bool      `json:"billable"`
	Notes           string    `json:"notes,omitempty"`
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	session, running, err := h.svc.Current(r.Context(), p)
	if err != nil {
		h.writeError(r.Context(), w, err, "currentTimer")
		return
	}
	if !running {
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"running": false})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"running": true, "session": toSessionResponse(session)})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	req := startRequest{}
	if r.ContentLength != 0 {
		if err := httpapi.DecodeJSON(r, &req); err != nil {
			httpapi.WriteProblem(w, httpapi.Validation("invalid request body", nil))
			return
		}
	}

	session, err := h.svc.Start(r.Context(), p, service.StartInput{
		ClientID:     req.ClientID,
		WorkstreamID: req.WorkstreamID,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeError(r.Context(), w, err, "startTimer")
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	req := stopRequest{}
	if r.ContentLength != 0 {
		if err := httpapi.DecodeJSON(r, &req); err != nil {
			httpapi.WriteProblem(w, httpapi.Validation("invalid request body", nil))
			return
		}
	}

	entry, err := h.svc.Stop(r.Context(), p, service.StopInput{
		ClientID:     req.ClientID,
		WorkstreamID: req.WorkstreamID,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeError(r.Context(), w, err, "stopTimer")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, stoppedResponse{
		EntryID:         entry.EntryID,
		ClientID:        entry.ClientID,
		WorkstreamID:    entry.WorkstreamID,
		Date:            entry.Date.Format("2006-01-02"),
		StartedAt:       entry.StartedAt,
		EndedAt:         entry.EndedAt,
		DurationMinutes: entry.DurationMinutes,
		Billable:        entry.Billable,
		Notes:           entry.Notes,
	})
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	if err := h.svc.Discard(r.Context(), p); err != nil {
		h.writeError(r.Context(), w, err, "discardTimer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		httpapi.WriteProblem(w, httpapi.Validation(validation.Reason, nil))
	case errors.Is(err, service.ErrNoActiveTimer):
		httpapi.WriteProblem(w, httpapi.NotFound("no active timer"))
	case errors.Is(err, service.ErrConflictingTimer):
		httpapi.WriteProblem(w, httpapi.ConflictingTimer("only one active timer allowed"))
	case errors.Is(err, service.ErrNotFound):
		httpapi.WriteProblem(w, httpapi.NotFound("client or workstream not found"))
	case errors.Is(err, service.ErrAccessDenied):
		httpapi.WriteProblem(w, httpapi.AccessDenied("client outside your access scope"))
	case errors.Is(err, periodsvc.ErrPeriodLocked):
		httpapi.WriteProblem(w, httpapi.PeriodLocked(err.Error()))
	default:
		logger, _ := platformlogging.FromContext(ctx)
		if logger == nil {
			logger = h.logger
		}
		logger.Error("timer operation failed", zap.String("operation", op), zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}

func toSessionResponse(session service.Session) sessionResponse {
	return sessionResponse{
		ID:           session.ID,
		ClientID:     session.ClientID,
		WorkstreamID: session.WorkstreamID,
		Notes:        session.Notes,
		StartedAt:    session.StartedAt,
	}
}
