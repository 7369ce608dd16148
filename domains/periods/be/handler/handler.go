package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hourledger/hourledger/domains/periods/be/service"
	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/httpapi"
	platformlogging "github.com/hourledger/hourledger/platform/go/logging"
)

// Handler exposes period lock administration over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("periods service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the period lock router. Every route requires an elevated role.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireElevated())
	r.Get("/", h.list)
	r.Post("/lock", h.lock)
	r.Post("/{lockID}/unlock", h.unlock)
	return r
}

type lockRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type lockResponse struct {
	ID         uuid.UUID  `json:"id"`
	Year       int        `json:"year"`
	Month      int        `json:"month"`
	Active     bool       `json:"active"`
	LockedAt   time.Time  `json:"lockedAt"`
	LockedBy   uuid.UUID  `json:"lockedBy"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
	UnlockedBy *uuid.UUID `json:"unlockedBy,omitempty"`
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	var req lockRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("invalid request body", nil))
		return
	}

	lock, err := h.svc.Lock(r.Context(), p.Tenant(), req.Year, time.Month(req.Month), p.UserID)
	if err != nil {
		h.writeError(r.Context(), w, err, "lockPeriod")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toLockResponse(lock))
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	lockID, err := uuid.Parse(chi.URLParam(r, "lockID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("lock id must be a UUID", nil))
		return
	}

	lock, err := h.svc.Unlock(r.Context(), p.Tenant(), lockID, p.UserID)
	if err != nil {
		h.writeError(r.Context(), w, err, "unlockPeriod")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toLockResponse(lock))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	locks, err := h.svc.List(r.Context(), p.Tenant())
	if err != nil {
		h.writeError(r.Context(), w, err, "listPeriods")
		return
	}

	items := make([]lockResponse, 0, len(locks))
	for _, lock := range locks {
		items = append(items, toLockResponse(lock))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		httpapi.WriteProblem(w, httpapi.Validation(validation.Reason, nil))
	case errors.Is(err, service.ErrNotFound):
		httpapi.WriteProblem(w, httpapi.NotFound("locked period not found"))
	default:
		logger, _ := platformlogging.FromContext(ctx)
		if logger == nil {
			logger = h.logger
		}
		logger.Error("period operation failed", zap.String("operation", op), zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}

func toLockResponse(lock service.Lock) lockResponse {
	return lockResponse{
		ID:         lock.ID,
		Year:       lock.Year,
		Month:      int(lock.Month),
		Active:     lock.Active(),
		LockedAt:   lock.LockedAt,
		LockedBy:   lock.LockedBy,
		UnlockedAt: lock.UnlockedAt,
		UnlockedBy: lock.UnlockedBy,
	}
}
