package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hourledger/hourledger/domains/tenants/be/service"
	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/httpapi"
	platformlogging "github.com/hourledger/hourledger/platform/go/logging"
)

// Handler exposes the tenant profile and access-scope administration.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the tenant router. The profile is readable by every tenant
// user; access-scope administration and usage require an elevated role.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.get)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireElevated())
		r.Get("/usage", h.usage)
		r.Get("/access-scopes/{userID}", h.getAccessScope)
		r.Put("/access-scopes/{userID}", h.putAccessScope)
		r.Delete("/access-scopes/{userID}", h.deleteAccessScope)
	})
	return r
}

type tenantResponse struct {
	ID                 uuid.UUID `json:"id"`
	Slug               string    `json:"slug"`
	DisplayName        string    `json:"displayName"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type accessScopeResponse struct {
	UserID    uuid.UUID   `json:"userId"`
	Explicit  bool        `json:"explicit"`
	ClientIDs []uuid.UUID `json:"clientIds"`
}

type putAccessScopeRequest struct {
	ClientIDs []uuid.UUID `json:"clientIds"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	tenant, err := h.svc.Get(r.Context(), p.Tenant())
	if err != nil {
		h.writeError(r.Context(), w, err, "getTenant")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, tenantResponse{
		ID:                 tenant.ID,
		Slug:               tenant.Slug,
		DisplayName:        tenant.DisplayName,
		SubscriptionStatus: string(tenant.SubscriptionStatus),
		CreatedAt:          tenant.CreatedAt,
		UpdatedAt:          tenant.UpdatedAt,
	})
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	counts, err := h.svc.Usage(r.Context(), p.Tenant())
	if err != nil {
		h.writeError(r.Context(), w, err, "getUsage")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]int{
		"activeUsers":   counts.ActiveUsers,
		"activeClients": counts.ActiveClients,
	})
}

func (h *Handler) getAccessScope(w http.ResponseWriter, r *http.Request) {
	p, userID, ok := h.scopeTarget(w, r)
	if !ok {
		return
	}

	entry, err := h.svc.AccessScope(r.Context(), p.Tenant(), userID)
	if err != nil {
		h.writeError(r.Context(), w, err, "getAccessScope")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAccessScopeResponse(entry))
}

func (h *Handler) putAccessScope(w http.ResponseWriter, r *http.Request) {
	p, userID, ok := h.scopeTarget(w, r)
	if !ok {
		return
	}

	var req putAccessScopeRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("invalid request body", nil))
		return
	}
	if req.ClientIDs == nil {
		httpapi.WriteProblem(w, httpapi.Validation("clientIds is required; use DELETE to remove the entry", nil))
		return
	}

	if err := h.svc.SetAccessScope(r.Context(), p.Tenant(), userID, req.ClientIDs); err != nil {
		h.writeError(r.Context(), w, err, "putAccessScope")
		return
	}

	entry, err := h.svc.AccessScope(r.Context(), p.Tenant(), userID)
	if err != nil {
		h.writeError(r.Context(), w, err, "putAccessScope")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAccessScopeResponse(entry))
}

func (h *Handler) deleteAccessScope(w http.ResponseWriter, r *http.Request) {
	p, userID, ok := h.scopeTarget(w, r)
	if !ok {
		return
	}

	if err := h.svc.ClearAccessScope(r.Context(), p.Tenant(), userID); err != nil {
		h.writeError(r.Context(), w, err, "deleteAccessScope")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) scopeTarget(w http.ResponseWriter, r *http.Request) (*auth.Principal, uuid.UUID, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("user id must be a UUID", nil))
		return nil, uuid.Nil, false
	}
	return p, userID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		httpapi.WriteProblem(w, httpapi.Validation(validation.Reason, nil))
	case errors.Is(err, service.ErrNotFound):
		httpapi.WriteProblem(w, httpapi.NotFound("tenant not found"))
	default:
		logger, _ := platformlogging.FromContext(ctx)
		if logger == nil {
			logger = h.logger
		}
		logger.Error("tenant operation failed", zap.String("operation", op), zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}

func toAccessScopeResponse(entry service.AccessEntry) accessScopeResponse {
	ids := entry.ClientIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return accessScopeResponse{UserID: entry.UserID, Explicit: entry.Explicit, ClientIDs: ids}
}
