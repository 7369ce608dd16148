package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hourledger/hourledger/domains/users/be/service"
	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/httpapi"
	platformlogging "github.com/hourledger/hourledger/platform/go/logging"
)

// Handler exposes team administration over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the users router. Listing and self-reads are open to every
// tenant user; create and patch require an elevated role.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/me", h.me)
	r.Get("/{userID}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireElevated())
		r.Post("/", h.create)
		r.Patch("/{userID}", h.update)
	})
	return r
}

type userResponse struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	FullName           string    `json:"fullName"`
	Role               string    `json:"role"`
	IsActive           bool      `json:"isActive"`
	CostRate           *float64  `json:"costRate,omitempty"`
	DefaultBillingRate *float64  `json:"defaultBillingRate,omitempty"`
}

type createRequest struct {
	Subject            string   `json:"subject"`
	Email              string   `json:"email"`
	FullName           string   `json:"fullName"`
	Role               string   `json:"role"`
	CostRate           *float64 `json:"costRate"`
	DefaultBillingRate *float64 `json:"defaultBillingRate"`
}

type updateRequest struct {
	FullName           *string  `json:"fullName"`
	Role               *string  `json:"role"`
	IsActive           *bool    `json:"isActive"`
	CostRate           *float64 `json:"costRate"`
	ClearCostRate      bool     `json:"clearCostRate"`
	DefaultBillingRate *float64 `json:"defaultBillingRate"`
	ClearBillingRate   bool     `json:"clearDefaultBillingRate"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	activeOnly := r.URL.Query().Get("includeInactive") != "true"
	users, err := h.svc.List(r.Context(), p.Tenant(), activeOnly)
	if err != nil {
		h.writeError(r.Context(), w, err, "listUsers")
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toUserResponse(u, p.Role.Elevated() || u.ID == p.UserID))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	u, err := h.svc.Get(r.Context(), p, p.UserID)
	if err != nil {
		h.writeError(r.Context(), w, err, "getSelf")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toUserResponse(u, true))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, userID, ok := h.target(w, r)
	if !ok {
		return
	}

	u, err := h.svc.Get(r.Context(), p, userID)
	if err != nil {
		h.writeError(r.Context(), w, err, "getUser")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toUserResponse(u, p.Role.Elevated() || u.ID == p.UserID))
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

	u, err := h.svc.Create(r.Context(), service.CreateInput{
		TenantID:           p.Tenant(),
		Subject:            req.Subject,
		Email:              req.Email,
		FullName:           req.FullName,
		Role:               auth.RoleFromString(req.Role),
		CostRate:           req.CostRate,
		DefaultBillingRate: req.DefaultBillingRate,
	})
	if err != nil {
		h.writeError(r.Context(), w, err, "createUser")
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toUserResponse(u, true))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, userID, ok := h.target(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("invalid request body", nil))
		return
	}

	input := service.UpdateInput{
		FullName:                req.FullName,
		IsActive:                req.IsActive,
		CostRate:                req.CostRate,
		ClearCostRate:           req.ClearCostRate,
		DefaultBillingRate:      req.DefaultBillingRate,
		ClearDefaultBillingRate: req.ClearBillingRate,
	}
	if req.Role != nil {
		role := auth.Role(*req.Role)
		input.Role = &role
	}

	u, err := h.svc.Update(r.Context(), p, userID, input)
	if err != nil {
		h.writeError(r.Context(), w, err, "updateUser")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toUserResponse(u, true))
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (*auth.Principal, uuid.UUID, bool) {
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
		httpapi.WriteProblem(w, httpapi.NotFound("user not found"))
	case errors.Is(err, service.ErrForbidden):
		httpapi.WriteProblem(w, httpapi.Forbidden("cannot access this user"))
	case errors.Is(err, service.ErrSubjectTaken):
		httpapi.WriteProblem(w, httpapi.Validation("identity subject already provisioned", nil))
	default:
		logger, _ := platformlogging.FromContext(ctx)
		if logger == nil {
			logger = h.logger
		}
		logger.Error("user operation failed", zap.String("operation", op), zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}

// toUserResponse hides rate fields from callers who are neither elevated nor
// the user themselves.
func toUserResponse(u service.User, includeRates bool) userResponse {
	out := userResponse{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     string(u.Role),
		IsActive: u.IsActive,
	}
	if includeRates {
		out.CostRate = u.CostRate
		out.DefaultBillingRate = u.DefaultBillingRate
	}
	return out
}
