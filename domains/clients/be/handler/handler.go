package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hourledger/hourledger/domains/clients/be/service"
	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/httpapi"
	platformlogging "github.com/hourledger/hourledger/platform/go/logging"
)

// Handler exposes client and workstream management over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("clients service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the clients router. Reads are scope filtered per caller;
// creation requires an elevated role.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{clientID}", h.get)
	r.Get("/{clientID}/workstreams", h.listWorkstreams)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireElevated())
		r.Post("/", h.createClient)
		r.Post("/{clientID}/workstreams", h.createWorkstream)
	})
	return r
}

type clientResponse struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Status             string    `json:"status"`
	Code               *string   `json:"code,omitempty"`
	DefaultBillingRate *float64  `json:"defaultBillingRate,omitempty"`
	Internal           bool      `json:"internal"`
}

type workstreamResponse struct {
	ID             uuid.UUID `json:"id"`
	ClientID       uuid.UUID `json:"clientId"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	BillingType    string    `json:"billingType"`
	BillingRate    *float64  `json:"billingRate,omitempty"`
	FixedFeeAmount *float64  `json:"fixedFeeAmount,omitempty"`
}

type createClientRequest struct {
	Name               string   `json:"name"`
	Code               *string  `json:"code"`
	DefaultBillingRate *float64 `json:"defaultBillingRate"`
}

type createWorkstreamRequest struct {
	Name           string   `json:"name"`
	BillingType    string   `json:"billingType"`
	BillingRate    *float64 `json:"billingRate"`
	FixedFeeAmount *float64 `json:"fixedFeeAmount"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	includeInactive := r.URL.Query().Get("includeInactive") == "true"
	clients, err := h.svc.List(r.Context(), p, includeInactive)
	if err != nil {
		h.writeError(r.Context(), w, err, "listClients")
		return
	}

	items := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		items = append(items, toClientResponse(c))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, clientID, ok := h.target(w, r)
	if !ok {
		return
	}

	c, err := h.svc.Get(r.Context(), p, clientID)
	if err != nil {
		h.writeError(r.Context(), w, err, "getClient")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toClientResponse(c))
}

func (h *Handler) listWorkstreams(w http.ResponseWriter, r *http.Request) {
	p, clientID, ok := h.target(w, r)
	if !ok {
		return
	}

	includeArchived := r.URL.Query().Get("includeArchived") == "true"
	workstreams, err := h.svc.ListWorkstreams(r.Context(), p, clientID, includeArchived)
	if err != nil {
		h.writeError(r.Context(), w, err, "listWorkstreams")
		return
	}

	items := make([]workstreamResponse, 0, len(workstreams))
	for _, ws := range workstreams {
		items = append(items, toWorkstreamResponse(ws))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	var req createClientRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("invalid request body", nil))
		return
	}

	c, err := h.svc.CreateClient(r.Context(), p.Tenant(), service.CreateClientInput{
		Name:               req.Name,
		Code:               req.Code,
		DefaultBillingRate: req.DefaultBillingRate,
	})
	if err != nil {
		h.writeError(r.Context(), w, err, "createClient")
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toClientResponse(c))
}

func (h *Handler) createWorkstream(w http.ResponseWriter, r *http.Request) {
	p, clientID, ok := h.target(w, r)
	if !ok {
		return
	}

	var req createWorkstreamRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("invalid request body", nil))
		return
	}

	ws, err := h.svc.CreateWorkstream(r.Context(), p.Tenant(), service.CreateWorkstreamInput{
		ClientID:       clientID,
		Name:           req.Name,
		BillingType:    req.BillingType,
		BillingRate:    req.BillingRate,
		FixedFeeAmount: req.FixedFeeAmount,
	})
	if err != nil {
		h.writeError(r.Context(), w, err, "createWorkstream")
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toWorkstreamResponse(ws))
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (*auth.Principal, uuid.UUID, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return nil, uuid.Nil, false
	}
	clientID, err := uuid.Parse(chi.URLParam(r, "clientID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("client id must be a UUID", nil))
		return nil, uuid.Nil, false
	}
	return p, clientID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		httpapi.WriteProblem(w, httpapi.Validation(validation.Reason, nil))
	case errors.Is(err, service.ErrNotFound):
		httpapi.WriteProblem(w, httpapi.NotFound("client not found"))
	case errors.Is(err, service.ErrAccessDenied):
		httpapi.WriteProblem(w, httpapi.AccessDenied("client outside your access scope"))
	case errors.Is(err, service.ErrCodeTaken):
		httpapi.WriteProblem(w, httpapi.Validation("client code already exists", nil))
	default:
		logger, _ := platformlogging.FromContext(ctx)
		if logger == nil {
			logger = h.logger
		}
		logger.Error("client operation failed", zap.String("operation", op), zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}

func toClientResponse(c service.Client) clientResponse {
	return clientResponse{
		ID:                 c.ID,
		Name:               c.Name,
		Status:             c.Status,
		Code:               c.Code,
		DefaultBillingRate: c.DefaultBillingRate,
		Internal:           c.Internal,
	}
}

func toWorkstreamResponse(ws service.Workstream) workstreamResponse {
	return workstreamResponse{
		ID:             ws.ID,
		ClientID:       ws.ClientID,
		Name:           ws.Name,
		Status:         ws.Status,
		BillingType:    ws.BillingType,
		BillingRate:    ws.BillingRate,
		FixedFeeAmount: ws.FixedFeeAmount,
	}
}
