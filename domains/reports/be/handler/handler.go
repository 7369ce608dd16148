// Package handler exposes the billing dashboard over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hourledger/hourledger/domains/reports/be/service"
	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/httpapi"
	platformlogging "github.com/hourledger/hourledger/platform/go/logging"
)

const dateLayout = "2006-01-02"

// Handler serves the dashboard aggregation endpoint.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("reports service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the reports router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/dashboard", h.dashboard)
	return r
}

type clientRowResponse struct {
	ClientID           uuid.UUID `json:"clientId"`
	ClientName         string    `json:"clientName"`
	Hours              float64   `json:"hours"`
	TotalBilling       float64   `json:"totalBilling"`
	TotalCost          float64   `json:"totalCost"`
	AverageBillingRate float64   `json:"averageBillingRate"`
	AverageCost        float64   `json:"averageCost"`
	Profit             float64   `json:"profit"`
	MissingRate        bool      `json:"missingRate"`
}

type reportEntryResponse struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"userId"`
	WorkstreamID    uuid.UUID `json:"workstreamId"`
	Date            string    `json:"date"`
	DurationMinutes int       `json:"durationMinutes"`
	Billable        bool      `json:"billable"`
	Notes           string    `json:"notes,omitempty"`
}

type clientGroupResponse struct {
	clientRowResponse
	Entries []reportEntryResponse `json:"entries"`
}

type dashboardResponse struct {
	DateFrom string                `json:"dateFrom"`
	DateTo   string                `json:"dateTo"`
	Clients  []clientGroupResponse `json:"clients"`
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized("principal is required"))
		return
	}

	q := r.URL.Query()
	query := service.Query{
		Period:                 q.Get("period"),
		IncludeInactiveClients: q.Get("includeInactiveClients") == "true",
	}

	var parseErr error
	query.ClientIDs, parseErr = parseUUIDList(q["clientId"])
	if parseErr == nil {
		query.UserIDs, parseErr = parseUUIDList(q["userId"])
	}
	if parseErr == nil {
		query.WorkstreamIDs, parseErr = parseUUIDList(q["workstreamId"])
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
		query.DateFrom = &date
	}
	if to := q.Get("dateTo"); to != "" {
		date, err := time.Parse(dateLayout, to)
		if err != nil {
			httpapi.WriteProblem(w, httpapi.Validation("dateTo must be YYYY-MM-DD", nil))
			return
		}
		query.DateTo = &date
	}
	if billable := q.Get("billable"); billable != "" {
		val := billable == "true"
		query.Billable = &val
	}

	dash, err := h.svc.Dashboard(r.Context(), p, query)
	if err != nil {
		h.writeError(r.Context(), w, err, "dashboard")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, toDashboardResponse(dash))
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
	default:
		logger, _ := platformlogging.FromContext(ctx)
		if logger == nil {
			logger = h.logger
		}
		logger.Error("dashboard query failed", zap.String("operation", op), zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}

func toDashboardResponse(dash service.Dashboard) dashboardResponse {
	out := dashboardResponse{
		DateFrom: dash.From.Format(dateLayout),
		DateTo:   dash.To.Format(dateLayout),
		Clients:  make([]clientGroupResponse, 0, len(dash.Clients)),
	}
	for _, group := range dash.Clients {
		entries := make([]reportEntryResponse, 0, len(group.Entries))
		for _, entry := range group.Entries {
			entries = append(entries, reportEntryResponse{
				ID:              entry.ID,
				UserID:          entry.UserID,
				WorkstreamID:    entry.WorkstreamID,
				Date:            entry.Date.Format(dateLayout),
				DurationMinutes: entry.DurationMinutes,
				Billable:        entry.Billable,
				Notes:           entry.Notes,
			})
		}
		out.Clients = append(out.Clients, clientGroupResponse{
			clientRowResponse: clientRowResponse{
				ClientID:           group.Row.ClientID,
				ClientName:         group.Row.ClientName,
				Hours:              group.Row.Hours,
				TotalBilling:       group.Row.TotalBilling,
				TotalCost:          group.Row.TotalCost,
				AverageBillingRate: group.Row.AverageBillingRate,
				AverageCost:        group.Row.AverageCost,
				Profit:             group.Row.Profit,
				MissingRate:        group.Row.MissingRate,
			},
			Entries: entries,
		})
	}
	return out
}
