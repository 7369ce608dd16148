// Package service implements client and workstream management: scoped
// listings that hide the internal firm-work client, admin creation, and the
// lookups other domains use to validate entry assignments.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/persistence"
	"github.com/hourledger/hourledger/platform/go/scope"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("client not found")
	ErrAccessDenied = errors.New("client outside the caller's access scope")
	ErrCodeTaken    = errors.New("client code already exists")
)

// ValidationError is returned when client inputs are malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid client input: " + e.Reason
}

// Client is the domain model for a billable client.
type Client struct {
	ID                 uuid.UUID
	Name               string
	Status             string
	Code               *string
	DefaultBillingRate *float64
	Internal           bool
}

// Workstream is the domain model for a client workstream.
type Workstream struct {
	ID             uuid.UUID
	ClientID       uuid.UUID
	Name           string
	Status         string
	BillingType    string
	BillingRate    *float64
	FixedFeeAmount *float64
}

// CreateClientInput registers a new client.
type CreateClientInput struct {
	Name               string
	Code               *string
	DefaultBillingRate *float64
}

// CreateWorkstreamInput registers a new workstream under a client.
type CreateWorkstreamInput struct {
	ClientID       uuid.UUID
	Name           string
	BillingType    string
	BillingRate    *float64
	FixedFeeAmount *float64
}

// ScopeResolver yields the caller's client access scope. Implemented by the
// tenants service over the settings document.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, tenantID, userID uuid.UUID, role auth.Role) (scope.Scope, error)
}

// Repository abstracts persistence.
type Repository interface {
	CreateClient(ctx context.Context, rec persistence.ClientRecord) (persistence.ClientRecord, error)
	GetClient(ctx context.Context, tenantID, clientID uuid.UUID) (persistence.ClientRecord, error)
	GetInternalClient(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error)
	ListClients(ctx context.Context, tenantID uuid.UUID, params persistence.ListClientsParams) ([]persistence.ClientRecord, error)
	CreateWorkstream(ctx context.Context, rec persistence.WorkstreamRecord) (persistence.WorkstreamRecord, error)
	GetWorkstream(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error)
	ListWorkstreams(ctx context.Context, tenantID, clientID uuid.UUID, includeArchived bool) ([]persistence.WorkstreamRecord, error)
}

// Service provides client and workstream operations.
type Service struct {
	repo   Repository
	scopes ScopeResolver
}

// New constructs a Service with required dependencies.
func New(repo Repository, scopes ScopeResolver) *Service {
	if repo == nil {
		panic("clients repo is required")
	}
	if scopes == nil {
		panic("scope resolver is required")
	}
	return &Service{repo: repo, scopes: scopes}
}

// List returns the clients the caller may see. The internal firm-work client
// never appears; restricted members see only their allow-list.
func (s *Service) List(ctx context.Context, caller *auth.Principal, includeInactive bool) ([]Client, error) {
	sc, err := s.scopes.ResolveScope(ctx, caller.Tenant(), caller.UserID, caller.Role)
	if err != nil {
		return nil, err
	}

	recs, err := s.repo.ListClients(ctx, caller.Tenant(), persistence.ListClientsParams{
		IncludeInactive: includeInactive,
	})
	if err != nil {
		return nil, err
	}

	clients := make([]Client, 0, len(recs))
	for _, rec := range recs {
		if !sc.AllowsClient(rec.ClientID, rec.IsInternal()) {
			continue
		}
		clients = append(clients, toClient(rec))
	}
	return clients, nil
}

// Get returns a single client the caller may see. The internal client is
// reachable here so the timer UI can label internal sessions.
func (s *Service) Get(ctx context.Context, caller *auth.Principal, clientID uuid.UUID) (Client, error) {
	sc, err := s.scopes.ResolveScope(ctx, caller.Tenant(), caller.UserID, caller.Role)
	if err != nil {
		return Client{}, err
	}

	rec, err := s.repo.GetClient(ctx, caller.Tenant(), clientID)
	if err != nil {
		return Client{}, mapNotFound(err)
	}
	if !sc.AllowsClient(rec.ClientID, rec.IsInternal()) {
		return Client{}, ErrAccessDenied
	}
	return toClient(rec), nil
}

// Internal returns the tenant's reserved firm-work client.
func (s *Service) Internal(ctx context.Context, tenantID uuid.UUID) (Client, error) {
	rec, err := s.repo.GetInternalClient(ctx, tenantID)
	if err != nil {
		return Client{}, mapNotFound(err)
	}
	return toClient(rec), nil
}

// CreateClient registers a new billable client. The reserved internal code is
// rejected; internal clients are created by tenant provisioning only.
func (s *Service) CreateClient(ctx context.Context, tenantID uuid.UUID, input CreateClientInput) (Client, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Client{}, &ValidationError{Reason: "name is required"}
	}
	if input.Code != nil && *input.Code == persistence.InternalClientCode {
		return Client{}, &ValidationError{Reason: "client code is reserved"}
	}
	if input.DefaultBillingRate != nil && *input.DefaultBillingRate < 0 {
		return Client{}, &ValidationError{Reason: "billing rate must not be negative"}
	}

	rec, err := s.repo.CreateClient(ctx, persistence.ClientRecord{
		ClientID:           uuid.New(),
		TenantID:           tenantID,
		Name:               input.Name,
		Status:             persistence.ClientStatusActive,
		Code:               input.Code,
		DefaultBillingRate: input.DefaultBillingRate,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrUniqueViolation) {
			return Client{}, ErrCodeTaken
		}
		return Client{}, err
	}
	return toClient(rec), nil
}

// EnsureInternalClient creates the tenant's reserved firm-work client if it
// does not exist yet. Called during tenant bootstrap.
func (s *Service) EnsureInternalClient(ctx context.Context, tenantID uuid.UUID) (Client, error) {
	existing, err := s.repo.GetInternalClient(ctx, tenantID)
	if err == nil {
		return toClient(existing), nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return Client{}, err
	}

	code := persistence.InternalClientCode
	rec, err := s.repo.CreateClient(ctx, persistence.ClientRecord{
		ClientID: uuid.New(),
		TenantID: tenantID,
		Name:     "Internal",
		Status:   persistence.ClientStatusActive,
		Code:     &code,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrUniqueViolation) {
			// Lost the race; the row exists now.
			return s.Internal(ctx, tenantID)
		}
		return Client{}, err
	}
	return toClient(rec), nil
}

// ListWorkstreams returns a client's workstreams, scope checked.
func (s *Service) ListWorkstreams(ctx context.Context, caller *auth.Principal, clientID uuid.UUID, includeArchived bool) ([]Workstream, error) {
	if _, err := s.Get(ctx, caller, clientID); err != nil {
		return nil, err
	}

	recs, err := s.repo.ListWorkstreams(ctx, caller.Tenant(), clientID, includeArchived)
	if err != nil {
		return nil, err
	}
	workstreams := make([]Workstream, 0, len(recs))
	for _, rec := range recs {
		workstreams = append(workstreams, toWorkstream(rec))
	}
	return workstreams, nil
}

// CreateWorkstream registers a workstream under an existing active client.
func (s *Service) CreateWorkstream(ctx context.Context, tenantID uuid.UUID, input CreateWorkstreamInput) (Workstream, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Workstream{}, &ValidationError{Reason: "name is required"}
	}
	switch input.BillingType {
	case persistence.BillingTypeHourly, persistence.BillingTypeFixed:
	default:
		return Workstream{}, &ValidationError{Reason: "billing type must be hourly or fixed"}
	}
	if input.BillingRate != nil && *input.BillingRate < 0 {
		return Workstream{}, &ValidationError{Reason: "billing rate must not be negative"}
	}
	if input.FixedFeeAmount != nil && *input.FixedFeeAmount < 0 {
		return Workstream{}, &ValidationError{Reason: "fixed fee must not be negative"}
	}

	client, err := s.repo.GetClient(ctx, tenantID, input.ClientID)
	if err != nil {
		return Workstream{}, mapNotFound(err)
	}
	if !client.IsActive() {
		return Workstream{}, &ValidationError{Reason: "client is inactive"}
	}

	rec, err := s.repo.CreateWorkstream(ctx, persistence.WorkstreamRecord{
		WorkstreamID:   uuid.New(),
		TenantID:       tenantID,
		ClientID:       input.ClientID,
		Name:           input.Name,
		Status:         persistence.WorkstreamStatusActive,
		BillingType:    input.BillingType,
		BillingRate:    input.BillingRate,
		FixedFeeAmount: input.FixedFeeAmount,
	})
	if err != nil {
		return Workstream{}, err
	}
	return toWorkstream(rec), nil
}

func toClient(rec persistence.ClientRecord) Client {
	return Client{
		ID:                 rec.ClientID,
		Name:               rec.Name,
		Status:             rec.Status,
		Code:               rec.Code,
		DefaultBillingRate: rec.DefaultBillingRate,
		Internal:           rec.IsInternal(),
	}
}

func toWorkstream(rec persistence.WorkstreamRecord) Workstream {
	return Workstream{
		ID:             rec.WorkstreamID,
		ClientID:       rec.ClientID,
		Name:           rec.Name,
		Status:         rec.Status,
		BillingType:    rec.BillingType,
		BillingRate:    rec.BillingRate,
		FixedFeeAmount: rec.FixedFeeAmount,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
