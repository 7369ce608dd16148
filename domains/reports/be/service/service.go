// Package service computes the billing dashboard: it reads the time entry
// ledger through the same tenant and access-scope filters as the ledger
// itself, resolves a billing rate per entry, and reduces the set into
// per-client revenue, cost and profit rows.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/metrics"
	"github.com/hourledger/hourledger/platform/go/persistence"
	"github.com/hourledger/hourledger/platform/go/scope"
)

// Named reporting periods resolved against the current UTC date.
const (
	PeriodThisMonth = "thisMonth"
	PeriodLastMonth = "lastMonth"
	PeriodThisYear  = "thisYear"
)

// ValidationError is returned when dashboard filters are malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid dashboard query: " + e.Reason
}

// Query carries the dashboard filters. Either Period or an explicit date
// range may be given, not both; an empty query defaults to the current month.
// UserIDs is honored only for elevated callers.
type Query struct {
	Period        string
	DateFrom      *time.Time
	DateTo        *time.Time
	ClientIDs     []uuid.UUID
	UserIDs       []uuid.UUID
	WorkstreamIDs []uuid.UUID
	Billable      *bool

	IncludeInactiveClients bool
}

// Entry is one ledger row included in the dashboard response.
type Entry struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	WorkstreamID    uuid.UUID
	Date            time.Time
	DurationMinutes int
	Billable        bool
	Notes           string
}

// ClientGroup pairs an aggregate row with the entries behind it.
type ClientGroup struct {
	Row     ClientRow
	Entries []Entry
}

// Dashboard is the full aggregation response.
type Dashboard struct {
	From    time.Time
	To      time.Time
	Clients []ClientGroup
}

// ScopeResolver yields the caller's client access scope.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, tenantID, userID uuid.UUID, role auth.Role) (scope.Scope, error)
}

// Repository abstracts the read path over the ledger and its reference data.
type Repository interface {
	ListEntries(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error)
	GetClients(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.ClientRecord, error)
	GetWorkstreams(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.WorkstreamRecord, error)
	GetUsers(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.UserRecord, error)
	GetInternalClient(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error)
}

// Service provides the dashboard aggregation.
type Service struct {
	repo    Repository
	scopes  ScopeResolver
	metrics metrics.Recorder
	now     func() time.Time
}

// New constructs a Service with required dependencies.
func New(repo Repository, scopes ScopeResolver, recorder metrics.Recorder) *Service {
	if repo == nil {
		panic("reports repo is required")
	}
	if scopes == nil {
		panic("scope resolver is required")
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{repo: repo, scopes: scopes, metrics: recorder, now: time.Now}
}

// Dashboard runs the aggregation query for the caller. Members are always
// confined to their own entries; the employee filter is elevated-only.
func (s *Service) Dashboard(ctx context.Context, caller *auth.Principal, query Query) (Dashboard, error) {
	from, to, err := s.resolveRange(query)
	if err != nil {
		return Dashboard{}, err
	}

	params := persistence.ListEntriesParams{
		TenantID:      caller.Tenant(),
		WorkstreamIDs: query.WorkstreamIDs,
		DateFrom:      &from,
		DateTo:        &to,
		Billable:      query.Billable,
	}
	if caller.Role.Elevated() {
		params.UserIDs = query.UserIDs
	} else {
		params.UserIDs = []uuid.UUID{caller.UserID}
	}

	clientIDs, err := s.scopedClientFilter(ctx, caller, query.ClientIDs)
	if err != nil {
		return Dashboard{}, err
	}
	params.ClientIDs = clientIDs

	entries, err := s.repo.ListEntries(ctx, params)
	if err != nil {
		return Dashboard{}, err
	}

	clients, workstreams, users, err := s.loadReferences(ctx, caller.Tenant(), entries)
	if err != nil {
		return Dashboard{}, err
	}

	if !query.IncludeInactiveClients {
		live := entries[:0]
		for _, entry := range entries {
			if clients[entry.ClientID].IsActive() {
				live = append(live, entry)
			}
		}
		entries = live
	}

	rows := s.aggregate(entries, clients, workstreams, users)

	grouped := make(map[uuid.UUID][]Entry, len(rows))
	for _, entry := range entries {
		grouped[entry.ClientID] = append(grouped[entry.ClientID], Entry{
			ID:              entry.EntryID,
			UserID:          entry.UserID,
			WorkstreamID:    entry.WorkstreamID,
			Date:            entry.EntryDate,
			DurationMinutes: entry.DurationMinutes,
			Billable:        entry.Billable,
			Notes:           entry.Notes,
		})
	}

	out := Dashboard{From: from, To: to, Clients: make([]ClientGroup, 0, len(rows))}
	for _, row := range rows {
		out.Clients = append(out.Clients, ClientGroup{Row: row, Entries: grouped[row.ClientID]})
	}
	return out, nil
}

// resolveRange turns a named period or explicit bounds into inclusive UTC
// calendar-day bounds. No period and no bounds means the current month.
func (s *Service) resolveRange(query Query) (time.Time, time.Time, error) {
	explicit := query.DateFrom != nil || query.DateTo != nil
	if query.Period != "" && explicit {
		return time.Time{}, time.Time{}, &ValidationError{Reason: "specify either a named period or explicit dates, not both"}
	}

	if explicit {
		if query.DateFrom == nil || query.DateTo == nil {
			return time.Time{}, time.Time{}, &ValidationError{Reason: "dateFrom and dateTo must be given together"}
		}
		if query.DateTo.Before(*query.DateFrom) {
			return time.Time{}, time.Time{}, &ValidationError{Reason: "dateTo precedes dateFrom"}
		}
		return *query.DateFrom, *query.DateTo, nil
	}

	now := s.now().UTC()
	switch query.Period {
	case "", PeriodThisMonth:
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, -1), nil
	case PeriodLastMonth:
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return from, from.AddDate(0, 1, -1), nil
	case PeriodThisYear:
		from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, time.Time{}, &ValidationError{Reason: "unknown period " + query.Period}
	}
}

// scopedClientFilter folds the caller's access scope into the client filter,
// mirroring the ledger's read path.
func (s *Service) scopedClientFilter(ctx context.Context, caller *auth.Principal, requested []uuid.UUID) ([]uuid.UUID, error) {
	sc, err := s.scopes.ResolveScope(ctx, caller.Tenant(), caller.UserID, caller.Role)
	if err != nil {
		return nil, err
	}

	allowed, restricted := sc.AllowedList()
	if !restricted {
		return requested, nil
	}

	internal, err := s.repo.GetInternalClient(ctx, caller.Tenant())
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		allowed = append(allowed, internal.ClientID)
	}

	if len(requested) == 0 {
		if len(allowed) == 0 {
			return []uuid.UUID{uuid.Nil}, nil
		}
		return allowed, nil
	}

	permitted := make(map[uuid.UUID]struct{}, len(allowed))
	for _, id := range allowed {
		permitted[id] = struct{}{}
	}
	out := make([]uuid.UUID, 0, len(requested))
	for _, id := range requested {
		if _, ok := permitted[id]; ok {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return []uuid.UUID{uuid.Nil}, nil
	}
	return out, nil
}

func (s *Service) loadReferences(ctx context.Context, tenantID uuid.UUID, entries []persistence.EntryRecord) (
	map[uuid.UUID]persistence.ClientRecord,
	map[uuid.UUID]persistence.WorkstreamRecord,
	map[uuid.UUID]persistence.UserRecord,
	error,
) {
	clientIDs := make(map[uuid.UUID]struct{})
	workstreamIDs := make(map[uuid.UUID]struct{})
	userIDs := make(map[uuid.UUID]struct{})
	for _, entry := range entries {
		clientIDs[entry.ClientID] = struct{}{}
		workstreamIDs[entry.WorkstreamID] = struct{}{}
		userIDs[entry.UserID] = struct{}{}
	}

	clients, err := s.repo.GetClients(ctx, tenantID, keys(clientIDs))
	if err != nil {
		return nil, nil, nil, err
	}
	workstreams, err := s.repo.GetWorkstreams(ctx, tenantID, keys(workstreamIDs))
	if err != nil {
		return nil, nil, nil, err
	}
	users, err := s.repo.GetUsers(ctx, tenantID, keys(userIDs))
	if err != nil {
		return nil, nil, nil, err
	}
	return clients, workstreams, users, nil
}

func keys(set map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
