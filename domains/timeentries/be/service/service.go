// Package service implements the time entry ledger: create, bulk update, soft
// delete, and the scoped read path. Every mutation validates completely before
// any write, and every mutation passes the period lock guard.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	periodsvc "github.com/hourledger/hourledger/domains/periods/be/service"
	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/metrics"
	"github.com/hourledger/hourledger/platform/go/persistence"
	"github.com/hourledger/hourledger/platform/go/scope"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("time entry not found")
	ErrForbidden    = errors.New("caller may not modify these entries")
	ErrAccessDenied = errors.New("client outside the caller's access scope")
)

// ValidationError is returned when ledger inputs are malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid entry input: " + e.Reason
}

// Entry is the domain model for a ledger row.
type Entry struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	ClientID        uuid.UUID
	WorkstreamID    uuid.UUID
	Date            time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationMinutes int
	Billable        bool
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateInput carries a manual ledger entry. Exactly one of DurationMinutes
// or Duration (a "H:MM" / decimal-hours string) must be supplied, unless both
// StartedAt and EndedAt are present, in which case duration is derived.
type CreateInput struct {
	ClientID        uuid.UUID
	WorkstreamID    uuid.UUID
	Date            time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationMinutes *int
	Duration        string
	Billable        *bool
	Notes           string
}

// BulkPatch is the sparse patch applied uniformly to a set of entries.
type BulkPatch struct {
	ClientID        *uuid.UUID
	WorkstreamID    *uuid.UUID
	Date            *time.Time
	StartedAt       *time.Time
	ClearStartedAt  bool
	EndedAt         *time.Time
	ClearEndedAt    bool
	DurationMinutes *int
	Billable        *bool
	Notes           *string
}

func (p BulkPatch) empty() bool {
	return p.ClientID == nil && p.WorkstreamID == nil && p.Date == nil &&
		p.StartedAt == nil && !p.ClearStartedAt &&
		p.EndedAt == nil && !p.ClearEndedAt &&
		p.DurationMinutes == nil && p.Billable == nil && p.Notes == nil
}

// ListInput filters the read path. UserIDs is honored for elevated callers
// only; everyone else reads their own entries.
type ListInput struct {
	UserIDs       []uuid.UUID
	ClientIDs     []uuid.UUID
	WorkstreamIDs []uuid.UUID
	DateFrom      *time.Time
	DateTo        *time.Time
	Billable      *bool
}

// PeriodGuard rejects mutations that fall into a locked accounting month.
// Implemented by the periods service.
type PeriodGuard interface {
	AssertUnlocked(ctx context.Context, tenantID uuid.UUID, date time.Time) error
}

// ScopeResolver yields the caller's client access scope.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, tenantID, userID uuid.UUID, role auth.Role) (scope.Scope, error)
}

// Repository abstracts persistence.
type Repository interface {
	Insert(ctx context.Context, rec persistence.EntryRecord) (persistence.EntryRecord, error)
	Get(ctx context.Context, tenantID, entryID uuid.UUID) (persistence.EntryRecord, error)
	GetMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]persistence.EntryRecord, error)
	List(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error)
	// UpdateMany applies the patch to every id inside one transaction and
	// fails without committing unless exactly expected rows are touched.
	UpdateMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch persistence.EntryPatch, expected int) error
	SoftDelete(ctx context.Context, tenantID, entryID uuid.UUID) error

	GetClient(ctx context.Context, tenantID, clientID uuid.UUID) (persistence.ClientRecord, error)
	GetInternalClient(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error)
	GetWorkstream(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error)
}

// Service provides ledger operations.
type Service struct {
	repo    Repository
	periods PeriodGuard
	scopes  ScopeResolver
	metrics metrics.Recorder
}

// New constructs a Service with required dependencies.
func New(repo Repository, periods PeriodGuard, scopes ScopeResolver, recorder metrics.Recorder) *Service {
	if repo == nil {
		panic("entries repo is required")
	}
	if periods == nil {
		panic("period guard is required")
	}
	if scopes == nil {
		panic("scope resolver is required")
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{repo: repo, periods: periods, scopes: scopes, metrics: recorder}
}

// Create validates and inserts a manual ledger entry owned by the caller.
func (s *Service) Create(ctx context.Context, caller *auth.Principal, input CreateInput) (Entry, error) {
	if input.Date.IsZero() {
		return Entry{}, &ValidationError{Reason: "date is required"}
	}
	if input.ClientID == uuid.Nil {
		return Entry{}, &ValidationError{Reason: "client is required"}
	}
	if input.WorkstreamID == uuid.Nil {
		return Entry{}, &ValidationError{Reason: "workstream is required"}
	}

	minutes, err := s.resolveDuration(input)
	if err != nil {
		return Entry{}, err
	}
	if input.StartedAt != nil && input.EndedAt != nil && !input.EndedAt.After(*input.StartedAt) {
		return Entry{}, &ValidationError{Reason: "end must be after start"}
	}

	client, err := s.repo.GetClient(ctx, caller.Tenant(), input.ClientID)
	if err != nil {
		return Entry{}, mapNotFound(err)
	}
	if !client.IsActive() {
		return Entry{}, ErrNotFound
	}

	ws, err := s.repo.GetWorkstream(ctx, caller.Tenant(), input.WorkstreamID)
	if err != nil {
		return Entry{}, mapNotFound(err)
	}
	if !ws.IsActive() || ws.ClientID != client.ClientID {
		return Entry{}, ErrNotFound
	}

	sc, err := s.scopes.ResolveScope(ctx, caller.Tenant(), caller.UserID, caller.Role)
	if err != nil {
		return Entry{}, err
	}
	if !sc.AllowsClient(client.ClientID, client.IsInternal()) {
		return Entry{}, ErrAccessDenied
	}

	if err = s.assertUnlocked(ctx, caller.Tenant(), input.Date); err != nil {
		return Entry{}, err
	}

	billable := !client.IsInternal()
	if input.Billable != nil && !client.IsInternal() {
		billable = *input.Billable
	}

	rec, err := s.repo.Insert(ctx, persistence.EntryRecord{
		EntryID:         uuid.New(),
		TenantID:        caller.Tenant(),
		UserID:          caller.UserID,
		ClientID:        input.ClientID,
		WorkstreamID:    input.WorkstreamID,
		EntryDate:       input.Date,
		StartedAt:       input.StartedAt,
		EndedAt:         input.EndedAt,
		DurationMinutes: minutes,
		Billable:        billable,
		Notes:           input.Notes,
	})
	if err != nil {
		return Entry{}, err
	}
	s.metrics.RecordEntryCreated()
	return toEntry(rec), nil
}

// BulkUpdate applies one sparse patch to a set of entries. Every validation
// for every target runs before any write; a single failure aborts the batch.
func (s *Service) BulkUpdate(ctx context.Context, caller *auth.Principal, ids []uuid.UUID, patch BulkPatch) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, &ValidationError{Reason: "at least one entry id is required"}
	}
	if patch.empty() {
		return nil, &ValidationError{Reason: "no fields to update"}
	}

	unique := dedupe(ids)
	entries, err := s.repo.GetMany(ctx, caller.Tenant(), unique)
	if err != nil {
		return nil, err
	}
	if len(entries) != len(unique) {
		return nil, ErrNotFound
	}

	for _, entry := range entries {
		if entry.UserID != caller.UserID && !caller.Role.Elevated() {
			return nil, ErrForbidden
		}
	}

	// Lock guard: every entry's current month, plus the new month when the
	// patch moves entries to another date.
	checkedMonths := map[string]struct{}{}
	for _, entry := range entries {
		if err = s.assertUnlockedOnce(ctx, caller.Tenant(), entry.EntryDate, checkedMonths); err != nil {
			return nil, err
		}
	}
	if patch.Date != nil {
		if err = s.assertUnlockedOnce(ctx, caller.Tenant(), *patch.Date, checkedMonths); err != nil {
			return nil, err
		}
	}

	var patchClient *persistence.ClientRecord
	if patch.ClientID != nil {
		client, clientErr := s.repo.GetClient(ctx, caller.Tenant(), *patch.ClientID)
		if clientErr != nil {
			return nil, mapNotFound(clientErr)
		}
		if !client.IsActive() {
			return nil, ErrNotFound
		}
		sc, scopeErr := s.scopes.ResolveScope(ctx, caller.Tenant(), caller.UserID, caller.Role)
		if scopeErr != nil {
			return nil, scopeErr
		}
		if !sc.AllowsClient(client.ClientID, client.IsInternal()) {
			return nil, ErrAccessDenied
		}
		patchClient = &client
	}

	if patch.WorkstreamID != nil {
		ws, wsErr := s.repo.GetWorkstream(ctx, caller.Tenant(), *patch.WorkstreamID)
		if wsErr != nil {
			return nil, mapNotFound(wsErr)
		}
		if !ws.IsActive() {
			return nil, ErrNotFound
		}
		// The new workstream must belong to the effective client of every
		// targeted entry.
		for _, entry := range entries {
			effectiveClient := entry.ClientID
			if patchClient != nil {
				effectiveClient = patchClient.ClientID
			}
			if ws.ClientID != effectiveClient {
				return nil, &ValidationError{Reason: "workstream does not belong to the entry's client"}
			}
		}
	}

	if patch.StartedAt != nil && patch.EndedAt != nil {
		if !patch.EndedAt.After(*patch.StartedAt) {
			return nil, &ValidationError{Reason: "end must be after start"}
		}
		if patch.DurationMinutes == nil {
			minutes := DurationBetween(*patch.StartedAt, *patch.EndedAt)
			patch.DurationMinutes = &minutes
		}
	}
	if patch.DurationMinutes != nil && *patch.DurationMinutes <= 0 {
		return nil, &ValidationError{Reason: "duration must be positive"}
	}

	storePatch := persistence.EntryPatch{
		ClientID:        patch.ClientID,
		WorkstreamID:    patch.WorkstreamID,
		EntryDate:       patch.Date,
		StartedAt:       patch.StartedAt,
		ClearStartedAt:  patch.ClearStartedAt,
		EndedAt:         patch.EndedAt,
		ClearEndedAt:    patch.ClearEndedAt,
		DurationMinutes: patch.DurationMinutes,
		Billable:        patch.Billable,
		Notes:           patch.Notes,
	}
	if err = s.repo.UpdateMany(ctx, caller.Tenant(), unique, storePatch, len(unique)); err != nil {
		return nil, mapNotFound(err)
	}

	updated, err := s.repo.GetMany(ctx, caller.Tenant(), unique)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(updated))
	for _, rec := range updated {
		out = append(out, toEntry(rec))
	}
	return out, nil
}

// Delete soft-deletes a single entry.
func (s *Service) Delete(ctx context.Context, caller *auth.Principal, entryID uuid.UUID) error {
	rec, err := s.repo.Get(ctx, caller.Tenant(), entryID)
	if err != nil {
		return mapNotFound(err)
	}
	if rec.UserID != caller.UserID && !caller.Role.Elevated() {
		return ErrForbidden
	}
	if err = s.assertUnlocked(ctx, caller.Tenant(), rec.EntryDate); err != nil {
		return err
	}
	if err = s.repo.SoftDelete(ctx, caller.Tenant(), entryID); err != nil {
		return mapNotFound(err)
	}
	return nil
}

// List returns ledger entries visible to the caller. Members are confined to
// their own entries and their client scope; elevated callers may filter by
// team members.
func (s *Service) List(ctx context.Context, caller *auth.Principal, input ListInput) ([]Entry, error) {
	params := persistence.ListEntriesParams{
		TenantID:      caller.Tenant(),
		WorkstreamIDs: input.WorkstreamIDs,
		DateFrom:      input.DateFrom,
		DateTo:        input.DateTo,
		Billable:      input.Billable,
	}

	if caller.Role.Elevated() {
		params.UserIDs = input.UserIDs
	} else {
		params.UserIDs = []uuid.UUID{caller.UserID}
	}

	clientIDs, err := s.scopedClientFilter(ctx, caller, input.ClientIDs)
	if err != nil {
		return nil, err
	}
	params.ClientIDs = clientIDs

	recs, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, toEntry(rec))
	}
	return entries, nil
}

// scopedClientFilter folds the caller's access scope into the client filter.
// Restricted members always get a concrete id list covering their allow-list
// plus the internal client.
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
			// Nothing visible; force an impossible filter.
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

func (s *Service) resolveDuration(input CreateInput) (int, error) {
	if input.DurationMinutes != nil {
		if *input.DurationMinutes <= 0 {
			return 0, &ValidationError{Reason: "duration must be positive"}
		}
		return *input.DurationMinutes, nil
	}
	if input.Duration != "" {
		minutes, err := ParseDuration(input.Duration)
		if err != nil {
			return 0, &ValidationError{Reason: err.Error()}
		}
		return minutes, nil
	}
	if input.StartedAt != nil && input.EndedAt != nil {
		if !input.EndedAt.After(*input.StartedAt) {
			return 0, &ValidationError{Reason: "end must be after start"}
		}
		return DurationBetween(*input.StartedAt, *input.EndedAt), nil
	}
	return 0, &ValidationError{Reason: "duration is required"}
}

func (s *Service) assertUnlocked(ctx context.Context, tenantID uuid.UUID, date time.Time) error {
	if err := s.periods.AssertUnlocked(ctx, tenantID, date); err != nil {
		if errors.Is(err, periodsvc.ErrPeriodLocked) {
			s.metrics.RecordPeriodLockedRejection()
		}
		return err
	}
	return nil
}

func (s *Service) assertUnlockedOnce(ctx context.Context, tenantID uuid.UUID, date time.Time, seen map[string]struct{}) error {
	key := fmt.Sprintf("%04d-%02d", date.Year(), int(date.Month()))
	if _, ok := seen[key]; ok {
		return nil
	}
	seen[key] = struct{}{}
	return s.assertUnlocked(ctx, tenantID, date)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toEntry(rec persistence.EntryRecord) Entry {
	return Entry{
		ID:              rec.EntryID,
		UserID:          rec.UserID,
		ClientID:        rec.ClientID,
		WorkstreamID:    rec.WorkstreamID,
		Date:            rec.EntryDate,
		StartedAt:       rec.StartedAt,
		EndedAt:         rec.EndedAt,
		DurationMinutes: rec.DurationMinutes,
		Billable:        rec.Billable,
		Notes:           rec.Notes,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
