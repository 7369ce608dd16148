// Package service implements the timer state machine: at most one running
// timer per user, with stop materializing a ledger entry and delete of the
// session as one atomic step.
package service

import (
	"context"
	"errors"
	"math"
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
	ErrNoActiveTimer    = errors.New("no active timer")
	ErrConflictingTimer = errors.New("only one active timer allowed")
	ErrNotFound         = errors.New("client or workstream not found")
	ErrAccessDenied     = errors.New("client outside the caller's access scope")
)

// ValidationError is returned when timer inputs are malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid timer input: " + e.Reason
}

// Session is the domain model for a running timer.
type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ClientID     *uuid.UUID
	WorkstreamID *uuid.UUID
	Notes        string
	StartedAt    time.Time
}

// StartInput carries the optional pre-selections for a new timer.
type StartInput struct {
	ClientID     *uuid.UUID
	WorkstreamID *uuid.UUID
	Notes        string
}

// StopInput overrides the session's stored selections at stop time.
type StopInput struct {
	ClientID     *uuid.UUID
	WorkstreamID *uuid.UUID
	Notes        *string
}

// StoppedEntry is the ledger entry produced by a successful stop.
type StoppedEntry struct {
	EntryID         uuid.UUID
	ClientID        uuid.UUID
	WorkstreamID    uuid.UUID
	Date            time.Time
	StartedAt       time.Time
	EndedAt         time.Time
	DurationMinutes int
	Billable        bool
	Notes           string
}

// PeriodGuard rejects mutations that fall into a locked accounting month.
type PeriodGuard interface {
	AssertUnlocked(ctx context.Context, tenantID uuid.UUID, date time.Time) error
}

// ScopeResolver yields the caller's client access scope.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, tenantID, userID uuid.UUID, role auth.Role) (scope.Scope, error)
}

// Repository abstracts persistence.
type Repository interface {
	InsertSession(ctx context.Context, rec persistence.SessionRecord) (persistence.SessionRecord, error)
	GetSession(ctx context.Context, userID uuid.UUID) (persistence.SessionRecord, error)
	DeleteSession(ctx context.Context, userID uuid.UUID) (bool, error)
	// StopSession inserts the entry and deletes the session in one
	// transaction. Entry insertion failure must leave the session in place.
	StopSession(ctx context.Context, sessionID uuid.UUID, entry persistence.EntryRecord) (persistence.EntryRecord, error)

	GetClient(ctx context.Context, tenantID, clientID uuid.UUID) (persistence.ClientRecord, error)
	GetWorkstream(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error)
}

// Service provides timer operations.
type Service struct {
	repo    Repository
	periods PeriodGuard
	scopes  ScopeResolver
	metrics metrics.Recorder
	now     func() time.Time
}

// New constructs a Service with required dependencies.
func New(repo Repository, periods PeriodGuard, scopes ScopeResolver, recorder metrics.Recorder) *Service {
	if repo == nil {
		panic("timers repo is required")
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
	return &Service{repo: repo, periods: periods, scopes: scopes, metrics: recorder, now: time.Now}
}

// Start begins a timer for the caller. Pre-selected client and workstream are
// validated the same way a ledger entry would be; a second concurrent start
// loses on the storage uniqueness constraint.
func (s *Service) Start(ctx context.Context, caller *auth.Principal, input StartInput) (Session, error) {
	var clientRec *persistence.ClientRecord
	if input.ClientID != nil {
		client, err := s.repo.GetClient(ctx, caller.Tenant(), *input.ClientID)
		if err != nil {
			return Session{}, mapNotFound(err)
		}
		if !client.IsActive() {
			return Session{}, ErrNotFound
		}
		sc, err := s.scopes.ResolveScope(ctx, caller.Tenant(), caller.UserID, caller.Role)
		if err != nil {
			return Session{}, err
		}
		if !sc.AllowsClient(client.ClientID, client.IsInternal()) {
			return Session{}, ErrAccessDenied
		}
		clientRec = &client
	}

	if input.WorkstreamID != nil {
		ws, err := s.repo.GetWorkstream(ctx, caller.Tenant(), *input.WorkstreamID)
		if err != nil {
			return Session{}, mapNotFound(err)
		}
		if !ws.IsActive() {
			return Session{}, ErrNotFound
		}
		if clientRec != nil && ws.ClientID != clientRec.ClientID {
			return Session{}, &ValidationError{Reason: "workstream does not belong to the client"}
		}
	}

	rec, err := s.repo.InsertSession(ctx, persistence.SessionRecord{
		SessionID:    uuid.New(),
		TenantID:     caller.Tenant(),
		UserID:       caller.UserID,
		ClientID:     input.ClientID,
		WorkstreamID: input.WorkstreamID,
		Notes:        input.Notes,
		StartedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, persistence.ErrUniqueViolation) {
			s.metrics.RecordTimerConflict()
			return Session{}, ErrConflictingTimer
		}
		return Session{}, err
	}

	s.metrics.RecordTimerStarted()
	return toSession(rec), nil
}

// Stop ends the caller's timer and materializes a ledger entry. The effective
// client and workstream come from the request body when supplied, else from
// the session's stored selections.
func (s *Service) Stop(ctx context.Context, caller *auth.Principal, input StopInput) (StoppedEntry, error) {
	session, err := s.repo.GetSession(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return StoppedEntry{}, ErrNoActiveTimer
		}
		return StoppedEntry{}, err
	}

	clientID := session.ClientID
	if input.ClientID != nil {
		clientID = input.ClientID
	}
	workstreamID := session.WorkstreamID
	if input.WorkstreamID != nil {
		workstreamID = input.WorkstreamID
	}
	if clientID == nil || workstreamID == nil {
		return StoppedEntry{}, &ValidationError{Reason: "client and workstream are required to stop a timer"}
	}

	client, err := s.repo.GetClient(ctx, caller.Tenant(), *clientID)
	if err != nil {
		return StoppedEntry{}, mapNotFound(err)
	}
	if !client.IsActive() {
		return StoppedEntry{}, ErrNotFound
	}
	sc, err := s.scopes.ResolveScope(ctx, caller.Tenant(), caller.UserID, caller.Role)
	if err != nil {
		return StoppedEntry{}, err
	}
	if !sc.AllowsClient(client.ClientID, client.IsInternal()) {
		return StoppedEntry{}, ErrAccessDenied
	}

	ws, err := s.repo.GetWorkstream(ctx, caller.Tenant(), *workstreamID)
	if err != nil {
		return StoppedEntry{}, mapNotFound(err)
	}
	if !ws.IsActive() || ws.ClientID != client.ClientID {
		return StoppedEntry{}, ErrNotFound
	}

	now := s.now().UTC()
	if err = s.assertUnlocked(ctx, caller.Tenant(), now); err != nil {
		return StoppedEntry{}, err
	}

	notes := session.Notes
	if input.Notes != nil {
		notes = *input.Notes
	}

	startedAt := session.StartedAt
	entry := persistence.EntryRecord{
		EntryID:         uuid.New(),
		TenantID:        caller.Tenant(),
		UserID:          caller.UserID,
		ClientID:        client.ClientID,
		WorkstreamID:    ws.WorkstreamID,
		EntryDate:       time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		StartedAt:       &startedAt,
		EndedAt:         &now,
		DurationMinutes: elapsedMinutes(session.StartedAt, now),
		Billable:        !client.IsInternal(),
		Notes:           notes,
	}

	inserted, err := s.repo.StopSession(ctx, session.SessionID, entry)
	if err != nil {
		return StoppedEntry{}, err
	}

	s.metrics.RecordTimerStopped()
	s.metrics.RecordEntryCreated()
	return StoppedEntry{
		EntryID:         inserted.EntryID,
		ClientID:        inserted.ClientID,
		WorkstreamID:    inserted.WorkstreamID,
		Date:            inserted.EntryDate,
		StartedAt:       session.StartedAt,
		EndedAt:         now,
		DurationMinutes: inserted.DurationMinutes,
		Billable:        inserted.Billable,
		Notes:           inserted.Notes,
	}, nil
}

// Discard drops the caller's timer without touching the ledger. Idempotent.
func (s *Service) Discard(ctx context.Context, caller *auth.Principal) error {
	deleted, err := s.repo.DeleteSession(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if deleted {
		s.metrics.RecordTimerDiscarded()
	}
	return nil
}

// Current returns the caller's running timer, if any.
func (s *Service) Current(ctx context.Context, caller *auth.Principal) (Session, bool, error) {
	rec, err := s.repo.GetSession(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	return toSession(rec), true, nil
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

// elapsedMinutes rounds the running time to whole minutes, never below one so
// a quickly stopped timer still produces a valid entry.
func elapsedMinutes(start, end time.Time) int {
	minutes := int(math.Round(end.Sub(start).Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}

func toSession(rec persistence.SessionRecord) Session {
	return Session{
		ID:           rec.SessionID,
		UserID:       rec.UserID,
		ClientID:     rec.ClientID,
		WorkstreamID: rec.WorkstreamID,
		Notes:        rec.Notes,
		StartedAt:    rec.StartedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
