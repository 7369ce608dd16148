// Package service implements accounting-period locks. A locked month freezes
// every time entry whose date falls inside it; admins lock a period after
// invoicing and unlock it only to make corrections.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("locked period not found")
	ErrPeriodLocked = errors.New("accounting period is locked")
)

// ValidationError is returned when lock inputs are malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Lock represents the domain view of a period lock.
type Lock struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Year       int
	Month      time.Month
	LockedAt   time.Time
	LockedBy   uuid.UUID
	UnlockedAt *time.Time
	UnlockedBy *uuid.UUID
}

// Active reports whether the lock currently blocks mutations.
func (l Lock) Active() bool {
	return l.UnlockedAt == nil
}

// Repository abstracts persistence.
type Repository interface {
	// Lock upserts the (tenant, year, month) lock, clearing prior unlock metadata.
	Lock(ctx context.Context, tenantID uuid.UUID, year int, month time.Month, lockedBy uuid.UUID) (Lock, error)
	// Get returns a lock by id within the tenant.
	Get(ctx context.Context, tenantID, lockID uuid.UUID) (Lock, error)
	// Unlock stamps the unlock fields on the given lock record.
	Unlock(ctx context.Context, lockID, unlockedBy uuid.UUID) (Lock, error)
	// FindActive returns the active lock for (tenant, year, month), or ErrNotFound.
	FindActive(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (Lock, error)
	// List returns the tenant's lock history.
	List(ctx context.Context, tenantID uuid.UUID) ([]Lock, error)
}

// Service provides period lock operations and the guard used by every ledger
// and timer mutation.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("periods repo is required")
	}
	return &Service{repo: repo}
}

// Lock freezes the given month. Idempotent: locking an already-locked or
// previously-unlocked period succeeds and clears any unlock metadata.
func (s *Service) Lock(ctx context.Context, tenantID uuid.UUID, year int, month time.Month, lockedBy uuid.UUID) (Lock, error) {
	if err := validatePeriod(year, month); err != nil {
		return Lock{}, err
	}
	return s.repo.Lock(ctx, tenantID, year, month, lockedBy)
}

// Unlock lifts a specific lock by id. The lookup is tenant scoped; the unlock
// itself targets the record directly.
func (s *Service) Unlock(ctx context.Context, tenantID, lockID, unlockedBy uuid.UUID) (Lock, error) {
	lock, err := s.repo.Get(ctx, tenantID, lockID)
	if err != nil {
		return Lock{}, err
	}
	return s.repo.Unlock(ctx, lock.ID, unlockedBy)
}

// List returns the tenant's lock history, most recent period first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Lock, error) {
	return s.repo.List(ctx, tenantID)
}

// AssertUnlocked fails with ErrPeriodLocked when the calendar month containing
// date is locked for the tenant. Callers reject the mutation on failure.
func (s *Service) AssertUnlocked(ctx context.Context, tenantID uuid.UUID, date time.Time) error {
	year, month := date.Year(), date.Month()

	_, err := s.repo.FindActive(ctx, tenantID, year, month)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return fmt.Errorf("%w: %04d-%02d", ErrPeriodLocked, year, int(month))
}

func validatePeriod(year int, month time.Month) error {
	if month < time.January || month > time.December {
		return &ValidationError{Reason: fmt.Sprintf("month %d out of range", int(month))}
	}
	if year < 2000 || year > 2200 {
		return &ValidationError{Reason: fmt.Sprintf("year %d out of range", year)}
	}
	return nil
}
