package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hourledger/hourledger/domains/periods/be/service"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// PostgresRepository implements the periods repository over PeriodStore.
type PostgresRepository struct {
	store *persistence.PeriodStore
}

// NewPostgresRepository constructs a repository backed by PeriodStore.
func NewPostgresRepository(store *persistence.PeriodStore) *PostgresRepository {
	if store == nil {
		panic("period store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Lock(ctx context.Context, tenantID uuid.UUID, year int, month time.Month, lockedBy uuid.UUID) (service.Lock, error) {
	rec, err := r.store.Upsert(ctx, tenantID, year, int(month), lockedBy)
	if err != nil {
		return service.Lock{}, err
	}
	return toServiceLock(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, lockID uuid.UUID) (service.Lock, error) {
	rec, err := r.store.GetInTenant(ctx, tenantID, lockID)
	if err != nil {
		return service.Lock{}, mapNotFound(err)
	}
	return toServiceLock(rec), nil
}

func (r *PostgresRepository) Unlock(ctx context.Context, lockID, unlockedBy uuid.UUID) (service.Lock, error) {
	rec, err := r.store.Unlock(ctx, lockID, unlockedBy)
	if err != nil {
		return service.Lock{}, mapNotFound(err)
	}
	return toServiceLock(rec), nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (service.Lock, error) {
	rec, err := r.store.FindActive(ctx, tenantID, year, int(month))
	if err != nil {
		return service.Lock{}, mapNotFound(err)
	}
	return toServiceLock(rec), nil
}

func (r *PostgresRepository) List(ctx context.Context, tenantID uuid.UUID) ([]service.Lock, error) {
	recs, err := r.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	locks := make([]service.Lock, 0, len(recs))
	for _, rec := range recs {
		locks = append(locks, toServiceLock(rec))
	}
	return locks, nil
}

func toServiceLock(rec persistence.LockRecord) service.Lock {
	return service.Lock{
		ID:         rec.LockID,
		TenantID:   rec.TenantID,
		Year:       rec.Year,
		Month:      time.Month(rec.Month),
		LockedAt:   rec.LockedAt,
		LockedBy:   rec.LockedBy,
		UnlockedAt: rec.UnlockedAt,
		UnlockedBy: rec.UnlockedBy,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
