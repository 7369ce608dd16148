package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const LockedPeriodsTable = "locked_periods"

// LockRecord represents a row in the locked_periods table. A row with
// UnlockedAt nil is currently locked; unlock stamps the fields, and re-locking
// the same (tenant, year, month) clears them again.
type LockRecord struct {
	LockID     uuid.UUID
	TenantID   uuid.UUID
	Year       int
	Month      int
	LockedAt   time.Time
	LockedBy   uuid.UUID
	UnlockedAt *time.Time
	UnlockedBy *uuid.UUID
}

// Locked reports whether the record currently blocks mutations.
func (r LockRecord) Locked() bool {
	return r.UnlockedAt == nil
}

// PeriodStore exposes persistence helpers for the locked_periods table.
type PeriodStore struct {
	pool *pgxpool.Pool
}

// NewPeriodStore returns a store instance bound to the pool.
func NewPeriodStore(pool *pgxpool.Pool) (*PeriodStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &PeriodStore{pool: pool}, nil
}

const lockColumns = "lock_id, tenant_id, year, month, locked_at, locked_by, unlocked_at, unlocked_by"

// Upsert locks the (tenant, year, month) period. Idempotent: an existing row
// gets its lock metadata refreshed and any prior unlock cleared.
func (s *PeriodStore) Upsert(ctx context.Context, tenantID uuid.UUID, year, month int, lockedBy uuid.UUID) (LockRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (lock_id, tenant_id, year, month, locked_at, locked_by)
        VALUES ($1, $2, $3, $4, NOW(), $5)
        ON CONFLICT ON CONSTRAINT locked_periods_tenant_month_unique
        DO UPDATE SET locked_at = NOW(), locked_by = $5, unlocked_at = NULL, unlocked_by = NULL
        RETURNING %s
    `, LockedPeriodsTable, lockColumns),
		uuid.New(), tenantID, year, month, lockedBy,
	)
	return scanLock(row)
}

// FindActive returns the lock row blocking the (tenant, year, month) period,
// or ErrNotFound when the period is open.
func (s *PeriodStore) FindActive(ctx context.Context, tenantID uuid.UUID, year, month int) (LockRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE tenant_id = $1 AND year = $2 AND month = $3 AND unlocked_at IS NULL
    `, lockColumns, LockedPeriodsTable), tenantID, year, month)

	rec, err := scanLock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockRecord{}, ErrNotFound
		}
		return LockRecord{}, err
	}
	return rec, nil
}

// GetInTenant returns a lock record by id, tenant scoped.
func (s *PeriodStore) GetInTenant(ctx context.Context, tenantID, lockID uuid.UUID) (LockRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND lock_id = $2
    `, lockColumns, LockedPeriodsTable), tenantID, lockID)

	rec, err := scanLock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockRecord{}, ErrNotFound
		}
		return LockRecord{}, err
	}
	return rec, nil
}

// Unlock stamps the unlock fields on a specific lock record.
func (s *PeriodStore) Unlock(ctx context.Context, lockID, unlockedBy uuid.UUID) (LockRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET unlocked_at = NOW(), unlocked_by = $2
        WHERE lock_id = $1
        RETURNING %s
    `, LockedPeriodsTable, lockColumns), lockID, unlockedBy)

	rec, err := scanLock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockRecord{}, ErrNotFound
		}
		return LockRecord{}, err
	}
	return rec, nil
}

// ListByTenant returns the tenant's lock history, most recent period first.
func (s *PeriodStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]LockRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1
        ORDER BY year DESC, month DESC
    `, lockColumns, LockedPeriodsTable), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list locked periods: %w", err)
	}
	defer rows.Close()

	locks := make([]LockRecord, 0)
	for rows.Next() {
		rec, scanErr := scanLock(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan locked period: %w", scanErr)
		}
		locks = append(locks, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locked periods: %w", err)
	}
	return locks, nil
}

func scanLock(row pgx.Row) (LockRecord, error) {
	var rec LockRecord
	if err := row.Scan(
		&rec.LockID,
		&rec.TenantID,
		&rec.Year,
		&rec.Month,
		&rec.LockedAt,
		&rec.LockedBy,
		&rec.UnlockedAt,
		&rec.UnlockedBy,
	); err != nil {
		return LockRecord{}, err
	}
	return rec, nil
}
