package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const WorkstreamsTable = "workstreams"

// Workstream status and billing type values.
const (
	WorkstreamStatusActive   = "active"
	WorkstreamStatusArchived = "archived"

	BillingTypeHourly = "hourly"
	BillingTypeFixed  = "fixed"
)

// WorkstreamRecord represents a row in the workstreams table. BillingRate
// applies when BillingType is hourly, FixedFeeAmount when fixed; both are
// nullable and degrade to zero billing when absent.
type WorkstreamRecord struct {
	WorkstreamID   uuid.UUID
	TenantID       uuid.UUID
	ClientID       uuid.UUID
	Name           string
	Status         string
	BillingType    string
	BillingRate    *float64
	FixedFeeAmount *float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive reports whether the workstream accepts new time entries.
func (w WorkstreamRecord) IsActive() bool {
	return w.Status == WorkstreamStatusActive
}

// WorkstreamStore exposes persistence helpers for the workstreams table.
type WorkstreamStore struct {
	pool *pgxpool.Pool
}

// NewWorkstreamStore returns a store instance bound to the pool.
func NewWorkstreamStore(pool *pgxpool.Pool) (*WorkstreamStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &WorkstreamStore{pool: pool}, nil
}

const workstreamColumns = "workstream_id, tenant_id, client_id, name, status, billing_type, billing_rate, fixed_fee_amount, created_at, updated_at"

// Create inserts a workstream row.
func (s *WorkstreamStore) Create(ctx context.Context, rec WorkstreamRecord) (WorkstreamRecord, error) {
	if rec.WorkstreamID == uuid.Nil {
		return WorkstreamRecord{}, errors.New("workstream id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (workstream_id, tenant_id, client_id, name, status, billing_type, billing_rate, fixed_fee_amount)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING %s
    `, WorkstreamsTable, workstreamColumns),
		rec.WorkstreamID,
		rec.TenantID,
		rec.ClientID,
		strings.TrimSpace(rec.Name),
		rec.Status,
		rec.BillingType,
		rec.BillingRate,
		rec.FixedFeeAmount,
	)

	return scanWorkstream(row)
}

// GetInTenant returns a workstream by id, scoped to the tenant.
func (s *WorkstreamStore) GetInTenant(ctx context.Context, tenantID, workstreamID uuid.UUID) (WorkstreamRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND workstream_id = $2
    `, workstreamColumns, WorkstreamsTable), tenantID, workstreamID)

	rec, err := scanWorkstream(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkstreamRecord{}, ErrNotFound
		}
		return WorkstreamRecord{}, err
	}
	return rec, nil
}

// ListByClient returns a client's workstreams ordered by name.
func (s *WorkstreamStore) ListByClient(ctx context.Context, tenantID, clientID uuid.UUID, includeArchived bool) ([]WorkstreamRecord, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND client_id = $2
    `, workstreamColumns, WorkstreamsTable)
	if !includeArchived {
		query += " AND status = 'active'"
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query, tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("list workstreams: %w", err)
	}
	defer rows.Close()

	workstreams := make([]WorkstreamRecord, 0)
	for rows.Next() {
		rec, scanErr := scanWorkstream(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan workstream: %w", scanErr)
		}
		workstreams = append(workstreams, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workstreams: %w", err)
	}
	return workstreams, nil
}

// GetManyInTenant returns the requested workstreams keyed by id, scoped to the
// tenant.
func (s *WorkstreamStore) GetManyInTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]WorkstreamRecord, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]WorkstreamRecord{}, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND workstream_id = ANY($2)
    `, workstreamColumns, WorkstreamsTable), tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get workstreams: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]WorkstreamRecord, len(ids))
	for rows.Next() {
		rec, scanErr := scanWorkstream(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan workstream: %w", scanErr)
		}
		out[rec.WorkstreamID] = rec
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workstreams: %w", err)
	}
	return out, nil
}

func scanWorkstream(row pgx.Row) (WorkstreamRecord, error) {
	var rec WorkstreamRecord
	if err := row.Scan(
		&rec.WorkstreamID,
		&rec.TenantID,
		&rec.ClientID,
		&rec.Name,
		&rec.Status,
		&rec.BillingType,
		&rec.BillingRate,
		&rec.FixedFeeAmount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return WorkstreamRecord{}, err
	}
	return rec, nil
}
