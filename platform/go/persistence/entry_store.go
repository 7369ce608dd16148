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

const TimeEntriesTable = "time_entries"

// EntryRecord represents a row in the time_entries table. Duration is always
// present in minutes; StartedAt/EndedAt are optional timestamps. DeletedAt set
// means the entry is soft-deleted and excluded from reads.
type EntryRecord struct {
	EntryID         uuid.UUID
	TenantID        uuid.UUID
	UserID          uuid.UUID
	ClientID        uuid.UUID
	WorkstreamID    uuid.UUID
	EntryDate       time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationMinutes int
	Billable        bool
	Notes           string
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EntryStore exposes persistence helpers for the time_entries table.
type EntryStore struct {
	pool *pgxpool.Pool
}

// NewEntryStore returns a store instance bound to the pool.
func NewEntryStore(pool *pgxpool.Pool) (*EntryStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &EntryStore{pool: pool}, nil
}

const entryColumns = "entry_id, tenant_id, user_id, client_id, workstream_id, entry_date, started_at, ended_at, duration_minutes, billable, notes, deleted_at, created_at, updated_at"

// Insert creates a time entry row.
func (s *EntryStore) Insert(ctx context.Context, rec EntryRecord) (EntryRecord, error) {
	return s.InsertTx(ctx, s.pool, rec)
}

// InsertTx creates a time entry row on the given transaction (or pool). Timer
// stop uses this so entry creation and session deletion commit atomically.
func (s *EntryStore) InsertTx(ctx context.Context, q querier, rec EntryRecord) (EntryRecord, error) {
	if rec.EntryID == uuid.Nil {
		return EntryRecord{}, errors.New("entry id is required")
	}
	if rec.DurationMinutes <= 0 {
		return EntryRecord{}, errors.New("duration must be positive")
	}

	row := q.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (entry_id, tenant_id, user_id, client_id, workstream_id, entry_date, started_at, ended_at, duration_minutes, billable, notes)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING %s
    `, TimeEntriesTable, entryColumns),
		rec.EntryID,
		rec.TenantID,
		rec.UserID,
		rec.ClientID,
		rec.WorkstreamID,
		rec.EntryDate,
		rec.StartedAt,
		rec.EndedAt,
		rec.DurationMinutes,
		rec.Billable,
		rec.Notes,
	)

	return scanEntry(row)
}

// GetInTenant returns a live (not soft-deleted) entry by id, tenant scoped.
func (s *EntryStore) GetInTenant(ctx context.Context, tenantID, entryID uuid.UUID) (EntryRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE tenant_id = $1 AND entry_id = $2 AND deleted_at IS NULL
    `, entryColumns, TimeEntriesTable), tenantID, entryID)

	rec, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EntryRecord{}, ErrNotFound
		}
		return EntryRecord{}, err
	}
	return rec, nil
}

// GetManyInTenant returns the requested live entries, tenant scoped. Bulk
// update uses this to validate every target before writing anything.
func (s *EntryStore) GetManyInTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]EntryRecord, error) {
	if len(ids) == 0 {
		return []EntryRecord{}, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE tenant_id = $1 AND entry_id = ANY($2) AND deleted_at IS NULL
    `, entryColumns, TimeEntriesTable), tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}
	defer rows.Close()

	entries := make([]EntryRecord, 0, len(ids))
	for rows.Next() {
		rec, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan entry: %w", scanErr)
		}
		entries = append(entries, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// ListEntriesParams filters the ledger read path. TenantID is mandatory; every
// other filter narrows. Dates are inclusive calendar-day bounds.
type ListEntriesParams struct {
	TenantID      uuid.UUID
	UserIDs       []uuid.UUID
	ClientIDs     []uuid.UUID
	WorkstreamIDs []uuid.UUID
	DateFrom      *time.Time
	DateTo        *time.Time
	Billable      *bool
}

// List returns live entries matching the filters, newest first.
func (s *EntryStore) List(ctx context.Context, params ListEntriesParams) ([]EntryRecord, error) {
	if params.TenantID == uuid.Nil {
		return nil, errors.New("tenant id is required")
	}

	whereParts := []string{"tenant_id = $1", "deleted_at IS NULL"}
	args := []any{params.TenantID}

	if len(params.UserIDs) > 0 {
		args = append(args, params.UserIDs)
		whereParts = append(whereParts, fmt.Sprintf("user_id = ANY($%d)", len(args)))
	}
	if len(params.ClientIDs) > 0 {
		args = append(args, params.ClientIDs)
		whereParts = append(whereParts, fmt.Sprintf("client_id = ANY($%d)", len(args)))
	}
	if len(params.WorkstreamIDs) > 0 {
		args = append(args, params.WorkstreamIDs)
		whereParts = append(whereParts, fmt.Sprintf("workstream_id = ANY($%d)", len(args)))
	}
	if params.DateFrom != nil {
		args = append(args, *params.DateFrom)
		whereParts = append(whereParts, fmt.Sprintf("entry_date >= $%d", len(args)))
	}
	if params.DateTo != nil {
		args = append(args, *params.DateTo)
		whereParts = append(whereParts, fmt.Sprintf("entry_date <= $%d", len(args)))
	}
	if params.Billable != nil {
		args = append(args, *params.Billable)
		whereParts = append(whereParts, fmt.Sprintf("billable = $%d", len(args)))
	}

	query := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE %s
        ORDER BY entry_date DESC, created_at DESC
    `, entryColumns, TimeEntriesTable, strings.Join(whereParts, " AND "))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]EntryRecord, 0)
	for rows.Next() {
		rec, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan entry: %w", scanErr)
		}
		entries = append(entries, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// EntryPatch is the sparse column patch applied uniformly to a set of entries.
// Nil fields are left untouched. Clear* fields null the optional columns.
type EntryPatch struct {
	ClientID        *uuid.UUID
	WorkstreamID    *uuid.UUID
	EntryDate       *time.Time
	StartedAt       *time.Time
	ClearStartedAt  bool
	EndedAt         *time.Time
	ClearEndedAt    bool
	DurationMinutes *int
	Billable        *bool
	Notes           *string
}

// ApplyPatch updates the targeted live entries in one statement on the given
// transaction. Returns the number of rows touched; callers compare it against
// the expected target count.
func (s *EntryStore) ApplyPatch(ctx context.Context, q querier, tenantID uuid.UUID, ids []uuid.UUID, patch EntryPatch) (int64, error) {
	setParts := []string{}
	var args []any

	if patch.ClientID != nil {
		args = append(args, *patch.ClientID)
		setParts = append(setParts, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if patch.WorkstreamID != nil {
		args = append(args, *patch.WorkstreamID)
		setParts = append(setParts, fmt.Sprintf("workstream_id = $%d", len(args)))
	}
	if patch.EntryDate != nil {
		args = append(args, *patch.EntryDate)
		setParts = append(setParts, fmt.Sprintf("entry_date = $%d", len(args)))
	}
	if patch.ClearStartedAt {
		setParts = append(setParts, "started_at = NULL")
	} else if patch.StartedAt != nil {
		args = append(args, *patch.StartedAt)
		setParts = append(setParts, fmt.Sprintf("started_at = $%d", len(args)))
	}
	if patch.ClearEndedAt {
		setParts = append(setParts, "ended_at = NULL")
	} else if patch.EndedAt != nil {
		args = append(args, *patch.EndedAt)
		setParts = append(setParts, fmt.Sprintf("ended_at = $%d", len(args)))
	}
	if patch.DurationMinutes != nil {
		args = append(args, *patch.DurationMinutes)
		setParts = append(setParts, fmt.Sprintf("duration_minutes = $%d", len(args)))
	}
	if patch.Billable != nil {
		args = append(args, *patch.Billable)
		setParts = append(setParts, fmt.Sprintf("billable = $%d", len(args)))
	}
	if patch.Notes != nil {
		args = append(args, *patch.Notes)
		setParts = append(setParts, fmt.Sprintf("notes = $%d", len(args)))
	}

	if len(setParts) == 0 {
		return 0, errors.New("no fields to update")
	}

	args = append(args, tenantID)
	tenantArg := len(args)
	args = append(args, ids)
	idsArg := len(args)

	query := fmt.Sprintf(`
        UPDATE %s
        SET %s, updated_at = NOW()
        WHERE tenant_id = $%d AND entry_id = ANY($%d) AND deleted_at IS NULL
    `, TimeEntriesTable, strings.Join(setParts, ", "), tenantArg, idsArg)

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("patch entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SoftDelete stamps deleted_at on a live entry. Returns ErrNotFound when the
// entry does not exist, is out of tenant, or was already deleted.
func (s *EntryStore) SoftDelete(ctx context.Context, tenantID, entryID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET deleted_at = NOW(), updated_at = NOW()
        WHERE tenant_id = $1 AND entry_id = $2 AND deleted_at IS NULL
    `, TimeEntriesTable), tenantID, entryID)
	if err != nil {
		return fmt.Errorf("soft delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (EntryRecord, error) {
	var rec EntryRecord
	if err := row.Scan(
		&rec.EntryID,
		&rec.TenantID,
		&rec.UserID,
		&rec.ClientID,
		&rec.WorkstreamID,
		&rec.EntryDate,
		&rec.StartedAt,
		&rec.EndedAt,
		&rec.DurationMinutes,
		&rec.Billable,
		&rec.Notes,
		&rec.DeletedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return EntryRecord{}, err
	}
	return rec, nil
}
