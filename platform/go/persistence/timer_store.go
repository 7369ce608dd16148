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

const TimerSessionsTable = "timer_sessions"

// SessionRecord represents a row in the timer_sessions table. The table keeps
// at most one row per user, enforced by the timer_sessions_user_unique
// constraint so concurrent starts cannot both win.
type SessionRecord struct {
	SessionID    uuid.UUID
	TenantID     uuid.UUID
	UserID       uuid.UUID
	ClientID     *uuid.UUID
	WorkstreamID *uuid.UUID
	Notes        string
	StartedAt    time.Time
}

// TimerStore exposes persistence helpers for the timer_sessions table.
type TimerStore struct {
	pool *pgxpool.Pool
}

// NewTimerStore returns a store instance bound to the pool.
func NewTimerStore(pool *pgxpool.Pool) (*TimerStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TimerStore{pool: pool}, nil
}

const sessionColumns = "session_id, tenant_id, user_id, client_id, workstream_id, notes, started_at"

// Insert creates the user's timer session. A unique violation on the user
// means a session already exists (the second of two concurrent starts).
func (s *TimerStore) Insert(ctx context.Context, rec SessionRecord) (SessionRecord, error) {
	if rec.SessionID == uuid.Nil {
		return SessionRecord{}, errors.New("session id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (session_id, tenant_id, user_id, client_id, workstream_id, notes, started_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING %s
    `, TimerSessionsTable, sessionColumns),
		rec.SessionID,
		rec.TenantID,
		rec.UserID,
		rec.ClientID,
		rec.WorkstreamID,
		rec.Notes,
		rec.StartedAt,
	)

	out, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err, "timer_sessions_user_unique") {
			return SessionRecord{}, ErrUniqueViolation
		}
		return SessionRecord{}, err
	}
	return out, nil
}

// GetByUser returns the user's running session, if any.
func (s *TimerStore) GetByUser(ctx context.Context, userID uuid.UUID) (SessionRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE user_id = $1
    `, sessionColumns, TimerSessionsTable), userID)

	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRecord{}, ErrNotFound
		}
		return SessionRecord{}, err
	}
	return rec, nil
}

// DeleteByUser removes the user's session if present. Discard is idempotent,
// so a missing session reports deleted=false without error.
func (s *TimerStore) DeleteByUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        DELETE FROM %s WHERE user_id = $1
    `, TimerSessionsTable), userID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteTx removes a specific session on the given transaction. Timer stop
// pairs this with EntryStore.InsertTx so both effects commit together; zero
// rows means the session vanished underneath the transaction.
func (s *TimerStore) DeleteTx(ctx context.Context, q querier, sessionID uuid.UUID) error {
	tag, err := q.Exec(ctx, fmt.Sprintf(`
        DELETE FROM %s WHERE session_id = $1
    `, TimerSessionsTable), sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (SessionRecord, error) {
	var rec SessionRecord
	if err := row.Scan(
		&rec.SessionID,
		&rec.TenantID,
		&rec.UserID,
		&rec.ClientID,
		&rec.WorkstreamID,
		&rec.Notes,
		&rec.StartedAt,
	); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}
