package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hourledger/hourledger/domains/timers/be/service"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// PostgresRepository implements the timers repository over TimerStore, with
// EntryStore for the stop transaction and the lookup stores for validation.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	sessions    *persistence.TimerStore
	entries     *persistence.EntryStore
	clients     *persistence.ClientStore
	workstreams *persistence.WorkstreamStore
}

// NewPostgresRepository constructs a repository backed by the given stores.
func NewPostgresRepository(pool *pgxpool.Pool, sessions *persistence.TimerStore, entries *persistence.EntryStore, clients *persistence.ClientStore, workstreams *persistence.WorkstreamStore) *PostgresRepository {
	if pool == nil {
		panic("pool is required")
	}
	if sessions == nil {
		panic("timer store is required")
	}
	if entries == nil {
		panic("entry store is required")
	}
	if clients == nil {
		panic("client store is required")
	}
	if workstreams == nil {
		panic("workstream store is required")
	}
	return &PostgresRepository{pool: pool, sessions: sessions, entries: entries, clients: clients, workstreams: workstreams}
}

func (r *PostgresRepository) InsertSession(ctx context.Context, rec persistence.SessionRecord) (persistence.SessionRecord, error) {
	return r.sessions.Insert(ctx, rec)
}

func (r *PostgresRepository) GetSession(ctx context.Context, userID uuid.UUID) (persistence.SessionRecord, error) {
	return r.sessions.GetByUser(ctx, userID)
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, userID uuid.UUID) (bool, error) {
	return r.sessions.DeleteByUser(ctx, userID)
}

// StopSession inserts the ledger entry and deletes the session in one
// transaction. If the insert fails the rollback keeps the session, so the
// user's elapsed time survives a retry.
func (r *PostgresRepository) StopSession(ctx context.Context, sessionID uuid.UUID, entry persistence.EntryRecord) (persistence.EntryRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return persistence.EntryRecord{}, fmt.Errorf("begin timer stop: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted, err := r.entries.InsertTx(ctx, tx, entry)
	if err != nil {
		return persistence.EntryRecord{}, err
	}
	if err = r.sessions.DeleteTx(ctx, tx, sessionID); err != nil {
		return persistence.EntryRecord{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return persistence.EntryRecord{}, fmt.Errorf("commit timer stop: %w", err)
	}
	return inserted, nil
}

func (r *PostgresRepository) GetClient(ctx context.Context, tenantID, clientID uuid.UUID) (persistence.ClientRecord, error) {
	return r.clients.GetInTenant(ctx, tenantID, clientID)
}

func (r *PostgresRepository) GetWorkstream(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error) {
	return r.workstreams.GetInTenant(ctx, tenantID, workstreamID)
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
