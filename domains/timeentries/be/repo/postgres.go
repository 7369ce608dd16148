package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hourledger/hourledger/domains/timeentries/be/service"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// PostgresRepository implements the ledger repository over EntryStore plus the
// client and workstream lookup stores.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	entries     *persistence.EntryStore
	clients     *persistence.ClientStore
	workstreams *persistence.WorkstreamStore
}

// NewPostgresRepository constructs a repository backed by the given stores.
// The pool is needed directly so bulk updates run in one transaction.
func NewPostgresRepository(pool *pgxpool.Pool, entries *persistence.EntryStore, clients *persistence.ClientStore, workstreams *persistence.WorkstreamStore) *PostgresRepository {
	if pool == nil {
		panic("pool is required")
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
	return &PostgresRepository{pool: pool, entries: entries, clients: clients, workstreams: workstreams}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec persistence.EntryRecord) (persistence.EntryRecord, error) {
	return r.entries.Insert(ctx, rec)
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, entryID uuid.UUID) (persistence.EntryRecord, error) {
	return r.entries.GetInTenant(ctx, tenantID, entryID)
}

func (r *PostgresRepository) GetMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]persistence.EntryRecord, error) {
	return r.entries.GetManyInTenant(ctx, tenantID, ids)
}

func (r *PostgresRepository) List(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error) {
	return r.entries.List(ctx, params)
}

// UpdateMany applies the patch inside one transaction and commits only when
// exactly the expected number of live rows was touched.
func (r *PostgresRepository) UpdateMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch persistence.EntryPatch, expected int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bulk update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	affected, err := r.entries.ApplyPatch(ctx, tx, tenantID, ids, patch)
	if err != nil {
		return err
	}
	if affected != int64(expected) {
		return persistence.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, tenantID, entryID uuid.UUID) error {
	return r.entries.SoftDelete(ctx, tenantID, entryID)
}

func (r *PostgresRepository) GetClient(ctx context.Context, tenantID, clientID uuid.UUID) (persistence.ClientRecord, error) {
	return r.clients.GetInTenant(ctx, tenantID, clientID)
}

func (r *PostgresRepository) GetInternalClient(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error) {
	return r.clients.GetInternal(ctx, tenantID)
}

func (r *PostgresRepository) GetWorkstream(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error) {
	return r.workstreams.GetInTenant(ctx, tenantID, workstreamID)
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
