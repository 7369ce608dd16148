// Package repo adapts the persistence stores to the reports service.
package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/hourledger/hourledger/domains/reports/be/service"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// PostgresRepository reads the ledger and its reference data for aggregation.
type PostgresRepository struct {
	entries     *persistence.EntryStore
	clients     *persistence.ClientStore
	workstreams *persistence.WorkstreamStore
	users       *persistence.UserStore
}

// NewPostgresRepository wires the store dependencies.
func NewPostgresRepository(
	entries *persistence.EntryStore,
	clients *persistence.ClientStore,
	workstreams *persistence.WorkstreamStore,
	users *persistence.UserStore,
) *PostgresRepository {
	if entries == nil || clients == nil || workstreams == nil || users == nil {
		panic("all stores are required")
	}
	return &PostgresRepository{entries: entries, clients: clients, workstreams: workstreams, users: users}
}

func (r *PostgresRepository) ListEntries(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error) {
	return r.entries.List(ctx, params)
}

func (r *PostgresRepository) GetClients(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.ClientRecord, error) {
	return r.clients.GetManyInTenant(ctx, tenantID, ids)
}

func (r *PostgresRepository) GetWorkstreams(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.WorkstreamRecord, error) {
	return r.workstreams.GetManyInTenant(ctx, tenantID, ids)
}

func (r *PostgresRepository) GetUsers(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.UserRecord, error) {
	return r.users.GetManyInTenant(ctx, tenantID, ids)
}

func (r *PostgresRepository) GetInternalClient(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error) {
	return r.clients.GetInternal(ctx, tenantID)
}

var _ service.Repository = (*PostgresRepository)(nil)
