package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/hourledger/hourledger/domains/clients/be/service"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// PostgresRepository implements the clients repository over ClientStore and
// WorkstreamStore.
type PostgresRepository struct {
	clients     *persistence.ClientStore
	workstreams *persistence.WorkstreamStore
}

// NewPostgresRepository constructs a repository backed by the two stores.
func NewPostgresRepository(clients *persistence.ClientStore, workstreams *persistence.WorkstreamStore) *PostgresRepository {
	if clients == nil {
		panic("client store is required")
	}
	if workstreams == nil {
		panic("workstream store is required")
	}
	return &PostgresRepository{clients: clients, workstreams: workstreams}
}

func (r *PostgresRepository) CreateClient(ctx context.Context, rec persistence.ClientRecord) (persistence.ClientRecord, error) {
	return r.clients.Create(ctx, rec)
}

func (r *PostgresRepository) GetClient(ctx context.Context, tenantID, clientID uuid.UUID) (persistence.ClientRecord, error) {
	return r.clients.GetInTenant(ctx, tenantID, clientID)
}

func (r *PostgresRepository) GetInternalClient(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error) {
	return r.clients.GetInternal(ctx, tenantID)
}

func (r *PostgresRepository) ListClients(ctx context.Context, tenantID uuid.UUID, params persistence.ListClientsParams) ([]persistence.ClientRecord, error) {
	return r.clients.ListByTenant(ctx, tenantID, params)
}

func (r *PostgresRepository) CreateWorkstream(ctx context.Context, rec persistence.WorkstreamRecord) (persistence.WorkstreamRecord, error) {
	return r.workstreams.Create(ctx, rec)
}

func (r *PostgresRepository) GetWorkstream(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error) {
	return r.workstreams.GetInTenant(ctx, tenantID, workstreamID)
}

func (r *PostgresRepository) ListWorkstreams(ctx context.Context, tenantID, clientID uuid.UUID, includeArchived bool) ([]persistence.WorkstreamRecord, error) {
	return r.workstreams.ListByClient(ctx, tenantID, clientID, includeArchived)
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
