package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/hourledger/hourledger/domains/users/be/service"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// PostgresRepository implements the users repository over UserStore.
type PostgresRepository struct {
	store *persistence.UserStore
}

// NewPostgresRepository constructs a repository backed by UserStore.
func NewPostgresRepository(store *persistence.UserStore) *PostgresRepository {
	if store == nil {
		panic("user store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, rec persistence.UserRecord) (persistence.UserRecord, error) {
	return r.store.Create(ctx, rec)
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error) {
	return r.store.Get(ctx, id)
}

func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]persistence.UserRecord, error) {
	return r.store.ListByTenant(ctx, tenantID, activeOnly)
}

func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, params persistence.UpdateUserParams) (persistence.UserRecord, error) {
	return r.store.Update(ctx, id, params)
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
