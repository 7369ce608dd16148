package repo

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/hourledger/hourledger/domains/tenants/be/service"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// PostgresRepository implements the tenants repository over TenantStore.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a repository backed by TenantStore.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, rec persistence.TenantRecord) (persistence.TenantRecord, error) {
	return r.store.Create(ctx, rec)
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	return r.store.Get(ctx, id)
}

func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (persistence.TenantRecord, error) {
	return r.store.GetBySlug(ctx, slug)
}

func (r *PostgresRepository) List(ctx context.Context) ([]persistence.TenantRecord, error) {
	return r.store.List(ctx)
}

func (r *PostgresRepository) UpdateSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) error {
	return r.store.UpdateSettings(ctx, id, settings)
}

func (r *PostgresRepository) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status persistence.SubscriptionStatus) error {
	return r.store.UpdateSubscriptionStatus(ctx, id, status)
}

func (r *PostgresRepository) CountUsage(ctx context.Context, id uuid.UUID) (persistence.UsageCounts, error) {
	return r.store.CountUsage(ctx, id)
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
