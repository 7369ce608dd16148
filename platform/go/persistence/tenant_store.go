package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const TenantsTable = "tenants"

// SubscriptionStatus mirrors the billing provider's view of a tenant account.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// Usable reports whether the subscription status permits API access.
func (s SubscriptionStatus) Usable() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// TenantRecord represents a row in the tenants table. Settings holds the raw
// jsonb document; callers parse it through the tenants service.
type TenantRecord struct {
	TenantID           uuid.UUID
	Slug               string
	DisplayName        string
	SubscriptionStatus SubscriptionStatus
	Settings           json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UsageCounts are the metered quantities reported to the billing provider.
type UsageCounts struct {
	ActiveUsers   int
	ActiveClients int // excludes the internal firm-work client
}

// TenantStore exposes persistence helpers for the tenants table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore returns a store instance bound to the pool.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

const tenantColumns = "tenant_id, slug, display_name, subscription_status, settings, created_at, updated_at"

// Create inserts a tenant registry row.
func (s *TenantStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.TenantID == uuid.Nil {
		return TenantRecord{}, errors.New("tenant id is required")
	}
	settings := rec.Settings
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, slug, display_name, subscription_status, settings)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING %s
    `, TenantsTable, tenantColumns),
		rec.TenantID,
		strings.TrimSpace(rec.Slug),
		strings.TrimSpace(rec.DisplayName),
		string(rec.SubscriptionStatus),
		settings,
	)

	out, err := scanTenant(row)
	if err != nil {
		if isUniqueViolation(err, "tenants_slug_unique") {
			return TenantRecord{}, ErrUniqueViolation
		}
		return TenantRecord{}, err
	}
	return out, nil
}

// Get returns a tenant by id.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1
    `, tenantColumns, TenantsTable), id)

	rec, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

// GetBySlug returns a tenant by its URL slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE slug = $1
    `, tenantColumns, TenantsTable), strings.TrimSpace(slug))

	rec, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

// List returns all tenants ordered by creation time. Admin tooling only.
func (s *TenantStore) List(ctx context.Context) ([]TenantRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s ORDER BY created_at
    `, tenantColumns, TenantsTable))
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]TenantRecord, 0)
	for rows.Next() {
		rec, scanErr := scanTenant(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan tenant: %w", scanErr)
		}
		tenants = append(tenants, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

// UpdateSettings replaces the settings document for a tenant. Callers perform
// the non-destructive merge before writing; the store persists the full blob.
func (s *TenantStore) UpdateSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET settings = $1, updated_at = NOW() WHERE tenant_id = $2
    `, TenantsTable), settings, id)
	if err != nil {
		return fmt.Errorf("update tenant settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSubscriptionStatus records the billing provider's latest status.
func (s *TenantStore) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status SubscriptionStatus) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET subscription_status = $1, updated_at = NOW() WHERE tenant_id = $2
    `, TenantsTable), string(status), id)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsage returns the metered quantities for the tenant: active users and
// active clients excluding the internal firm-work client.
func (s *TenantStore) CountUsage(ctx context.Context, id uuid.UUID) (UsageCounts, error) {
	var counts UsageCounts

	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT COUNT(*) FROM %s WHERE tenant_id = $1 AND is_active
    `, UsersTable), id).Scan(&counts.ActiveUsers)
	if err != nil {
		return UsageCounts{}, fmt.Errorf("count active users: %w", err)
	}

	err = s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT COUNT(*) FROM %s
        WHERE tenant_id = $1 AND status = 'active' AND (code IS NULL OR code <> $2)
    `, ClientsTable), id, InternalClientCode).Scan(&counts.ActiveClients)
	if err != nil {
		return UsageCounts{}, fmt.Errorf("count active clients: %w", err)
	}

	return counts, nil
}

func scanTenant(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	var status string
	if err := row.Scan(
		&rec.TenantID,
		&rec.Slug,
		&rec.DisplayName,
		&status,
		&rec.Settings,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return TenantRecord{}, err
	}
	rec.SubscriptionStatus = SubscriptionStatus(status)
	return rec, nil
}
