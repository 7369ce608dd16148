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

const ClientsTable = "clients"

// InternalClientCode marks the reserved per-tenant client used for internal,
// non-billable firm work. It never appears in client-facing lists and never
// produces billable entries.
const InternalClientCode = "__internal__"

// Client status values.
const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
)

// ClientRecord represents a row in the clients table.
type ClientRecord struct {
	ClientID           uuid.UUID
	TenantID           uuid.UUID
	Name               string
	Status             string
	Code               *string
	DefaultBillingRate *float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsInternal reports whether this is the tenant's reserved firm-work client.
func (c ClientRecord) IsInternal() bool {
	return c.Code != nil && *c.Code == InternalClientCode
}

// IsActive reports whether the client accepts new time entries.
func (c ClientRecord) IsActive() bool {
	return c.Status == ClientStatusActive
}

// ClientStore exposes persistence helpers for the clients table.
type ClientStore struct {
	pool *pgxpool.Pool
}

// NewClientStore returns a store instance bound to the pool.
func NewClientStore(pool *pgxpool.Pool) (*ClientStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ClientStore{pool: pool}, nil
}

const clientColumns = "client_id, tenant_id, name, status, code, default_billing_rate, created_at, updated_at"

// Create inserts a client row.
func (s *ClientStore) Create(ctx context.Context, rec ClientRecord) (ClientRecord, error) {
	if rec.ClientID == uuid.Nil {
		return ClientRecord{}, errors.New("client id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (client_id, tenant_id, name, status, code, default_billing_rate)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, ClientsTable, clientColumns),
		rec.ClientID,
		rec.TenantID,
		strings.TrimSpace(rec.Name),
		rec.Status,
		rec.Code,
		rec.DefaultBillingRate,
	)

	out, err := scanClient(row)
	if err != nil {
		if isUniqueViolation(err, "clients_tenant_code_unique") {
			return ClientRecord{}, ErrUniqueViolation
		}
		return ClientRecord{}, err
	}
	return out, nil
}

// GetInTenant returns a client by id, scoped to the tenant.
func (s *ClientStore) GetInTenant(ctx context.Context, tenantID, clientID uuid.UUID) (ClientRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND client_id = $2
    `, clientColumns, ClientsTable), tenantID, clientID)

	rec, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientRecord{}, ErrNotFound
		}
		return ClientRecord{}, err
	}
	return rec, nil
}

// GetInternal returns the tenant's reserved firm-work client.
func (s *ClientStore) GetInternal(ctx context.Context, tenantID uuid.UUID) (ClientRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND code = $2
    `, clientColumns, ClientsTable), tenantID, InternalClientCode)

	rec, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientRecord{}, ErrNotFound
		}
		return ClientRecord{}, err
	}
	return rec, nil
}

// ListParams controls client listing. The internal firm-work client is always
// excluded unless IncludeInternal is set (aggregation needs it).
type ListClientsParams struct {
	IncludeInactive bool
	IncludeInternal bool
}

// ListByTenant returns the tenant's clients ordered by name.
func (s *ClientStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, params ListClientsParams) ([]ClientRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1`, clientColumns, ClientsTable)
	args := []any{tenantID}

	if !params.IncludeInactive {
		query += " AND status = 'active'"
	}
	if !params.IncludeInternal {
		args = append(args, InternalClientCode)
		query += fmt.Sprintf(" AND (code IS NULL OR code <> $%d)", len(args))
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]ClientRecord, 0)
	for rows.Next() {
		rec, scanErr := scanClient(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan client: %w", scanErr)
		}
		clients = append(clients, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return clients, nil
}

// GetManyInTenant returns the requested clients keyed by id, scoped to the
// tenant. Missing ids are simply absent from the result.
func (s *ClientStore) GetManyInTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ClientRecord, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]ClientRecord{}, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND client_id = ANY($2)
    `, clientColumns, ClientsTable), tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get clients: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]ClientRecord, len(ids))
	for rows.Next() {
		rec, scanErr := scanClient(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan client: %w", scanErr)
		}
		out[rec.ClientID] = rec
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return out, nil
}

func scanClient(row pgx.Row) (ClientRecord, error) {
	var rec ClientRecord
	if err := row.Scan(
		&rec.ClientID,
		&rec.TenantID,
		&rec.Name,
		&rec.Status,
		&rec.Code,
		&rec.DefaultBillingRate,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return ClientRecord{}, err
	}
	return rec, nil
}
