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

const UsersTable = "users"

// UserRecord represents a row in the users table. TenantID is nil for platform
// super admins. Rates are nullable: a missing cost rate means the user's time
// carries no cost in profitability reports.
type UserRecord struct {
	UserID             uuid.UUID
	TenantID           *uuid.UUID
	Subject            string
	Email              string
	FullName           string
	Role               string
	IsActive           bool
	CostRate           *float64
	DefaultBillingRate *float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UserStore exposes persistence helpers for the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore returns a store instance bound to the pool.
func NewUserStore(pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &UserStore{pool: pool}, nil
}

const userColumns = "user_id, tenant_id, subject, email, full_name, role, is_active, cost_rate, default_billing_rate, created_at, updated_at"

// Create inserts a user row.
func (s *UserStore) Create(ctx context.Context, rec UserRecord) (UserRecord, error) {
	if rec.UserID == uuid.Nil {
		return UserRecord{}, errors.New("user id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, tenant_id, subject, email, full_name, role, is_active, cost_rate, default_billing_rate)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING %s
    `, UsersTable, userColumns),
		rec.UserID,
		rec.TenantID,
		strings.TrimSpace(rec.Subject),
		strings.TrimSpace(rec.Email),
		strings.TrimSpace(rec.FullName),
		rec.Role,
		rec.IsActive,
		rec.CostRate,
		rec.DefaultBillingRate,
	)

	out, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err, "users_subject_unique") {
			return UserRecord{}, ErrUniqueViolation
		}
		return UserRecord{}, err
	}
	return out, nil
}

// Get returns a user by id.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE user_id = $1
    `, userColumns, UsersTable), id)
	return scanUserMapped(row)
}

// GetBySubject returns a user by identity-provider subject. Drives the
// principal-resolution middleware on every request.
func (s *UserStore) GetBySubject(ctx context.Context, subject string) (UserRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE subject = $1
    `, userColumns, UsersTable), strings.TrimSpace(subject))
	return scanUserMapped(row)
}

// ListByTenant returns the tenant's users ordered by name.
func (s *UserStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]UserRecord, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1
    `, userColumns, UsersTable)
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY full_name, email"

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]UserRecord, 0)
	for rows.Next() {
		rec, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan user: %w", scanErr)
		}
		users = append(users, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// GetManyInTenant returns the subset of ids that exist within the tenant,
// keyed by user id. Used to resolve cost rates during aggregation.
func (s *UserStore) GetManyInTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]UserRecord, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]UserRecord{}, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND user_id = ANY($2)
    `, userColumns, UsersTable), tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]UserRecord, len(ids))
	for rows.Next() {
		rec, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan user: %w", scanErr)
		}
		out[rec.UserID] = rec
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// UpdateUserParams represents admin-editable fields; nil leaves a field as is.
// ClearCostRate / ClearDefaultBillingRate null the respective column.
type UpdateUserParams struct {
	FullName                *string
	Role                    *string
	IsActive                *bool
	CostRate                *float64
	ClearCostRate           bool
	DefaultBillingRate      *float64
	ClearDefaultBillingRate bool
}

// Update applies the provided fields and returns the updated record.
func (s *UserStore) Update(ctx context.Context, id uuid.UUID, params UpdateUserParams) (UserRecord, error) {
	setParts := []string{}
	var args []any

	if params.FullName != nil {
		args = append(args, strings.TrimSpace(*params.FullName))
		setParts = append(setParts, fmt.Sprintf("full_name = $%d", len(args)))
	}
	if params.Role != nil {
		args = append(args, *params.Role)
		setParts = append(setParts, fmt.Sprintf("role = $%d", len(args)))
	}
	if params.IsActive != nil {
		args = append(args, *params.IsActive)
		setParts = append(setParts, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if params.ClearCostRate {
		setParts = append(setParts, "cost_rate = NULL")
	} else if params.CostRate != nil {
		args = append(args, *params.CostRate)
		setParts = append(setParts, fmt.Sprintf("cost_rate = $%d", len(args)))
	}
	if params.ClearDefaultBillingRate {
		setParts = append(setParts, "default_billing_rate = NULL")
	} else if params.DefaultBillingRate != nil {
		args = append(args, *params.DefaultBillingRate)
		setParts = append(setParts, fmt.Sprintf("default_billing_rate = $%d", len(args)))
	}

	if len(setParts) == 0 {
		return UserRecord{}, errors.New("no fields to update")
	}

	args = append(args, id)
	query := fmt.Sprintf(`
        UPDATE %s
        SET %s, updated_at = NOW()
        WHERE user_id = $%d
        RETURNING %s
    `, UsersTable, strings.Join(setParts, ", "), len(args), userColumns)

	return scanUserMapped(s.pool.QueryRow(ctx, query, args...))
}

func scanUserMapped(row pgx.Row) (UserRecord, error) {
	rec, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrNotFound
		}
		return UserRecord{}, err
	}
	return rec, nil
}

func scanUser(row pgx.Row) (UserRecord, error) {
	var rec UserRecord
	if err := row.Scan(
		&rec.UserID,
		&rec.TenantID,
		&rec.Subject,
		&rec.Email,
		&rec.FullName,
		&rec.Role,
		&rec.IsActive,
		&rec.CostRate,
		&rec.DefaultBillingRate,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}
