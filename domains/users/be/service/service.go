// Package service implements team administration: listing the tenant's users,
// provisioning new ones, and admin patches of role, active flag, and rates.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("user not found")
	ErrForbidden    = errors.New("caller may not access this user")
	ErrSubjectTaken = errors.New("identity subject already provisioned")
)

// ValidationError is returned when user inputs are malformed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid user input: " + e.Reason
}

// User is the domain model for a tenant team member.
type User struct {
	ID                 uuid.UUID
	TenantID           *uuid.UUID
	Subject            string
	Email              string
	FullName           string
	Role               auth.Role
	IsActive           bool
	CostRate           *float64
	DefaultBillingRate *float64
}

// CreateInput provisions a new team member.
type CreateInput struct {
	TenantID           uuid.UUID
	Subject            string
	Email              string
	FullName           string
	Role               auth.Role
	CostRate           *float64
	DefaultBillingRate *float64
}

// UpdateInput carries the admin-editable fields; nil leaves a field untouched.
type UpdateInput struct {
	FullName                *string
	Role                    *auth.Role
	IsActive                *bool
	CostRate                *float64
	ClearCostRate           bool
	DefaultBillingRate      *float64
	ClearDefaultBillingRate bool
}

// Repository abstracts persistence.
type Repository interface {
	Create(ctx context.Context, rec persistence.UserRecord) (persistence.UserRecord, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]persistence.UserRecord, error)
	Update(ctx context.Context, id uuid.UUID, params persistence.UpdateUserParams) (persistence.UserRecord, error)
}

// Service provides team administration operations.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("users repo is required")
	}
	return &Service{repo: repo}
}

// List returns the tenant's team. Members see the roster too; rates are
// filtered at the handler for non-elevated callers.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]User, error) {
	recs, err := s.repo.ListByTenant(ctx, tenantID, activeOnly)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, toUser(rec))
	}
	return users, nil
}

// Get returns a single user. Non-elevated callers may only read their own
// record; everyone is confined to their own tenant.
func (s *Service) Get(ctx context.Context, caller *auth.Principal, userID uuid.UUID) (User, error) {
	if !caller.Role.Elevated() && caller.UserID != userID {
		return User{}, ErrForbidden
	}

	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		return User{}, mapNotFound(err)
	}
	if !sameTenant(caller, rec.TenantID) {
		return User{}, ErrNotFound
	}
	return toUser(rec), nil
}

// Create provisions a team member. The subject links the row to the identity
// provider account; it must be unique across the platform.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	if strings.TrimSpace(input.Subject) == "" {
		return User{}, &ValidationError{Reason: "subject is required"}
	}
	if strings.TrimSpace(input.Email) == "" {
		return User{}, &ValidationError{Reason: "email is required"}
	}
	role := input.Role
	if role == "" {
		role = auth.RoleMember
	}
	if role == auth.RoleSuperAdmin {
		return User{}, &ValidationError{Reason: "super admins are not tenant users"}
	}
	if err := validateRates(input.CostRate, input.DefaultBillingRate); err != nil {
		return User{}, err
	}

	tenantID := input.TenantID
	rec, err := s.repo.Create(ctx, persistence.UserRecord{
		UserID:             uuid.New(),
		TenantID:           &tenantID,
		Subject:            input.Subject,
		Email:              input.Email,
		FullName:           input.FullName,
		Role:               string(role),
		IsActive:           true,
		CostRate:           input.CostRate,
		DefaultBillingRate: input.DefaultBillingRate,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrUniqueViolation) {
			return User{}, ErrSubjectTaken
		}
		return User{}, err
	}
	return toUser(rec), nil
}

// Update applies an admin patch to a team member. Role changes are confined
// to member/firm_admin; the super_admin role is never grantable here.
func (s *Service) Update(ctx context.Context, caller *auth.Principal, userID uuid.UUID, input UpdateInput) (User, error) {
	if !caller.Role.Elevated() {
		return User{}, ErrForbidden
	}

	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		return User{}, mapNotFound(err)
	}
	if !sameTenant(caller, rec.TenantID) {
		return User{}, ErrNotFound
	}

	params := persistence.UpdateUserParams{
		FullName:                input.FullName,
		IsActive:                input.IsActive,
		CostRate:                input.CostRate,
		ClearCostRate:           input.ClearCostRate,
		DefaultBillingRate:      input.DefaultBillingRate,
		ClearDefaultBillingRate: input.ClearDefaultBillingRate,
	}
	if input.Role != nil {
		switch *input.Role {
		case auth.RoleMember, auth.RoleFirmAdmin:
			role := string(*input.Role)
			params.Role = &role
		default:
			return User{}, &ValidationError{Reason: "role must be member or firm_admin"}
		}
	}
	if err = validateRates(input.CostRate, input.DefaultBillingRate); err != nil {
		return User{}, err
	}
	if params.FullName == nil && params.Role == nil && params.IsActive == nil &&
		params.CostRate == nil && !params.ClearCostRate &&
		params.DefaultBillingRate == nil && !params.ClearDefaultBillingRate {
		return User{}, &ValidationError{Reason: "no fields to update"}
	}

	updated, err := s.repo.Update(ctx, userID, params)
	if err != nil {
		return User{}, mapNotFound(err)
	}
	return toUser(updated), nil
}

func validateRates(costRate, billingRate *float64) error {
	if costRate != nil && *costRate < 0 {
		return &ValidationError{Reason: "cost rate must not be negative"}
	}
	if billingRate != nil && *billingRate < 0 {
		return &ValidationError{Reason: "billing rate must not be negative"}
	}
	return nil
}

func sameTenant(caller *auth.Principal, tenantID *uuid.UUID) bool {
	if caller.Role == auth.RoleSuperAdmin {
		return true
	}
	return tenantID != nil && *tenantID == caller.Tenant()
}

func toUser(rec persistence.UserRecord) User {
	return User{
		ID:                 rec.UserID,
		TenantID:           rec.TenantID,
		Subject:            rec.Subject,
		Email:              rec.Email,
		FullName:           rec.FullName,
		Role:               auth.RoleFromString(rec.Role),
		IsActive:           rec.IsActive,
		CostRate:           rec.CostRate,
		DefaultBillingRate: rec.DefaultBillingRate,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
