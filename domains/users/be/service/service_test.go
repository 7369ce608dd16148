package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/persistence"
)

type mockRepository struct {
	createFn func(ctx context.Context, rec persistence.UserRecord) (persistence.UserRecord, error)
	getFn    func(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error)
	listFn   func(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]persistence.UserRecord, error)
	updateFn func(ctx context.Context, id uuid.UUID, params persistence.UpdateUserParams) (persistence.UserRecord, error)
}

func (m *mockRepository) Create(ctx context.Context, rec persistence.UserRecord) (persistence.UserRecord, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, rec)
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, id)
}

func (m *mockRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]persistence.UserRecord, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, tenantID, activeOnly)
}

func (m *mockRepository) Update(ctx context.Context, id uuid.UUID, params persistence.UpdateUserParams) (persistence.UserRecord, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, id, params)
}

func memberPrincipal(tenantID uuid.UUID) *auth.Principal {
	return &auth.Principal{UserID: uuid.New(), Role: auth.RoleMember, TenantID: &tenantID}
}

func adminPrincipal(tenantID uuid.UUID) *auth.Principal {
	return &auth.Principal{UserID: uuid.New(), Role: auth.RoleFirmAdmin, TenantID: &tenantID}
}

func TestGetMemberReadsOwnRecordOnly(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := memberPrincipal(tenantID)

	repo := &mockRepository{}
	repo.getFn = func(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error) {
		return persistence.UserRecord{UserID: id, TenantID: &tenantID, Role: "member", IsActive: true}, nil
	}

	svc := New(repo)

	_, err := svc.Get(context.Background(), caller, uuid.New())
	require.ErrorIs(t, err, ErrForbidden)

	u, err := svc.Get(context.Background(), caller, caller.UserID)
	require.NoError(t, err)
	require.Equal(t, caller.UserID, u.ID)
}

func TestGetHidesOtherTenants(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	otherTenant := uuid.New()
	caller := adminPrincipal(tenantID)
	targetID := uuid.New()

	repo := &mockRepository{}
	repo.getFn = func(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error) {
		return persistence.UserRecord{UserID: id, TenantID: &otherTenant, Role: "member"}, nil
	}

	svc := New(repo)
	_, err := svc.Get(context.Background(), caller, targetID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	repo := &mockRepository{}
	repo.createFn = func(ctx context.Context, rec persistence.UserRecord) (persistence.UserRecord, error) {
		require.NotNil(t, rec.TenantID)
		require.Equal(t, tenantID, *rec.TenantID)
		require.Equal(t, "member", rec.Role)
		require.True(t, rec.IsActive)
		return rec, nil
	}

	svc := New(repo)

	u, err := svc.Create(context.Background(), CreateInput{
		TenantID: tenantID,
		Subject:  "firebase|abc",
		Email:    "kim@example.com",
		FullName: "Kim Vo",
	})
	require.NoError(t, err)
	require.Equal(t, auth.RoleMember, u.Role)

	_, err = svc.Create(context.Background(), CreateInput{TenantID: tenantID, Email: "x@example.com"})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = svc.Create(context.Background(), CreateInput{
		TenantID: tenantID, Subject: "s", Email: "x@example.com", Role: auth.RoleSuperAdmin,
	})
	require.ErrorAs(t, err, &validation)
}

func TestCreateSubjectConflict(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.createFn = func(ctx context.Context, rec persistence.UserRecord) (persistence.UserRecord, error) {
		return persistence.UserRecord{}, persistence.ErrUniqueViolation
	}

	svc := New(repo)
	_, err := svc.Create(context.Background(), CreateInput{
		TenantID: uuid.New(), Subject: "dup", Email: "dup@example.com",
	})
	require.ErrorIs(t, err, ErrSubjectTaken)
}

func TestUpdateRequiresElevatedRole(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := memberPrincipal(tenantID)

	svc := New(&mockRepository{})
	active := false
	_, err := svc.Update(context.Background(), caller, caller.UserID, UpdateInput{IsActive: &active})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateRoleRestrictedToTenantRoles(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := adminPrincipal(tenantID)
	targetID := uuid.New()

	repo := &mockRepository{}
	repo.getFn = func(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error) {
		return persistence.UserRecord{UserID: id, TenantID: &tenantID, Role: "member", IsActive: true}, nil
	}

	svc := New(repo)
	super := auth.RoleSuperAdmin
	_, err := svc.Update(context.Background(), caller, targetID, UpdateInput{Role: &super})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestUpdateClearsRates(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := adminPrincipal(tenantID)
	targetID := uuid.New()

	repo := &mockRepository{}
	repo.getFn = func(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error) {
		rate := 80.0
		return persistence.UserRecord{UserID: id, TenantID: &tenantID, Role: "member", IsActive: true, CostRate: &rate}, nil
	}
	repo.updateFn = func(ctx context.Context, id uuid.UUID, params persistence.UpdateUserParams) (persistence.UserRecord, error) {
		require.True(t, params.ClearCostRate)
		require.Nil(t, params.CostRate)
		return persistence.UserRecord{UserID: id, TenantID: &tenantID, Role: "member", IsActive: true}, nil
	}

	svc := New(repo)
	u, err := svc.Update(context.Background(), caller, targetID, UpdateInput{ClearCostRate: true})
	require.NoError(t, err)
	require.Nil(t, u.CostRate)
}

func TestUpdateRejectsEmptyPatch(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := adminPrincipal(tenantID)
	targetID := uuid.New()

	repo := &mockRepository{}
	repo.getFn = func(ctx context.Context, id uuid.UUID) (persistence.UserRecord, error) {
		return persistence.UserRecord{UserID: id, TenantID: &tenantID, Role: "member", IsActive: true}, nil
	}

	svc := New(repo)
	_, err := svc.Update(context.Background(), caller, targetID, UpdateInput{})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}
