package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/persistence"
	"github.com/hourledger/hourledger/platform/go/scope"
)

type mockRepository struct {
	createClientFn    func(ctx context.Context, rec persistence.ClientRecord) (persistence.ClientRecord, error)
	getClientFn       func(ctx context.Context, tenantID, clientID uuid.UUID) (persistence.ClientRecord, error)
	getInternalFn     func(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error)
	listClientsFn     func(ctx context.Context, tenantID uuid.UUID, params persistence.ListClientsParams) ([]persistence.ClientRecord, error)
	createStreamFn    func(ctx context.Context, rec persistence.WorkstreamRecord) (persistence.WorkstreamRecord, error)
	getWorkstreamFn   func(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error)
	listWorkstreamsFn func(ctx context.Context, tenantID, clientID uuid.UUID, includeArchived bool) ([]persistence.WorkstreamRecord, error)
}

func (m *mockRepository) CreateClient(ctx context.Context, rec persistence.ClientRecord) (persistence.ClientRecord, error) {
	if m.createClientFn == nil {
		panic("createClientFn not configured")
	}
	return m.createClientFn(ctx, rec)
}

func (m *mockRepository) GetClient(ctx context.Context, tenantID, clientID uuid.UUID) (persistence.ClientRecord, error) {
	if m.getClientFn == nil {
		panic("getClientFn not configured")
	}
	return m.getClientFn(ctx, tenantID, clientID)
}

func (m *mockRepository) GetInternalClient(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error) {
	if m.getInternalFn == nil {
		panic("getInternalFn not configured")
	}
	return m.getInternalFn(ctx, tenantID)
}

func (m *mockRepository) ListClients(ctx context.Context, tenantID uuid.UUID, params persistence.ListClientsParams) ([]persistence.ClientRecord, error) {
	if m.listClientsFn == nil {
		panic("listClientsFn not configured")
	}
	return m.listClientsFn(ctx, tenantID, params)
}

func (m *mockRepository) CreateWorkstream(ctx context.Context, rec persistence.WorkstreamRecord) (persistence.WorkstreamRecord, error) {
	if m.createStreamFn == nil {
		panic("createStreamFn not configured")
	}
	return m.createStreamFn(ctx, rec)
}

func (m *mockRepository) GetWorkstream(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error) {
	if m.getWorkstreamFn == nil {
		panic("getWorkstreamFn not configured")
	}
	return m.getWorkstreamFn(ctx, tenantID, workstreamID)
}

func (m *mockRepository) ListWorkstreams(ctx context.Context, tenantID, clientID uuid.UUID, includeArchived bool) ([]persistence.WorkstreamRecord, error) {
	if m.listWorkstreamsFn == nil {
		panic("listWorkstreamsFn not configured")
	}
	return m.listWorkstreamsFn(ctx, tenantID, clientID, includeArchived)
}

type staticScopes struct {
	scope scope.Scope
}

func (s staticScopes) ResolveScope(ctx context.Context, tenantID, userID uuid.UUID, role auth.Role) (scope.Scope, error) {
	return s.scope, nil
}

func principal(tenantID uuid.UUID, role auth.Role) *auth.Principal {
	return &auth.Principal{UserID: uuid.New(), Role: role, TenantID: &tenantID}
}

func TestListFiltersByScope(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	allowed := uuid.New()
	denied := uuid.New()

	repo := &mockRepository{}
	repo.listClientsFn = func(ctx context.Context, gotTenant uuid.UUID, params persistence.ListClientsParams) ([]persistence.ClientRecord, error) {
		require.Equal(t, tenantID, gotTenant)
		require.False(t, params.IncludeInternal)
		return []persistence.ClientRecord{
			{ClientID: allowed, TenantID: gotTenant, Name: "Allowed", Status: persistence.ClientStatusActive},
			{ClientID: denied, TenantID: gotTenant, Name: "Denied", Status: persistence.ClientStatusActive},
		}, nil
	}

	svc := New(repo, staticScopes{scope: scope.Restricted([]uuid.UUID{allowed})})
	clients, err := svc.List(context.Background(), principal(tenantID, auth.RoleMember), false)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	require.Equal(t, allowed, clients[0].ID)
}

func TestGetDeniedOutsideScope(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	clientID := uuid.New()

	repo := &mockRepository{}
	repo.getClientFn = func(ctx context.Context, gotTenant, gotClient uuid.UUID) (persistence.ClientRecord, error) {
		return persistence.ClientRecord{ClientID: gotClient, TenantID: gotTenant, Status: persistence.ClientStatusActive}, nil
	}

	svc := New(repo, staticScopes{scope: scope.Restricted(nil)})
	_, err := svc.Get(context.Background(), principal(tenantID, auth.RoleMember), clientID)
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestGetInternalAlwaysAllowed(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	clientID := uuid.New()
	code := persistence.InternalClientCode

	repo := &mockRepository{}
	repo.getClientFn = func(ctx context.Context, gotTenant, gotClient uuid.UUID) (persistence.ClientRecord, error) {
		return persistence.ClientRecord{ClientID: gotClient, TenantID: gotTenant, Code: &code, Status: persistence.ClientStatusActive}, nil
	}

	svc := New(repo, staticScopes{scope: scope.Restricted(nil)})
	c, err := svc.Get(context.Background(), principal(tenantID, auth.RoleMember), clientID)
	require.NoError(t, err)
	require.True(t, c.Internal)
}

func TestCreateClientRejectsReservedCode(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, staticScopes{scope: scope.All()})
	code := persistence.InternalClientCode
	_, err := svc.CreateClient(context.Background(), uuid.New(), CreateClientInput{Name: "Acme", Code: &code})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestCreateClientCodeConflict(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.createClientFn = func(ctx context.Context, rec persistence.ClientRecord) (persistence.ClientRecord, error) {
		return persistence.ClientRecord{}, persistence.ErrUniqueViolation
	}

	svc := New(repo, staticScopes{scope: scope.All()})
	code := "ACME"
	_, err := svc.CreateClient(context.Background(), uuid.New(), CreateClientInput{Name: "Acme", Code: &code})
	require.ErrorIs(t, err, ErrCodeTaken)
}

func TestCreateWorkstreamValidatesBillingType(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, staticScopes{scope: scope.All()})
	_, err := svc.CreateWorkstream(context.Background(), uuid.New(), CreateWorkstreamInput{
		ClientID:    uuid.New(),
		Name:        "Audit",
		BillingType: "retainer",
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestCreateWorkstreamRequiresActiveClient(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	clientID := uuid.New()

	repo := &mockRepository{}
	repo.getClientFn = func(ctx context.Context, gotTenant, gotClient uuid.UUID) (persistence.ClientRecord, error) {
		return persistence.ClientRecord{ClientID: gotClient, TenantID: gotTenant, Status: persistence.ClientStatusInactive}, nil
	}

	svc := New(repo, staticScopes{scope: scope.All()})
	_, err := svc.CreateWorkstream(context.Background(), tenantID, CreateWorkstreamInput{
		ClientID:    clientID,
		Name:        "Audit",
		BillingType: persistence.BillingTypeHourly,
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestEnsureInternalClientIdempotent(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	code := persistence.InternalClientCode
	existing := persistence.ClientRecord{ClientID: uuid.New(), TenantID: tenantID, Name: "Internal", Code: &code, Status: persistence.ClientStatusActive}

	repo := &mockRepository{}
	repo.getInternalFn = func(ctx context.Context, gotTenant uuid.UUID) (persistence.ClientRecord, error) {
		return existing, nil
	}

	svc := New(repo, staticScopes{scope: scope.All()})
	c, err := svc.EnsureInternalClient(context.Background(), tenantID)
	require.NoError(t, err)
	require.Equal(t, existing.ClientID, c.ID)
	require.True(t, c.Internal)
}
