package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/persistence"
	"github.com/hourledger/hourledger/platform/go/scope"
)

type mockRepository struct {
	listEntriesFn    func(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error)
	getClientsFn     func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.ClientRecord, error)
	getWorkstreamsFn func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.WorkstreamRecord, error)
	getUsersFn       func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.UserRecord, error)
	getInternalFn    func(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error)
}

func (m *mockRepository) ListEntries(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error) {
	if m.listEntriesFn == nil {
		panic("listEntriesFn not configured")
	}
	return m.listEntriesFn(ctx, params)
}

func (m *mockRepository) GetClients(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.ClientRecord, error) {
	if m.getClientsFn == nil {
		panic("getClientsFn not configured")
	}
	return m.getClientsFn(ctx, tenantID, ids)
}

func (m *mockRepository) GetWorkstreams(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.WorkstreamRecord, error) {
	if m.getWorkstreamsFn == nil {
		panic("getWorkstreamsFn not configured")
	}
	return m.getWorkstreamsFn(ctx, tenantID, ids)
}

func (m *mockRepository) GetUsers(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.UserRecord, error) {
	if m.getUsersFn == nil {
		panic("getUsersFn not configured")
	}
	return m.getUsersFn(ctx, tenantID, ids)
}

func (m *mockRepository) GetInternalClient(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error) {
	if m.getInternalFn == nil {
		panic("getInternalFn not configured")
	}
	return m.getInternalFn(ctx, tenantID)
}

type staticScopes struct {
	scope scope.Scope
}

func (s staticScopes) ResolveScope(ctx context.Context, tenantID, userID uuid.UUID, role auth.Role) (scope.Scope, error) {
	return s.scope, nil
}

func ptr[T any](v T) *T { return &v }

func TestResolveRate(t *testing.T) {
	t.Parallel()

	client := persistence.ClientRecord{DefaultBillingRate: ptr(80.0)}

	fixed := ResolveRate(persistence.WorkstreamRecord{BillingType: persistence.BillingTypeFixed, FixedFeeAmount: ptr(500.0)}, client)
	require.Equal(t, ModelFixed, fixed.Model)
	require.Equal(t, 500.0, fixed.Fixed)

	fixedUnset := ResolveRate(persistence.WorkstreamRecord{BillingType: persistence.BillingTypeFixed}, client)
	require.Equal(t, 0.0, fixedUnset.Fixed)

	hourly := ResolveRate(persistence.WorkstreamRecord{BillingType: persistence.BillingTypeHourly, BillingRate: ptr(120.0)}, client)
	require.Equal(t, ModelHourly, hourly.Model)
	require.Equal(t, 120.0, hourly.Hourly)

	fallback := ResolveRate(persistence.WorkstreamRecord{BillingType: persistence.BillingTypeHourly}, client)
	require.Equal(t, 80.0, fallback.Hourly)

	bare := ResolveRate(persistence.WorkstreamRecord{BillingType: persistence.BillingTypeHourly}, persistence.ClientRecord{})
	require.Equal(t, 0.0, bare.Hourly)
}

func entry(clientID, workstreamID, userID uuid.UUID, date string, minutes int, billable bool) persistence.EntryRecord {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return persistence.EntryRecord{
		EntryID:         uuid.New(),
		UserID:          userID,
		ClientID:        clientID,
		WorkstreamID:    workstreamID,
		EntryDate:       day,
		DurationMinutes: minutes,
		Billable:        billable,
	}
}

func TestAggregateHourlyTotals(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	wsID := uuid.New()
	userID := uuid.New()

	svc := New(&mockRepository{}, staticScopes{scope: scope.All()}, nil)
	rows := svc.aggregate(
		[]persistence.EntryRecord{
			entry(clientID, wsID, userID, "2025-05-02", 120, true),
			entry(clientID, wsID, userID, "2025-05-03", 60, true),
		},
		map[uuid.UUID]persistence.ClientRecord{clientID: {ClientID: clientID, Name: "Acme"}},
		map[uuid.UUID]persistence.WorkstreamRecord{wsID: {WorkstreamID: wsID, BillingType: persistence.BillingTypeHourly, BillingRate: ptr(100.0)}},
		map[uuid.UUID]persistence.UserRecord{userID: {UserID: userID, CostRate: ptr(40.0)}},
	)

	require.Len(t, rows, 1)
	row := rows[0]
	require.Equal(t, 3.0, row.Hours)
	require.Equal(t, 300.0, row.TotalBilling)
	require.Equal(t, 120.0, row.TotalCost)
	require.Equal(t, 100.0, row.AverageBillingRate)
	require.Equal(t, 40.0, row.AverageCost)
	require.Equal(t, 180.0, row.Profit)
	require.False(t, row.MissingRate)
}

func TestAggregateNonBillableAddsCostNotBilling(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	wsID := uuid.New()
	userID := uuid.New()

	svc := New(&mockRepository{}, staticScopes{scope: scope.All()}, nil)
	rows := svc.aggregate(
		[]persistence.EntryRecord{
			entry(clientID, wsID, userID, "2025-05-02", 60, false),
		},
		map[uuid.UUID]persistence.ClientRecord{clientID: {ClientID: clientID, Name: "Acme"}},
		map[uuid.UUID]persistence.WorkstreamRecord{wsID: {WorkstreamID: wsID, BillingType: persistence.BillingTypeHourly, BillingRate: ptr(100.0)}},
		map[uuid.UUID]persistence.UserRecord{userID: {UserID: userID, CostRate: ptr(40.0)}},
	)

	require.Len(t, rows, 1)
	require.Equal(t, 1.0, rows[0].Hours)
	require.Equal(t, 0.0, rows[0].TotalBilling)
	require.Equal(t, 40.0, rows[0].TotalCost)
	require.Equal(t, -40.0, rows[0].Profit)
	require.False(t, rows[0].MissingRate)
}

func TestAggregateFixedFeeOncePerMonth(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	wsID := uuid.New()
	userID := uuid.New()

	svc := New(&mockRepository{}, staticScopes{scope: scope.All()}, nil)
	rows := svc.aggregate(
		[]persistence.EntryRecord{
			entry(clientID, wsID, userID, "2025-05-02", 60, true),
			entry(clientID, wsID, userID, "2025-05-20", 90, true),
			entry(clientID, wsID, userID, "2025-06-01", 30, true),
		},
		map[uuid.UUID]persistence.ClientRecord{clientID: {ClientID: clientID, Name: "Acme"}},
		map[uuid.UUID]persistence.WorkstreamRecord{wsID: {WorkstreamID: wsID, BillingType: persistence.BillingTypeFixed, FixedFeeAmount: ptr(500.0)}},
		map[uuid.UUID]persistence.UserRecord{},
	)

	require.Len(t, rows, 1)
	require.Equal(t, 3.0, rows[0].Hours)
	// May charged once, June charged once.
	require.Equal(t, 1000.0, rows[0].TotalBilling)
}

func TestAggregateFlagsMissingRate(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	wsID := uuid.New()
	userID := uuid.New()

	svc := New(&mockRepository{}, staticScopes{scope: scope.All()}, nil)
	rows := svc.aggregate(
		[]persistence.EntryRecord{
			entry(clientID, wsID, userID, "2025-05-02", 60, true),
		},
		map[uuid.UUID]persistence.ClientRecord{clientID: {ClientID: clientID, Name: "Acme"}},
		map[uuid.UUID]persistence.WorkstreamRecord{wsID: {WorkstreamID: wsID, BillingType: persistence.BillingTypeHourly}},
		map[uuid.UUID]persistence.UserRecord{},
	)

	require.Len(t, rows, 1)
	require.Equal(t, 0.0, rows[0].TotalBilling)
	require.True(t, rows[0].MissingRate)
}

func TestResolveRangeNamedPeriods(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, staticScopes{scope: scope.All()}, nil)
	svc.now = func() time.Time { return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC) }

	from, to, err := svc.resolveRange(Query{Period: PeriodThisMonth})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC), to)

	from, to, err = svc.resolveRange(Query{Period: PeriodLastMonth})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC), to)

	from, to, err = svc.resolveRange(Query{Period: PeriodThisYear})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC), to)

	// Empty query defaults to the current month.
	from, _, err = svc.resolveRange(Query{})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), from)

	_, _, err = svc.resolveRange(Query{Period: "lastQuarter"})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	_, _, err = svc.resolveRange(Query{Period: PeriodThisMonth, DateFrom: &day, DateTo: &day})
	require.ErrorAs(t, err, &validation)

	earlier := day.AddDate(0, 0, -5)
	_, _, err = svc.resolveRange(Query{DateFrom: &day, DateTo: &earlier})
	require.ErrorAs(t, err, &validation)
}

func TestDashboardMemberConfinedToSelf(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := &auth.Principal{UserID: uuid.New(), Role: auth.RoleMember, TenantID: &tenantID}

	repo := &mockRepository{}
	repo.listEntriesFn = func(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error) {
		require.Equal(t, []uuid.UUID{caller.UserID}, params.UserIDs)
		return nil, nil
	}
	repo.getClientsFn = func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.ClientRecord, error) {
		return map[uuid.UUID]persistence.ClientRecord{}, nil
	}
	repo.getWorkstreamsFn = func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.WorkstreamRecord, error) {
		return map[uuid.UUID]persistence.WorkstreamRecord{}, nil
	}
	repo.getUsersFn = func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.UserRecord, error) {
		return map[uuid.UUID]persistence.UserRecord{}, nil
	}

	svc := New(repo, staticScopes{scope: scope.All()}, nil)
	_, err := svc.Dashboard(context.Background(), caller, Query{UserIDs: []uuid.UUID{uuid.New()}})
	require.NoError(t, err)
}

func TestDashboardExcludesInactiveClients(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := &auth.Principal{UserID: uuid.New(), Role: auth.RoleFirmAdmin, TenantID: &tenantID}
	activeID := uuid.New()
	inactiveID := uuid.New()
	wsID := uuid.New()

	records := []persistence.EntryRecord{
		entry(activeID, wsID, caller.UserID, "2025-05-02", 60, true),
		entry(inactiveID, wsID, caller.UserID, "2025-05-02", 60, true),
	}

	repo := &mockRepository{}
	repo.listEntriesFn = func(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error) {
		return records, nil
	}
	repo.getClientsFn = func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.ClientRecord, error) {
		return map[uuid.UUID]persistence.ClientRecord{
			activeID:   {ClientID: activeID, Name: "Active", Status: persistence.ClientStatusActive},
			inactiveID: {ClientID: inactiveID, Name: "Dormant", Status: persistence.ClientStatusInactive},
		}, nil
	}
	repo.getWorkstreamsFn = func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.WorkstreamRecord, error) {
		return map[uuid.UUID]persistence.WorkstreamRecord{
			wsID: {WorkstreamID: wsID, BillingType: persistence.BillingTypeHourly, BillingRate: ptr(100.0)},
		}, nil
	}
	repo.getUsersFn = func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.UserRecord, error) {
		return map[uuid.UUID]persistence.UserRecord{}, nil
	}

	svc := New(repo, staticScopes{scope: scope.All()}, nil)

	dash, err := svc.Dashboard(context.Background(), caller, Query{})
	require.NoError(t, err)
	require.Len(t, dash.Clients, 1)
	require.Equal(t, "Active", dash.Clients[0].Row.ClientName)
	require.Len(t, dash.Clients[0].Entries, 1)

	dash, err = svc.Dashboard(context.Background(), caller, Query{IncludeInactiveClients: true})
	require.NoError(t, err)
	require.Len(t, dash.Clients, 2)
}

func TestDashboardScopedClientFilter(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := &auth.Principal{UserID: uuid.New(), Role: auth.RoleMember, TenantID: &tenantID}
	allowedID := uuid.New()
	internalID := uuid.New()

	repo := &mockRepository{}
	repo.getInternalFn = func(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error) {
		code := persistence.InternalClientCode
		return persistence.ClientRecord{ClientID: internalID, Code: &code, Status: persistence.ClientStatusActive}, nil
	}
	repo.listEntriesFn = func(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error) {
		require.ElementsMatch(t, []uuid.UUID{allowedID, internalID}, params.ClientIDs)
		return nil, nil
	}
	repo.getClientsFn = func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.ClientRecord, error) {
		return map[uuid.UUID]persistence.ClientRecord{}, nil
	}
	repo.getWorkstreamsFn = func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.WorkstreamRecord, error) {
		return map[uuid.UUID]persistence.WorkstreamRecord{}, nil
	}
	repo.getUsersFn = func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]persistence.UserRecord, error) {
		return map[uuid.UUID]persistence.UserRecord{}, nil
	}

	svc := New(repo, staticScopes{scope: scope.Restricted([]uuid.UUID{allowedID})}, nil)
	_, err := svc.Dashboard(context.Background(), caller, Query{})
	require.NoError(t, err)
}
