package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	periodsvc "github.com/hourledger/hourledger/domains/periods/be/service"
	"github.com/hourledger/hourledger/platform/go/auth"
	"github.com/hourledger/hourledger/platform/go/persistence"
	"github.com/hourledger/hourledger/platform/go/scope"
)

type mockRepository struct {
	insertFn      func(ctx context.Context, rec persistence.EntryRecord) (persistence.EntryRecord, error)
	getFn         func(ctx context.Context, tenantID, entryID uuid.UUID) (persistence.EntryRecord, error)
	getManyFn     func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]persistence.EntryRecord, error)
	listFn        func(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error)
	updateManyFn  func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch persistence.EntryPatch, expected int) error
	softDeleteFn  func(ctx context.Context, tenantID, entryID uuid.UUID) error
	getClientFn   func(ctx context.Context, tenantID, clientID uuid.UUID) (persistence.ClientRecord, error)
	getInternalFn func(ctx context.Context, tenantID uuid.UUID) (persistence.ClientRecord, error)
	getStreamFn   func(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error)
}

func (m *mockRepository) Insert(ctx context.Context, rec persistence.EntryRecord) (persistence.EntryRecord, error) {
	if m.insertFn == nil {
		panic("insertFn not configured")
	}
	return m.insertFn(ctx, rec)
}

func (m *mockRepository) Get(ctx context.Context, tenantID, entryID uuid.UUID) (persistence.EntryRecord, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, tenantID, entryID)
}

func (m *mockRepository) GetMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]persistence.EntryRecord, error) {
	if m.getManyFn == nil {
		panic("getManyFn not configured")
	}
	return m.getManyFn(ctx, tenantID, ids)
}

func (m *mockRepository) List(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, params)
}

func (m *mockRepository) UpdateMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, patch persistence.EntryPatch, expected int) error {
	if m.updateManyFn == nil {
		panic("updateManyFn not configured")
	}
	return m.updateManyFn(ctx, tenantID, ids, patch, expected)
}

func (m *mockRepository) SoftDelete(ctx context.Context, tenantID, entryID uuid.UUID) error {
	if m.softDeleteFn == nil {
		panic("softDeleteFn not configured")
	}
	return m.softDeleteFn(ctx, tenantID, entryID)
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

func (m *mockRepository) GetWorkstream(ctx context.Context, tenantID, workstreamID uuid.UUID) (persistence.WorkstreamRecord, error) {
	if m.getStreamFn == nil {
		panic("getStreamFn not configured")
	}
	return m.getStreamFn(ctx, tenantID, workstreamID)
}

type guardFunc func(ctx context.Context, tenantID uuid.UUID, date time.Time) error

func (f guardFunc) AssertUnlocked(ctx context.Context, tenantID uuid.UUID, date time.Time) error {
	return f(ctx, tenantID, date)
}

var openGuard = guardFunc(func(ctx context.Context, tenantID uuid.UUID, date time.Time) error {
	return nil
})

type staticScopes struct {
	scope scope.Scope
}

func (s staticScopes) ResolveScope(ctx context.Context, tenantID, userID uuid.UUID, role auth.Role) (scope.Scope, error) {
	return s.scope, nil
}

func member(tenantID uuid.UUID) *auth.Principal {
	return &auth.Principal{UserID: uuid.New(), Role: auth.RoleMember, TenantID: &tenantID}
}

func admin(tenantID uuid.UUID) *auth.Principal {
	return &auth.Principal{UserID: uuid.New(), Role: auth.RoleFirmAdmin, TenantID: &tenantID}
}

func activeClient(tenantID, clientID uuid.UUID) persistence.ClientRecord {
	return persistence.ClientRecord{ClientID: clientID, TenantID: tenantID, Name: "Acme", Status: persistence.ClientStatusActive}
}

func activeStream(tenantID, clientID, streamID uuid.UUID) persistence.WorkstreamRecord {
	return persistence.WorkstreamRecord{
		WorkstreamID: streamID, TenantID: tenantID, ClientID: clientID,
		Name: "Audit", Status: persistence.WorkstreamStatusActive, BillingType: persistence.BillingTypeHourly,
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		minutes int
		ok      bool
	}{
		{"1:30", 90, true},
		{"0:45", 45, true},
		{"1.5", 90, true},
		{"2", 120, true},
		{"0.25", 15, true},
		{"", 0, false},
		{"1:75", 0, false},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		minutes, err := ParseDuration(tc.input)
		if tc.ok {
			require.NoError(t, err, tc.input)
			require.Equal(t, tc.minutes, minutes, tc.input)
		} else {
			require.Error(t, err, tc.input)
		}
	}
}

func TestDurationBetweenFloorsAtOneMinute(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	require.Equal(t, 1, DurationBetween(start, start.Add(10*time.Second)))
	require.Equal(t, 90, DurationBetween(start, start.Add(90*time.Minute)))
	require.Equal(t, 91, DurationBetween(start, start.Add(90*time.Minute+40*time.Second)))
}

func TestCreateValidatesWorkstreamBelongsToClient(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	clientID := uuid.New()
	streamID := uuid.New()
	caller := member(tenantID)

	repo := &mockRepository{}
	repo.getClientFn = func(ctx context.Context, gotTenant, gotClient uuid.UUID) (persistence.ClientRecord, error) {
		return activeClient(gotTenant, gotClient), nil
	}
	repo.getStreamFn = func(ctx context.Context, gotTenant, gotStream uuid.UUID) (persistence.WorkstreamRecord, error) {
		return activeStream(gotTenant, uuid.New(), gotStream), nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.All()}, nil)
	minutes := 60
	_, err := svc.Create(context.Background(), caller, CreateInput{
		ClientID: clientID, WorkstreamID: streamID,
		Date: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC), DurationMinutes: &minutes,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDeniedOutsideScope(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	clientID := uuid.New()
	streamID := uuid.New()
	caller := member(tenantID)

	repo := &mockRepository{}
	repo.getClientFn = func(ctx context.Context, gotTenant, gotClient uuid.UUID) (persistence.ClientRecord, error) {
		return activeClient(gotTenant, gotClient), nil
	}
	repo.getStreamFn = func(ctx context.Context, gotTenant, gotStream uuid.UUID) (persistence.WorkstreamRecord, error) {
		return activeStream(gotTenant, clientID, gotStream), nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.Restricted(nil)}, nil)
	minutes := 60
	_, err := svc.Create(context.Background(), caller, CreateInput{
		ClientID: clientID, WorkstreamID: streamID,
		Date: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC), DurationMinutes: &minutes,
	})
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestCreateRejectsLockedPeriod(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	clientID := uuid.New()
	streamID := uuid.New()
	caller := member(tenantID)

	repo := &mockRepository{}
	repo.getClientFn = func(ctx context.Context, gotTenant, gotClient uuid.UUID) (persistence.ClientRecord, error) {
		return activeClient(gotTenant, gotClient), nil
	}
	repo.getStreamFn = func(ctx context.Context, gotTenant, gotStream uuid.UUID) (persistence.WorkstreamRecord, error) {
		return activeStream(gotTenant, clientID, gotStream), nil
	}

	locked := guardFunc(func(ctx context.Context, gotTenant uuid.UUID, date time.Time) error {
		return periodsvc.ErrPeriodLocked
	})

	svc := New(repo, locked, staticScopes{scope: scope.All()}, nil)
	minutes := 60
	_, err := svc.Create(context.Background(), caller, CreateInput{
		ClientID: clientID, WorkstreamID: streamID,
		Date: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC), DurationMinutes: &minutes,
	})
	require.ErrorIs(t, err, periodsvc.ErrPeriodLocked)
}

func TestCreateInternalClientNeverBillable(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	clientID := uuid.New()
	streamID := uuid.New()
	caller := member(tenantID)
	code := persistence.InternalClientCode

	repo := &mockRepository{}
	repo.getClientFn = func(ctx context.Context, gotTenant, gotClient uuid.UUID) (persistence.ClientRecord, error) {
		c := activeClient(gotTenant, gotClient)
		c.Code = &code
		return c, nil
	}
	repo.getStreamFn = func(ctx context.Context, gotTenant, gotStream uuid.UUID) (persistence.WorkstreamRecord, error) {
		return activeStream(gotTenant, clientID, gotStream), nil
	}
	repo.insertFn = func(ctx context.Context, rec persistence.EntryRecord) (persistence.EntryRecord, error) {
		require.False(t, rec.Billable)
		return rec, nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.Restricted(nil)}, nil)
	minutes := 30
	billable := true
	entry, err := svc.Create(context.Background(), caller, CreateInput{
		ClientID: clientID, WorkstreamID: streamID,
		Date:            time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC),
		DurationMinutes: &minutes, Billable: &billable,
	})
	require.NoError(t, err)
	require.False(t, entry.Billable)
}

func TestCreateParsesDurationString(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	clientID := uuid.New()
	streamID := uuid.New()
	caller := member(tenantID)

	repo := &mockRepository{}
	repo.getClientFn = func(ctx context.Context, gotTenant, gotClient uuid.UUID) (persistence.ClientRecord, error) {
		return activeClient(gotTenant, gotClient), nil
	}
	repo.getStreamFn = func(ctx context.Context, gotTenant, gotStream uuid.UUID) (persistence.WorkstreamRecord, error) {
		return activeStream(gotTenant, clientID, gotStream), nil
	}
	repo.insertFn = func(ctx context.Context, rec persistence.EntryRecord) (persistence.EntryRecord, error) {
		require.Equal(t, 90, rec.DurationMinutes)
		require.True(t, rec.Billable)
		return rec, nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.All()}, nil)
	entry, err := svc.Create(context.Background(), caller, CreateInput{
		ClientID: clientID, WorkstreamID: streamID,
		Date: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC), Duration: "1:30",
	})
	require.NoError(t, err)
	require.Equal(t, 90, entry.DurationMinutes)
}

func TestBulkUpdateForeignEntryWithoutElevationAbortsAll(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := member(tenantID)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	repo := &mockRepository{}
	repo.getManyFn = func(ctx context.Context, gotTenant uuid.UUID, gotIDs []uuid.UUID) ([]persistence.EntryRecord, error) {
		date := time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC)
		return []persistence.EntryRecord{
			{EntryID: ids[0], TenantID: gotTenant, UserID: caller.UserID, EntryDate: date, DurationMinutes: 60},
			{EntryID: ids[1], TenantID: gotTenant, UserID: uuid.New(), EntryDate: date, DurationMinutes: 60},
			{EntryID: ids[2], TenantID: gotTenant, UserID: caller.UserID, EntryDate: date, DurationMinutes: 60},
		}, nil
	}
	repo.updateManyFn = func(ctx context.Context, gotTenant uuid.UUID, gotIDs []uuid.UUID, patch persistence.EntryPatch, expected int) error {
		t.Fatal("no write may happen when validation fails")
		return nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.All()}, nil)
	notes := "adjusted"
	_, err := svc.BulkUpdate(context.Background(), caller, ids, BulkPatch{Notes: &notes})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestBulkUpdateChecksLockOnCurrentAndNewDates(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := admin(tenantID)
	entryID := uuid.New()

	var checked []string
	guard := guardFunc(func(ctx context.Context, gotTenant uuid.UUID, date time.Time) error {
		checked = append(checked, date.Format("2006-01"))
		return nil
	})

	repo := &mockRepository{}
	repo.getManyFn = func(ctx context.Context, gotTenant uuid.UUID, gotIDs []uuid.UUID) ([]persistence.EntryRecord, error) {
		return []persistence.EntryRecord{
			{EntryID: entryID, TenantID: gotTenant, UserID: caller.UserID,
				EntryDate: time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC), DurationMinutes: 60},
		}, nil
	}
	repo.updateManyFn = func(ctx context.Context, gotTenant uuid.UUID, gotIDs []uuid.UUID, patch persistence.EntryPatch, expected int) error {
		require.Equal(t, 1, expected)
		return nil
	}

	svc := New(repo, guard, staticScopes{scope: scope.All()}, nil)
	newDate := time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC)
	_, err := svc.BulkUpdate(context.Background(), caller, []uuid.UUID{entryID}, BulkPatch{Date: &newDate})
	require.NoError(t, err)
	require.Equal(t, []string{"2025-04", "2025-06"}, checked)
}

func TestBulkUpdateWorkstreamMustMatchEffectiveClient(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := admin(tenantID)
	entryID := uuid.New()
	streamID := uuid.New()

	repo := &mockRepository{}
	repo.getManyFn = func(ctx context.Context, gotTenant uuid.UUID, gotIDs []uuid.UUID) ([]persistence.EntryRecord, error) {
		return []persistence.EntryRecord{
			{EntryID: entryID, TenantID: gotTenant, UserID: caller.UserID, ClientID: uuid.New(),
				EntryDate: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC), DurationMinutes: 60},
		}, nil
	}
	repo.getStreamFn = func(ctx context.Context, gotTenant, gotStream uuid.UUID) (persistence.WorkstreamRecord, error) {
		return activeStream(gotTenant, uuid.New(), gotStream), nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.All()}, nil)
	_, err := svc.BulkUpdate(context.Background(), caller, []uuid.UUID{entryID}, BulkPatch{WorkstreamID: &streamID})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestBulkUpdateRecomputesDurationFromRange(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := admin(tenantID)
	entryID := uuid.New()

	repo := &mockRepository{}
	repo.getManyFn = func(ctx context.Context, gotTenant uuid.UUID, gotIDs []uuid.UUID) ([]persistence.EntryRecord, error) {
		return []persistence.EntryRecord{
			{EntryID: entryID, TenantID: gotTenant, UserID: caller.UserID,
				EntryDate: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC), DurationMinutes: 60},
		}, nil
	}
	repo.updateManyFn = func(ctx context.Context, gotTenant uuid.UUID, gotIDs []uuid.UUID, patch persistence.EntryPatch, expected int) error {
		require.NotNil(t, patch.DurationMinutes)
		require.Equal(t, 45, *patch.DurationMinutes)
		return nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.All()}, nil)
	start := time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	_, err := svc.BulkUpdate(context.Background(), caller, []uuid.UUID{entryID}, BulkPatch{StartedAt: &start, EndedAt: &end})
	require.NoError(t, err)
}

func TestBulkUpdateMissingEntryAborts(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := admin(tenantID)
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	repo := &mockRepository{}
	repo.getManyFn = func(ctx context.Context, gotTenant uuid.UUID, gotIDs []uuid.UUID) ([]persistence.EntryRecord, error) {
		return []persistence.EntryRecord{
			{EntryID: ids[0], TenantID: gotTenant, UserID: caller.UserID,
				EntryDate: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC), DurationMinutes: 60},
		}, nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.All()}, nil)
	notes := "x"
	_, err := svc.BulkUpdate(context.Background(), caller, ids, BulkPatch{Notes: &notes})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRequiresOwnershipAndOpenPeriod(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := member(tenantID)
	entryID := uuid.New()

	repo := &mockRepository{}
	repo.getFn = func(ctx context.Context, gotTenant, gotEntry uuid.UUID) (persistence.EntryRecord, error) {
		return persistence.EntryRecord{EntryID: gotEntry, TenantID: gotTenant, UserID: uuid.New(),
			EntryDate: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC)}, nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.All()}, nil)
	require.ErrorIs(t, svc.Delete(context.Background(), caller, entryID), ErrForbidden)

	repo.getFn = func(ctx context.Context, gotTenant, gotEntry uuid.UUID) (persistence.EntryRecord, error) {
		return persistence.EntryRecord{EntryID: gotEntry, TenantID: gotTenant, UserID: caller.UserID,
			EntryDate: time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC)}, nil
	}
	locked := guardFunc(func(ctx context.Context, gotTenant uuid.UUID, date time.Time) error {
		return periodsvc.ErrPeriodLocked
	})
	svc = New(repo, locked, staticScopes{scope: scope.All()}, nil)
	require.ErrorIs(t, svc.Delete(context.Background(), caller, entryID), periodsvc.ErrPeriodLocked)
}

func TestListMemberConfinedToSelfAndScope(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	caller := member(tenantID)
	allowed := uuid.New()
	internalID := uuid.New()

	repo := &mockRepository{}
	repo.getInternalFn = func(ctx context.Context, gotTenant uuid.UUID) (persistence.ClientRecord, error) {
		code := persistence.InternalClientCode
		c := activeClient(gotTenant, internalID)
		c.Code = &code
		return c, nil
	}
	repo.listFn = func(ctx context.Context, params persistence.ListEntriesParams) ([]persistence.EntryRecord, error) {
		require.Equal(t, []uuid.UUID{caller.UserID}, params.UserIDs)
		require.ElementsMatch(t, []uuid.UUID{allowed, internalID}, params.ClientIDs)
		return nil, nil
	}

	svc := New(repo, openGuard, staticScopes{scope: scope.Restricted([]uuid.UUID{allowed})}, nil)
	_, err := svc.List(context.Background(), caller, ListInput{UserIDs: []uuid.UUID{uuid.New()}})
	require.NoError(t, err)
}
