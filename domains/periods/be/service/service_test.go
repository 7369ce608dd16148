package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	lockFn       func(ctx context.Context, tenantID uuid.UUID, year int, month time.Month, lockedBy uuid.UUID) (Lock, error)
	getFn        func(ctx context.Context, tenantID, lockID uuid.UUID) (Lock, error)
	unlockFn     func(ctx context.Context, lockID, unlockedBy uuid.UUID) (Lock, error)
	findActiveFn func(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (Lock, error)
	listFn       func(ctx context.Context, tenantID uuid.UUID) ([]Lock, error)
}

func (m *mockRepository) Lock(ctx context.Context, tenantID uuid.UUID, year int, month time.Month, lockedBy uuid.UUID) (Lock, error) {
	if m.lockFn == nil {
		panic("lockFn not configured")
	}
	return m.lockFn(ctx, tenantID, year, month, lockedBy)
}

func (m *mockRepository) Get(ctx context.Context, tenantID, lockID uuid.UUID) (Lock, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, tenantID, lockID)
}

func (m *mockRepository) Unlock(ctx context.Context, lockID, unlockedBy uuid.UUID) (Lock, error) {
	if m.unlockFn == nil {
		panic("unlockFn not configured")
	}
	return m.unlockFn(ctx, lockID, unlockedBy)
}

func (m *mockRepository) FindActive(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (Lock, error) {
	if m.findActiveFn == nil {
		panic("findActiveFn not configured")
	}
	return m.findActiveFn(ctx, tenantID, year, month)
}

func (m *mockRepository) List(ctx context.Context, tenantID uuid.UUID) ([]Lock, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, tenantID)
}

func TestServiceLockValidatesPeriod(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})
	tenantID := uuid.New()
	adminID := uuid.New()

	_, err := svc.Lock(context.Background(), tenantID, 2025, time.Month(13), adminID)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = svc.Lock(context.Background(), tenantID, 1776, time.July, adminID)
	require.ErrorAs(t, err, &validation)
}

func TestServiceLockDelegatesToRepo(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	adminID := uuid.New()
	repo := &mockRepository{}
	repo.lockFn = func(ctx context.Context, gotTenant uuid.UUID, year int, month time.Month, lockedBy uuid.UUID) (Lock, error) {
		require.Equal(t, tenantID, gotTenant)
		require.Equal(t, 2025, year)
		require.Equal(t, time.March, month)
		require.Equal(t, adminID, lockedBy)
		return Lock{ID: uuid.New(), TenantID: gotTenant, Year: year, Month: month, LockedBy: lockedBy}, nil
	}

	svc := New(repo)
	lock, err := svc.Lock(context.Background(), tenantID, 2025, time.March, adminID)
	require.NoError(t, err)
	require.True(t, lock.Active())
	require.Equal(t, time.March, lock.Month)
}

func TestServiceUnlockRequiresTenantScopedLookup(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	lockID := uuid.New()
	adminID := uuid.New()

	repo := &mockRepository{}
	repo.getFn = func(ctx context.Context, gotTenant, gotLock uuid.UUID) (Lock, error) {
		require.Equal(t, tenantID, gotTenant)
		require.Equal(t, lockID, gotLock)
		return Lock{}, ErrNotFound
	}

	svc := New(repo)
	_, err := svc.Unlock(context.Background(), tenantID, lockID, adminID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceUnlockStampsMetadata(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	lockID := uuid.New()
	adminID := uuid.New()
	now := time.Date(2025, time.April, 2, 9, 0, 0, 0, time.UTC)

	repo := &mockRepository{}
	repo.getFn = func(ctx context.Context, gotTenant, gotLock uuid.UUID) (Lock, error) {
		return Lock{ID: lockID, TenantID: tenantID, Year: 2025, Month: time.March}, nil
	}
	repo.unlockFn = func(ctx context.Context, gotLock, unlockedBy uuid.UUID) (Lock, error) {
		require.Equal(t, lockID, gotLock)
		require.Equal(t, adminID, unlockedBy)
		return Lock{ID: lockID, TenantID: tenantID, Year: 2025, Month: time.March, UnlockedAt: &now, UnlockedBy: &adminID}, nil
	}

	svc := New(repo)
	lock, err := svc.Unlock(context.Background(), tenantID, lockID, adminID)
	require.NoError(t, err)
	require.False(t, lock.Active())
	require.Equal(t, &adminID, lock.UnlockedBy)
}

func TestAssertUnlockedOpenPeriod(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.findActiveFn = func(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (Lock, error) {
		return Lock{}, ErrNotFound
	}

	svc := New(repo)
	err := svc.AssertUnlocked(context.Background(), uuid.New(), time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
}

func TestAssertUnlockedBlockedPeriod(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	repo := &mockRepository{}
	repo.findActiveFn = func(ctx context.Context, gotTenant uuid.UUID, year int, month time.Month) (Lock, error) {
		require.Equal(t, tenantID, gotTenant)
		require.Equal(t, 2025, year)
		require.Equal(t, time.June, month)
		return Lock{ID: uuid.New(), TenantID: gotTenant, Year: year, Month: month}, nil
	}

	svc := New(repo)
	err := svc.AssertUnlocked(context.Background(), tenantID, time.Date(2025, time.June, 15, 23, 30, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrPeriodLocked)
	require.Contains(t, err.Error(), "2025-06")
}
