package scope

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hourledger/hourledger/platform/go/auth"
)

func TestResolveAdminAlwaysAll(t *testing.T) {
	userID := uuid.New()
	access := map[uuid.UUID][]uuid.UUID{userID: {}}

	require.True(t, Resolve(access, userID, auth.RoleFirmAdmin).Unrestricted())
	require.True(t, Resolve(access, userID, auth.RoleSuperAdmin).Unrestricted())
}

func TestResolveMemberWithoutEntryIsOpen(t *testing.T) {
	s := Resolve(map[uuid.UUID][]uuid.UUID{}, uuid.New(), auth.RoleMember)
	require.True(t, s.Unrestricted())
	require.True(t, s.AllowsClient(uuid.New(), false))
}

func TestResolveMemberWithEmptyListOnlyInternal(t *testing.T) {
	userID := uuid.New()
	s := Resolve(map[uuid.UUID][]uuid.UUID{userID: {}}, userID, auth.RoleMember)

	require.False(t, s.Unrestricted())
	require.False(t, s.AllowsClient(uuid.New(), false))
	require.True(t, s.AllowsClient(uuid.New(), true), "internal client must always be allowed")
}

func TestResolveMemberWithListRestrictsExactly(t *testing.T) {
	userID := uuid.New()
	allowed := uuid.New()
	other := uuid.New()

	s := Resolve(map[uuid.UUID][]uuid.UUID{userID: {allowed}}, userID, auth.RoleMember)

	require.True(t, s.AllowsClient(allowed, false))
	require.False(t, s.AllowsClient(other, false))
	require.True(t, s.AllowsClient(other, true))
}

func TestFilter(t *testing.T) {
	userID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	s := Resolve(map[uuid.UUID][]uuid.UUID{userID: {a, c}}, userID, auth.RoleMember)
	require.ElementsMatch(t, []uuid.UUID{a, c}, s.Filter([]uuid.UUID{a, b, c}))

	open := Resolve(nil, userID, auth.RoleMember)
	require.ElementsMatch(t, []uuid.UUID{a, b, c}, open.Filter([]uuid.UUID{a, b, c}))
}
