package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMintDevTokenRoundTrip(t *testing.T) {
	t.Parallel()

	token, err := MintDevToken(DevTokenParams{
		Subject: "dev-user-1",
		Email:   "dev@example.com",
		Name:    "Dev User",
		TTL:     time.Hour,
	})
	require.NoError(t, err)

	claims, err := UnsignedTokenVerifier()(context.Background(), token)
	require.NoError(t, err)

	identity, err := DefaultIdentityExtractor(claims)
	require.NoError(t, err)
	require.Equal(t, "dev-user-1", identity.Subject)
	require.Equal(t, "dev@example.com", identity.Email)
	require.True(t, identity.EmailVerified)
	require.NotNil(t, identity.Name)
	require.Equal(t, "Dev User", *identity.Name)
}

func TestMintDevTokenRequiresSubject(t *testing.T) {
	t.Parallel()

	_, err := MintDevToken(DevTokenParams{})
	require.Error(t, err)
}
