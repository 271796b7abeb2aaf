package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyPair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestGenerateAndValidate(t *testing.T) {
	svc, err := NewTokenService(newKeyPair(t), nil, 15*time.Minute)
	require.NoError(t, err)

	t.Run("Should round trip subject and roles", func(t *testing.T) {
		tok, err := svc.GenerateToken("user1", []string{RoleUser})
		require.NoError(t, err)

		claims, err := svc.ValidateToken(tok)
		require.NoError(t, err)
		assert.Equal(t, "user1", claims.Subject)
		assert.Equal(t, []string{RoleUser}, claims.Roles)
	})

	t.Run("Should accept the Bearer prefix", func(t *testing.T) {
		tok, err := svc.GenerateToken("user1", []string{RoleUser})
		require.NoError(t, err)

		_, err = svc.ValidateToken("Bearer " + tok)
		assert.NoError(t, err)
	})

	t.Run("Should reject an empty token", func(t *testing.T) {
		_, err := svc.ValidateToken("")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("Should reject garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Should reject an expired token", func(t *testing.T) {
		expired, err := NewTokenService(newKeyPair(t), nil, -time.Minute)
		require.NoError(t, err)
		tok, err := expired.GenerateToken("user1", []string{RoleUser})
		require.NoError(t, err)

		_, err = expired.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("Should reject a token signed with a different key", func(t *testing.T) {
		other, err := NewTokenService(newKeyPair(t), nil, 15*time.Minute)
		require.NoError(t, err)
		tok, err := other.GenerateToken("user1", []string{RoleUser})
		require.NoError(t, err)

		_, err = svc.ValidateToken(tok)
		assert.Error(t, err)
	})
}

func TestPrincipal(t *testing.T) {
	admin := &Principal{Username: "admin1", Roles: []string{RoleAdmin}}
	user := &Principal{Username: "user1", Roles: []string{RoleUser}}

	assert.True(t, admin.IsAdmin())
	assert.False(t, user.IsAdmin())
	assert.Equal(t, []string{"ADMIN"}, admin.ExternalRoles())
	assert.Equal(t, []string{"USER"}, user.ExternalRoles())
}

func TestStripRolePrefixes(t *testing.T) {
	assert.Equal(t, []string{"USER", "ADMIN"}, StripRolePrefixes([]string{"ROLE_USER", "ROLE_ADMIN"}))
	assert.Equal(t, []string{"CUSTOM"}, StripRolePrefixes([]string{"CUSTOM"}))
	assert.Empty(t, StripRolePrefixes(nil))
}
