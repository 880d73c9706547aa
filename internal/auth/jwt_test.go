package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSteamID = "76561197960287930"

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 24*time.Hour, 12*time.Hour, 8*time.Hour)
}

func TestGenerateAndValidatePlayerToken(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmPlayer, testSteamID, "")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateTokenForRealm(token, RealmPlayer)
	require.NoError(t, err)
	assert.Equal(t, testSteamID, claims.Subject)
	assert.Equal(t, RealmPlayer, claims.Realm)
}

func TestGenerateAndValidateAdminToken(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmAdmin, testSteamID, RoleAnalyst)
	require.NoError(t, err)

	claims, err := mgr.ValidateTokenForRealm(token, RealmAdmin)
	require.NoError(t, err)
	assert.Equal(t, RealmAdmin, claims.Realm)
	assert.Equal(t, RoleAnalyst, claims.Role)
}

func TestGenerateAndValidateReviewerToken(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmReviewer, testSteamID, "")
	require.NoError(t, err)

	claims, err := mgr.ValidateTokenForRealm(token, RealmReviewer)
	require.NoError(t, err)
	assert.Equal(t, RealmReviewer, claims.Realm)
	assert.Empty(t, claims.Role)
}

func TestUnknownRealmRejected(t *testing.T) {
	_, err := newTestJWTManager().GenerateToken(Realm("affiliate"), testSteamID, "")
	assert.Error(t, err)
}

func TestRealmMismatchRejected(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmPlayer, testSteamID, "")
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(token, RealmReviewer)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expected realm reviewer")
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", 24*time.Hour, 12*time.Hour, 8*time.Hour)
	mgr2 := NewJWTManager("secret-2", 24*time.Hour, 12*time.Hour, 8*time.Hour)

	token, err := mgr1.GenerateToken(RealmPlayer, testSteamID, "")
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", -time.Minute, -time.Minute, -time.Minute)

	token, err := mgr.GenerateToken(RealmPlayer, testSteamID, "")
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidAdminRole(t *testing.T) {
	assert.True(t, ValidAdminRole(RoleAnalyst))
	assert.True(t, ValidAdminRole(RoleAdmin))
	assert.False(t, ValidAdminRole("superadmin"))
}
