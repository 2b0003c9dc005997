package middleware

import (
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(duration time.Duration) *JWTManager {
	return NewJWTManager(&JWTConfig{
		SecretKey:     "test-secret",
		TokenDuration: duration,
		SkipPaths:     []string{"/health"},
	}, log.DefaultLogger)
}

func TestJWT_RoundTrip(t *testing.T) {
	manager := newTestManager(time.Hour)

	token, err := manager.GenerateToken("user-1", "tenant-1", "member")
	require.NoError(t, err)

	claims, err := manager.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "member", claims.Role)
}

func TestJWT_RejectsWrongSecret(t *testing.T) {
	manager := newTestManager(time.Hour)
	other := NewJWTManager(&JWTConfig{SecretKey: "other-secret", TokenDuration: time.Hour}, log.DefaultLogger)

	token, err := other.GenerateToken("user-1", "tenant-1", "member")
	require.NoError(t, err)

	_, err = manager.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWT_RejectsExpiredToken(t *testing.T) {
	manager := newTestManager(-time.Minute)

	token, err := manager.GenerateToken("user-1", "tenant-1", "member")
	require.NoError(t, err)

	_, err = manager.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWT_SkipPaths(t *testing.T) {
	manager := newTestManager(time.Hour)

	assert.True(t, manager.shouldSkip("/health"))
	assert.False(t, manager.shouldSkip("/api/v1/conversations"))
}
