package api

import (
	"context"
	"testing"
	"time"

	"boothbook/internal/config"
	"boothbook/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T, secret string) *AdminAuth {
	t.Helper()
	auth, err := NewAdminAuth(config.AdminConfig{
		Username:          "admin",
		Password:          "pw",
		JWTSecret:         secret,
		SessionTTLMinutes: 60,
	}, repository.NewMemoryStore())
	require.NoError(t, err)
	return auth
}

func TestNewAdminAuthRejectsWeakConfig(t *testing.T) {
	_, err := NewAdminAuth(config.AdminConfig{Password: "pw", JWTSecret: "short"}, nil)
	assert.Error(t, err)

	_, err = NewAdminAuth(config.AdminConfig{JWTSecret: testJWTSecret}, nil)
	assert.Error(t, err)
}

func TestAdminSessionExpires(t *testing.T) {
	auth := newTestAuth(t, testJWTSecret)
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	token, session, err := auth.Login("192.0.2.1", "admin", "pw")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), session.ExpiresAt)

	got, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, session.TokenID, got.TokenID)

	now = now.Add(61 * time.Minute)
	_, err = auth.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAdminSessionForeignSecret(t *testing.T) {
	issuer := newTestAuth(t, "another-secret-of-enough-length")
	verifier := newTestAuth(t, testJWTSecret)

	token, _, err := issuer.Login("192.0.2.1", "admin", "pw")
	require.NoError(t, err)

	_, err = verifier.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAdminSessionRevoke(t *testing.T) {
	auth := newTestAuth(t, testJWTSecret)
	token, session, err := auth.Login("192.0.2.1", "admin", "pw")
	require.NoError(t, err)

	require.NoError(t, auth.Revoke(context.Background(), session))
	_, err = auth.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAdminLoginWrongUser(t *testing.T) {
	auth := newTestAuth(t, testJWTSecret)
	_, _, err := auth.Login("192.0.2.1", "root", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
