package services

import (
	"context"
	"strings"
	"testing"

	"github.com/manthysbr/flowpilot/internal/config"
	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionService(t *testing.T) (*SessionService, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return newTestSessionServiceWithRepo(t, repo)
}

func newTestSessionServiceWithRepo(t *testing.T, repo *memRepo) (*SessionService, *memRepo) {
	t.Helper()
	t.Setenv("FLOWPILOT_SECRET_KEY", "session-service-test-key")
	secret, err := config.NewSecretKey()
	require.NoError(t, err)
	return NewSessionService(testLogger(), repo, secret), repo
}

func TestSessionService_ConfigureEncryptsKey(t *testing.T) {
	svc, repo := newTestSessionService(t)
	ctx := context.Background()

	session, err := svc.Configure(ctx, 42, "http://localhost:5678/", "n8n-api-key-123")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5678", session.N8NURL)
	assert.True(t, session.IsEncrypted)

	stored := repo.sessions[42]
	assert.True(t, strings.HasPrefix(stored.N8NAPIKey, "enc:"))
	assert.NotContains(t, stored.N8NAPIKey, "n8n-api-key-123")
}

func TestSessionService_GetMasksKey(t *testing.T) {
	svc, _ := newTestSessionService(t)
	ctx := context.Background()

	_, err := svc.Configure(ctx, 42, "http://localhost:5678", "n8n-api-key-123")
	require.NoError(t, err)

	session, masked, err := svc.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), session.UserID)
	assert.Equal(t, "****-123", masked)
}

func TestSessionService_CredentialsRoundTrip(t *testing.T) {
	svc, _ := newTestSessionService(t)
	ctx := context.Background()

	_, err := svc.Configure(ctx, 7, "https://n8n.example.com", "super-secret")
	require.NoError(t, err)

	url, key, err := svc.Credentials(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "https://n8n.example.com", url)
	assert.Equal(t, "super-secret", key)
}

func TestSessionService_ConfigureKeepsKeyWhenOmitted(t *testing.T) {
	svc, _ := newTestSessionService(t)
	ctx := context.Background()

	_, err := svc.Configure(ctx, 7, "https://old.example.com", "keep-me")
	require.NoError(t, err)

	// URL change without a new key must not wipe the stored key
	_, err = svc.Configure(ctx, 7, "https://new.example.com", "")
	require.NoError(t, err)

	url, key, err := svc.Credentials(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com", url)
	assert.Equal(t, "keep-me", key)
}

func TestSessionService_CredentialsUnconfigured(t *testing.T) {
	svc, repo := newTestSessionService(t)
	ctx := context.Background()

	_, _, err := svc.Credentials(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	repo.sessions[99] = domain.UserSession{ID: "s1", UserID: 99}
	_, _, err = svc.Credentials(ctx, 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no automation server configured")
}

func TestSessionService_ConfigureRequiresURL(t *testing.T) {
	svc, _ := newTestSessionService(t)

	_, err := svc.Configure(context.Background(), 1, "  ", "key")
	require.Error(t, err)
}
