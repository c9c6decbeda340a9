package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/flowpilot/internal/core/domain"
)

type memSettingsRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memSettingsRepo) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", errors.New("setting not found")
	}
	return v, nil
}

func (m *memSettingsRepo) SaveSetting(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func newTestStore(t *testing.T) *SettingsStore {
	t.Helper()
	t.Setenv("FLOWPILOT_SECRET_KEY", "test-secret-key-for-unit-tests")
	sk, err := NewSecretKey()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := NewSettingsStore(logger, &memSettingsRepo{values: map[string]string{}}, sk)
	require.NoError(t, err)
	return store
}

func TestSettingsStore_UpdatePersistsAndReads(t *testing.T) {
	store := newTestStore(t)

	cfg := store.GetConfig()
	cfg.Providers.LLM.Mode = "ollama"
	require.NoError(t, store.UpdateConfig(context.Background(), cfg))

	assert.Equal(t, "ollama", store.GetConfig().Providers.LLM.Mode)
}

func TestSettingsStore_CallbackCanReadConfig(t *testing.T) {
	store := newTestStore(t)

	seen := make(chan string, 1)
	store.OnChange(func(cfg *domain.AppConfig) {
		// Reading the store from inside a callback must not deadlock.
		seen <- store.GetConfig().Providers.LLM.Mode
	})

	cfg := store.GetConfig()
	cfg.Providers.LLM.Mode = "ollama"

	done := make(chan error, 1)
	go func() { done <- store.UpdateConfig(context.Background(), cfg) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("UpdateConfig did not return, callback deadlocked")
	}
	assert.Equal(t, "ollama", <-seen)
}

func TestSettingsStore_RemoteModeRequiresURL(t *testing.T) {
	store := newTestStore(t)

	cfg := store.GetConfig()
	cfg.Providers.LLM.Mode = "remote"
	cfg.Providers.LLM.RemoteURL = ""
	err := store.UpdateConfig(context.Background(), cfg)
	assert.Error(t, err)
}
