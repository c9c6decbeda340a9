package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/flowpilot/internal/config"
	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// SessionService manages per-user automation-server credentials. API
// keys are encrypted before they reach storage and decrypted on read.
type SessionService struct {
	logger *slog.Logger
	repo   ports.Repository
	secret *config.SecretKey
}

func NewSessionService(logger *slog.Logger, repo ports.Repository, secret *config.SecretKey) *SessionService {
	return &SessionService{logger: logger, repo: repo, secret: secret}
}

// Configure stores or updates a user's server URL and API key.
func (s *SessionService) Configure(ctx context.Context, userID int64, serverURL, apiKey string) (domain.UserSession, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return domain.UserSession{}, fmt.Errorf("server URL is required")
	}

	session, err := s.repo.GetSession(ctx, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		session = domain.UserSession{
			ID:        uuid.NewString(),
			UserID:    userID,
			CreatedAt: time.Now(),
		}
	} else if err != nil {
		return domain.UserSession{}, err
	}

	session.N8NURL = serverURL
	if apiKey != "" {
		encrypted, err := s.secret.Encrypt(apiKey)
		if err != nil {
			return domain.UserSession{}, fmt.Errorf("encrypting API key: %w", err)
		}
		session.N8NAPIKey = encrypted
		session.IsEncrypted = true
	}
	session.LastActivity = time.Now()

	if err := s.repo.SaveSession(ctx, session); err != nil {
		return domain.UserSession{}, err
	}
	s.logger.Info("session configured", "user_id", userID, "server", serverURL)
	return session, nil
}

// Get returns the session with the API key masked for display.
func (s *SessionService) Get(ctx context.Context, userID int64) (domain.UserSession, string, error) {
	session, err := s.repo.GetSession(ctx, userID)
	if err != nil {
		return domain.UserSession{}, "", err
	}

	masked := ""
	if session.N8NAPIKey != "" {
		key, err := s.decryptKey(session)
		if err != nil {
			return domain.UserSession{}, "", err
		}
		masked = config.MaskSecret(key)
	}
	return session, masked, nil
}

// Credentials returns the plaintext URL and API key for building a
// client. Callers must not persist the returned key.
func (s *SessionService) Credentials(ctx context.Context, userID int64) (string, string, error) {
	session, err := s.repo.GetSession(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if !session.Configured() {
		return "", "", fmt.Errorf("user %d has no automation server configured", userID)
	}

	key, err := s.decryptKey(session)
	if err != nil {
		return "", "", err
	}
	return session.N8NURL, key, nil
}

// Touch updates last-activity without changing credentials.
func (s *SessionService) Touch(ctx context.Context, userID int64) {
	session, err := s.repo.GetSession(ctx, userID)
	if err != nil {
		return
	}
	session.LastActivity = time.Now()
	if err := s.repo.SaveSession(ctx, session); err != nil {
		s.logger.Debug("failed to touch session", "user_id", userID, "error", err)
	}
}

func (s *SessionService) decryptKey(session domain.UserSession) (string, error) {
	if !session.IsEncrypted {
		return session.N8NAPIKey, nil
	}
	key, err := s.secret.Decrypt(session.N8NAPIKey)
	if err != nil {
		return "", fmt.Errorf("decrypting API key for user %d: %w", session.UserID, err)
	}
	return key, nil
}
