package domain

import (
	"errors"
	"time"
)

// UserSession holds a user's connection settings for their automation
// server. The API key is stored encrypted at rest; IsEncrypted signals
// whether N8NAPIKey currently carries ciphertext.
type UserSession struct {
	ID          string `json:"id"`
	UserID      int64  `json:"user_id"`
	N8NURL      string `json:"n8n_url,omitempty"`
	N8NAPIKey   string `json:"-"`
	IsEncrypted bool   `json:"-"`

	Preferences  map[string]any `json:"preferences,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// Configured reports whether the session has enough to reach a server.
func (s *UserSession) Configured() bool {
	return s != nil && s.N8NURL != "" && s.N8NAPIKey != ""
}

var ErrSessionNotFound = errors.New("user session not found")
