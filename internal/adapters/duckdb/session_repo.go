package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/manthysbr/flowpilot/internal/core/domain"
)

func (r *Repository) SaveSession(ctx context.Context, s domain.UserSession) error {
	prefsJSON, err := json.Marshal(s.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	query := `
	INSERT INTO user_sessions (id, user_id, n8n_url, n8n_api_key, is_encrypted, preferences, created_at, last_activity)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		n8n_url = excluded.n8n_url,
		n8n_api_key = excluded.n8n_api_key,
		is_encrypted = excluded.is_encrypted,
		preferences = excluded.preferences,
		last_activity = excluded.last_activity;
	`

	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.N8NURL, s.N8NAPIKey, s.IsEncrypted,
		string(prefsJSON), s.CreatedAt, s.LastActivity,
	)
	return err
}

func (r *Repository) GetSession(ctx context.Context, userID int64) (domain.UserSession, error) {
	query := `SELECT id, user_id, n8n_url, n8n_api_key, is_encrypted, CAST(preferences AS TEXT), created_at, last_activity FROM user_sessions WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)

	var s domain.UserSession
	var prefsJSON string

	err := row.Scan(&s.ID, &s.UserID, &s.N8NURL, &s.N8NAPIKey, &s.IsEncrypted,
		&prefsJSON, &s.CreatedAt, &s.LastActivity)
	if err == sql.ErrNoRows {
		return domain.UserSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.UserSession{}, err
	}

	if err := json.Unmarshal([]byte(prefsJSON), &s.Preferences); err != nil {
		return domain.UserSession{}, fmt.Errorf("failed to unmarshal preferences for user %d: %w", userID, err)
	}
	return s, nil
}
