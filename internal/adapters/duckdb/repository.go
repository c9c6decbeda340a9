package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// Repository is the DuckDB-backed implementation of ports.Repository.
// Complex fields (tags, preferences, metadata) are stored as JSON text.
type Repository struct {
	db *sql.DB
}

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb at %s: %w", path, err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return repo, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL,
			description VARCHAR,
			category VARCHAR,
			complexity VARCHAR,
			json_content VARCHAR,
			download_url VARCHAR,
			author VARCHAR,
			tags VARCHAR,
			nodes_used VARCHAR,
			is_active BOOLEAN DEFAULT true,
			download_count INTEGER DEFAULT 0,
			rating DOUBLE DEFAULT 0,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_workflows (
			id VARCHAR PRIMARY KEY,
			user_id BIGINT NOT NULL,
			workflow_id VARCHAR NOT NULL,
			template_id VARCHAR,
			workflow_name VARCHAR,
			status VARCHAR,
			created_at TIMESTAMP,
			last_execution TIMESTAMP,
			execution_count INTEGER DEFAULT 0,
			error_count INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS user_sessions (
			id VARCHAR PRIMARY KEY,
			user_id BIGINT UNIQUE NOT NULL,
			n8n_url VARCHAR,
			n8n_api_key VARCHAR,
			is_encrypted BOOLEAN DEFAULT false,
			preferences VARCHAR,
			created_at TIMESTAMP,
			last_activity TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS execution_logs (
			id VARCHAR PRIMARY KEY,
			workflow_id VARCHAR,
			user_id BIGINT,
			status VARCHAR,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			duration_ms BIGINT DEFAULT 0,
			error_detail VARCHAR,
			metadata VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key VARCHAR PRIMARY KEY,
			value VARCHAR NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Settings

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}

func (r *Repository) SaveSetting(ctx context.Context, key string, value string) error {
	query := `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value;
	`
	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}

// Ensure Repository implements the storage port
var _ ports.Repository = (*Repository)(nil)
