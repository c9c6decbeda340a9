package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/manthysbr/flowpilot/internal/core/domain"
)

func (r *Repository) SaveTemplate(ctx context.Context, t domain.Template) error {
	tagsJSON, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	nodesJSON, err := json.Marshal(t.NodesUsed)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	query := `
	INSERT INTO templates (id, name, description, category, complexity, json_content, download_url, author, tags, nodes_used, is_active, download_count, rating, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		category = excluded.category,
		complexity = excluded.complexity,
		json_content = excluded.json_content,
		download_url = excluded.download_url,
		author = excluded.author,
		tags = excluded.tags,
		nodes_used = excluded.nodes_used,
		is_active = excluded.is_active,
		rating = excluded.rating,
		updated_at = excluded.updated_at;
	`

	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.Name, t.Description, t.Category, t.Complexity,
		t.JSONContent, t.DownloadURL, t.Author,
		string(tagsJSON), string(nodesJSON),
		t.IsActive, t.DownloadCount, t.Rating, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

const templateColumns = `id, name, description, category, complexity, json_content, download_url, author, CAST(tags AS TEXT), CAST(nodes_used AS TEXT), is_active, download_count, rating, created_at, updated_at`

func (r *Repository) GetTemplate(ctx context.Context, id domain.TemplateID) (domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return domain.Template{}, domain.ErrTemplateNotFound
	}
	return t, err
}

func (r *Repository) SearchTemplates(ctx context.Context, f domain.TemplateFilter) ([]domain.Template, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, "is_active = true")
	if f.Query != "" {
		pattern := "%" + strings.ToLower(f.Query) + "%"
		conditions = append(conditions, "(LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	if f.Category != "" {
		conditions = append(conditions, "LOWER(category) = ?")
		args = append(args, strings.ToLower(f.Category))
	}
	if f.Complexity != "" {
		conditions = append(conditions, "LOWER(complexity) = ?")
		args = append(args, strings.ToLower(f.Complexity))
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `SELECT ` + templateColumns + ` FROM templates WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY download_count DESC, name ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.CategoryCount, error) {
	query := `SELECT category, COUNT(*) FROM templates WHERE is_active = true GROUP BY category ORDER BY COUNT(*) DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.CategoryCount
	for rows.Next() {
		var c domain.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *Repository) IncrementDownloads(ctx context.Context, id domain.TemplateID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE templates SET download_count = download_count + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (domain.Template, error) {
	var t domain.Template
	var idStr, tagsJSON, nodesJSON string

	err := row.Scan(&idStr, &t.Name, &t.Description, &t.Category, &t.Complexity,
		&t.JSONContent, &t.DownloadURL, &t.Author, &tagsJSON, &nodesJSON,
		&t.IsActive, &t.DownloadCount, &t.Rating, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Template{}, err
	}

	t.ID = domain.TemplateID(idStr)
	if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
		return domain.Template{}, fmt.Errorf("failed to unmarshal tags for template %s: %w", idStr, err)
	}
	if err := json.Unmarshal([]byte(nodesJSON), &t.NodesUsed); err != nil {
		return domain.Template{}, fmt.Errorf("failed to unmarshal nodes for template %s: %w", idStr, err)
	}
	return t, nil
}
