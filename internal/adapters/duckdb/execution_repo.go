package duckdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/manthysbr/flowpilot/internal/core/domain"
)

func (r *Repository) SaveExecutionLog(ctx context.Context, e domain.ExecutionLog) error {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
	INSERT INTO execution_logs (id, workflow_id, user_id, status, started_at, finished_at, duration_ms, error_detail, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		finished_at = excluded.finished_at,
		duration_ms = excluded.duration_ms,
		error_detail = excluded.error_detail,
		metadata = excluded.metadata;
	`

	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.WorkflowID, e.UserID, e.Status, e.StartedAt, e.FinishedAt,
		e.DurationMS, e.ErrorDetail, string(metaJSON),
	)
	return err
}

func (r *Repository) ListExecutionLogs(ctx context.Context, workflowID string, limit int) ([]domain.ExecutionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, workflow_id, user_id, status, started_at, finished_at, duration_ms, error_detail, CAST(metadata AS TEXT) FROM execution_logs WHERE workflow_id = ? ORDER BY started_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.ExecutionLog
	for rows.Next() {
		var e domain.ExecutionLog
		var metaJSON string
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.UserID, &e.Status, &e.StartedAt,
			&e.FinishedAt, &e.DurationMS, &e.ErrorDetail, &metaJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for execution %s: %w", e.ID, err)
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

func (r *Repository) ExecutionStats(ctx context.Context, userID int64) (domain.ExecutionStats, error) {
	query := `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE status = 'success'),
		COUNT(*) FILTER (WHERE status = 'error'),
		COALESCE(AVG(duration_ms), 0)
	FROM execution_logs WHERE user_id = ?`

	var stats domain.ExecutionStats
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.Total, &stats.Succeeded, &stats.Failed, &stats.AvgDuration,
	)
	if err != nil {
		return domain.ExecutionStats{}, err
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	return stats, nil
}
