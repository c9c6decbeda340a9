package duckdb

import (
	"context"
	"database/sql"

	"github.com/manthysbr/flowpilot/internal/core/domain"
)

func (r *Repository) SaveUserWorkflow(ctx context.Context, w domain.UserWorkflow) error {
	query := `
	INSERT INTO user_workflows (id, user_id, workflow_id, template_id, workflow_name, status, created_at, last_execution, execution_count, error_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		workflow_name = excluded.workflow_name,
		status = excluded.status,
		last_execution = excluded.last_execution,
		execution_count = excluded.execution_count,
		error_count = excluded.error_count;
	`

	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.UserID, w.WorkflowID, string(w.TemplateID), w.WorkflowName,
		string(w.Status), w.CreatedAt, w.LastExecution, w.ExecutionCount, w.ErrorCount,
	)
	return err
}

const userWorkflowColumns = `id, user_id, workflow_id, template_id, workflow_name, status, created_at, last_execution, execution_count, error_count`

func (r *Repository) GetUserWorkflow(ctx context.Context, id string) (domain.UserWorkflow, error) {
	query := `SELECT ` + userWorkflowColumns + ` FROM user_workflows WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	w, err := scanUserWorkflow(row)
	if err == sql.ErrNoRows {
		return domain.UserWorkflow{}, domain.ErrWorkflowNotFound
	}
	return w, err
}

func (r *Repository) ListUserWorkflows(ctx context.Context, userID int64) ([]domain.UserWorkflow, error) {
	query := `SELECT ` + userWorkflowColumns + ` FROM user_workflows WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []domain.UserWorkflow
	for rows.Next() {
		w, err := scanUserWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

func (r *Repository) DeleteUserWorkflow(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrWorkflowNotFound
	}
	return nil
}

func scanUserWorkflow(row rowScanner) (domain.UserWorkflow, error) {
	var w domain.UserWorkflow
	var templateID, status string

	err := row.Scan(&w.ID, &w.UserID, &w.WorkflowID, &templateID, &w.WorkflowName,
		&status, &w.CreatedAt, &w.LastExecution, &w.ExecutionCount, &w.ErrorCount)
	if err != nil {
		return domain.UserWorkflow{}, err
	}

	w.TemplateID = domain.TemplateID(templateID)
	w.Status = domain.UserWorkflowStatus(status)
	return w, nil
}
