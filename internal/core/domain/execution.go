package domain

import "time"

// ExecutionLog records one workflow run observed on the automation server.
type ExecutionLog struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	UserID      int64          `json:"user_id"`
	Status      string         `json:"status"` // success | error | running | waiting
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ExecutionStats aggregates logs for a user or workflow.
type ExecutionStats struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	AvgDuration float64 `json:"avg_duration_ms"`
}
