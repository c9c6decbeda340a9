package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// ExecutionLogService records workflow runs pulled from the automation
// server and answers aggregate queries over them.
type ExecutionLogService struct {
	logger *slog.Logger
	repo   ports.Repository
}

func NewExecutionLogService(logger *slog.Logger, repo ports.Repository) *ExecutionLogService {
	return &ExecutionLogService{logger: logger, repo: repo}
}

// Record stores one execution observation.
func (s *ExecutionLogService) Record(ctx context.Context, log domain.ExecutionLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}
	if log.FinishedAt != nil && log.DurationMS == 0 {
		log.DurationMS = log.FinishedAt.Sub(log.StartedAt).Milliseconds()
	}
	return s.repo.SaveExecutionLog(ctx, log)
}

// Recent returns the latest runs for a workflow, newest first.
func (s *ExecutionLogService) Recent(ctx context.Context, workflowID string, limit int) ([]domain.ExecutionLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListExecutionLogs(ctx, workflowID, limit)
}

// Stats aggregates a user's execution history.
func (s *ExecutionLogService) Stats(ctx context.Context, userID int64) (domain.ExecutionStats, error) {
	return s.repo.ExecutionStats(ctx, userID)
}

// Sync pulls recent executions from the user's server into local logs.
func (s *ExecutionLogService) Sync(ctx context.Context, userID int64, client ports.AutomationClient, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	executions, err := client.ListExecutions(ctx, "", limit)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, ex := range executions {
		entry := domain.ExecutionLog{
			UserID:   userID,
			Metadata: ex,
		}
		if v, ok := ex["id"].(string); ok {
			entry.ID = v
		}
		if v, ok := ex["workflowId"].(string); ok {
			entry.WorkflowID = v
		}
		if v, ok := ex["status"].(string); ok {
			entry.Status = v
		}
		if v, ok := ex["startedAt"].(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				entry.StartedAt = t
			}
		}
		if v, ok := ex["stoppedAt"].(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				entry.FinishedAt = &t
			}
		}
		if err := s.Record(ctx, entry); err != nil {
			s.logger.Warn("failed to store execution", "execution_id", entry.ID, "error", err)
			continue
		}
		stored++
	}
	return stored, nil
}
