package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// WorkflowService implements the automation-server operations on top
// of a per-user client built from the session's stored credentials.
type WorkflowService struct {
	logger   *slog.Logger
	repo     ports.Repository
	sessions *SessionService
	factory  ports.ClientFactory
}

func NewWorkflowService(logger *slog.Logger, repo ports.Repository, sessions *SessionService, factory ports.ClientFactory) *WorkflowService {
	return &WorkflowService{
		logger:   logger,
		repo:     repo,
		sessions: sessions,
		factory:  factory,
	}
}

// clientFor resolves the user's session into a live client.
func (s *WorkflowService) clientFor(ctx context.Context, userID int64) (ports.AutomationClient, error) {
	url, key, err := s.sessions.Credentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving session for user %d: %w", userID, err)
	}
	return s.factory(url, key), nil
}

// ImportTemplate pushes a catalog template into the user's server and
// records the resulting workflow locally.
func (s *WorkflowService) ImportTemplate(ctx context.Context, userID int64, templateID domain.TemplateID) (domain.UserWorkflow, error) {
	tmpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return domain.UserWorkflow{}, err
	}

	var definition map[string]any
	if err := json.Unmarshal([]byte(tmpl.JSONContent), &definition); err != nil {
		return domain.UserWorkflow{}, fmt.Errorf("template %s has invalid workflow JSON: %w", templateID, err)
	}

	client, err := s.clientFor(ctx, userID)
	if err != nil {
		return domain.UserWorkflow{}, err
	}

	created, err := client.CreateWorkflow(ctx, definition)
	if err != nil {
		return domain.UserWorkflow{}, fmt.Errorf("creating workflow on server: %w", err)
	}

	remoteID, _ := created["id"].(string)
	name, _ := created["name"].(string)
	if name == "" {
		name = tmpl.Name
	}

	uw := domain.UserWorkflow{
		ID:           uuid.NewString(),
		UserID:       userID,
		WorkflowID:   remoteID,
		TemplateID:   tmpl.ID,
		WorkflowName: name,
		Status:       domain.WorkflowStatusInactive,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.SaveUserWorkflow(ctx, uw); err != nil {
		return domain.UserWorkflow{}, fmt.Errorf("recording imported workflow: %w", err)
	}

	if err := s.repo.IncrementDownloads(ctx, tmpl.ID); err != nil {
		s.logger.Warn("failed to bump download count", "template_id", tmpl.ID, "error", err)
	}

	s.logger.Info("template imported", "user_id", userID, "template_id", tmpl.ID, "workflow_id", remoteID)
	return uw, nil
}

// Export fetches the full workflow definition from the server.
func (s *WorkflowService) Export(ctx context.Context, userID int64, workflowID string) (map[string]any, error) {
	client, err := s.clientFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return client.GetWorkflow(ctx, workflowID)
}

// SetActive toggles a workflow on the server and mirrors the state in
// the local record when one exists.
func (s *WorkflowService) SetActive(ctx context.Context, userID int64, workflowID string, active bool) error {
	client, err := s.clientFor(ctx, userID)
	if err != nil {
		return err
	}

	if active {
		err = client.ActivateWorkflow(ctx, workflowID)
	} else {
		err = client.DeactivateWorkflow(ctx, workflowID)
	}
	if err != nil {
		return err
	}

	s.syncLocalStatus(ctx, userID, workflowID, active)
	return nil
}

func (s *WorkflowService) syncLocalStatus(ctx context.Context, userID int64, workflowID string, active bool) {
	records, err := s.repo.ListUserWorkflows(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to list local workflows", "user_id", userID, "error", err)
		return
	}
	for _, rec := range records {
		if rec.WorkflowID != workflowID {
			continue
		}
		rec.Status = domain.WorkflowStatusInactive
		if active {
			rec.Status = domain.WorkflowStatusActive
		}
		if err := s.repo.SaveUserWorkflow(ctx, rec); err != nil {
			s.logger.Warn("failed to sync workflow status", "workflow_id", workflowID, "error", err)
		}
		return
	}
}

// ListRemote lists workflows as the server sees them.
func (s *WorkflowService) ListRemote(ctx context.Context, userID int64, activeOnly bool) ([]map[string]any, error) {
	client, err := s.clientFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return client.ListWorkflows(ctx, activeOnly)
}

// ListLocal lists the user's locally tracked workflow records.
func (s *WorkflowService) ListLocal(ctx context.Context, userID int64) ([]domain.UserWorkflow, error) {
	return s.repo.ListUserWorkflows(ctx, userID)
}

// Monitor builds a health report: server reachability, workflow counts
// and recent execution outcomes.
func (s *WorkflowService) Monitor(ctx context.Context, userID int64) (map[string]any, error) {
	client, err := s.clientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := map[string]any{
		"checked_at": time.Now().UTC().Format(time.RFC3339),
	}

	if err := client.HealthCheck(ctx); err != nil {
		report["server_reachable"] = false
		report["server_error"] = err.Error()
		return report, nil
	}
	report["server_reachable"] = true

	workflows, err := client.ListWorkflows(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	active := 0
	for _, wf := range workflows {
		if v, ok := wf["active"].(bool); ok && v {
			active++
		}
	}
	report["workflow_count"] = len(workflows)
	report["active_count"] = active

	executions, err := client.ListExecutions(ctx, "", 50)
	if err != nil {
		s.logger.Warn("failed to list executions", "user_id", userID, "error", err)
		return report, nil
	}
	succeeded, failed := 0, 0
	for _, ex := range executions {
		switch ex["status"] {
		case "success":
			succeeded++
		case "error":
			failed++
		}
	}
	report["recent_executions"] = len(executions)
	report["recent_succeeded"] = succeeded
	report["recent_failed"] = failed
	return report, nil
}
