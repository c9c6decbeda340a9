package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// ServerWorker handles operations against the user's automation server:
// importing templates, exporting and toggling workflows, and monitoring.
type ServerWorker struct {
	*BaseWorker
	workflows *WorkflowService
}

func NewServerWorker(logger *slog.Logger, workflows *WorkflowService, thinking *ThinkingService) *ServerWorker {
	w := &ServerWorker{
		BaseWorker: newBaseWorker("server-worker", "server", logger, thinking),
		workflows:  workflows,
	}
	w.register("import_template", w.importTemplate)
	w.register("export_workflow", w.exportWorkflow)
	w.register("activate_workflow", w.activateWorkflow)
	w.register("deactivate_workflow", w.deactivateWorkflow)
	w.register("get_workflows", w.getWorkflows)
	w.register("monitor_system", w.monitorSystem)
	return w
}

func (w *ServerWorker) importTemplate(ctx context.Context, task *domain.Task) (map[string]any, error) {
	userID := int64Param(task.Payload, "user_id")
	templateID := domain.TemplateID(stringParam(task.Payload, "template_id"))
	if templateID == "" {
		return nil, fmt.Errorf("import_template requires template_id")
	}

	uw, err := w.workflows.ImportTemplate(ctx, userID, templateID)
	if err != nil {
		return nil, fmt.Errorf("importing template %s: %w", templateID, err)
	}

	return map[string]any{
		"workflow_id":   uw.WorkflowID,
		"workflow_name": uw.WorkflowName,
		"status":        string(uw.Status),
	}, nil
}

func (w *ServerWorker) exportWorkflow(ctx context.Context, task *domain.Task) (map[string]any, error) {
	userID := int64Param(task.Payload, "user_id")
	workflowID := stringParam(task.Payload, "workflow_id")
	if workflowID == "" {
		return nil, fmt.Errorf("export_workflow requires workflow_id")
	}

	definition, err := w.workflows.Export(ctx, userID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("exporting workflow %s: %w", workflowID, err)
	}

	return map[string]any{
		"workflow_id": workflowID,
		"definition":  definition,
	}, nil
}

func (w *ServerWorker) activateWorkflow(ctx context.Context, task *domain.Task) (map[string]any, error) {
	return w.toggle(ctx, task, true)
}

func (w *ServerWorker) deactivateWorkflow(ctx context.Context, task *domain.Task) (map[string]any, error) {
	return w.toggle(ctx, task, false)
}

func (w *ServerWorker) toggle(ctx context.Context, task *domain.Task, active bool) (map[string]any, error) {
	userID := int64Param(task.Payload, "user_id")
	workflowID := stringParam(task.Payload, "workflow_id")
	if workflowID == "" {
		return nil, fmt.Errorf("workflow toggle requires workflow_id")
	}

	if err := w.workflows.SetActive(ctx, userID, workflowID, active); err != nil {
		return nil, fmt.Errorf("toggling workflow %s: %w", workflowID, err)
	}

	status := domain.WorkflowStatusInactive
	if active {
		status = domain.WorkflowStatusActive
	}
	return map[string]any{
		"workflow_id": workflowID,
		"status":      string(status),
	}, nil
}

func (w *ServerWorker) getWorkflows(ctx context.Context, task *domain.Task) (map[string]any, error) {
	userID := int64Param(task.Payload, "user_id")
	activeOnly := boolParam(task.Payload, "active_only")

	list, err := w.workflows.ListRemote(ctx, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}

	return map[string]any{
		"workflows": list,
		"count":     len(list),
	}, nil
}

func (w *ServerWorker) monitorSystem(ctx context.Context, task *domain.Task) (map[string]any, error) {
	userID := int64Param(task.Payload, "user_id")

	report, err := w.workflows.Monitor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("monitoring automation server: %w", err)
	}
	return report, nil
}

func int64Param(payload map[string]any, key string) int64 {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func boolParam(payload map[string]any, key string) bool {
	if payload == nil {
		return false
	}
	v, _ := payload[key].(bool)
	return v
}

var _ ports.Worker = (*ServerWorker)(nil)
