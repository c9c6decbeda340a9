package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// CoordinatorWorker plans multi-step operations and answers questions
// about how the worker pool would split a request.
type CoordinatorWorker struct {
	*BaseWorker
	router *TaskRouter
}

func NewCoordinatorWorker(logger *slog.Logger, router *TaskRouter, thinking *ThinkingService) *CoordinatorWorker {
	w := &CoordinatorWorker{
		BaseWorker: newBaseWorker("coordinator-worker", "coordinator", logger, thinking),
		router:     router,
	}
	w.register("coordinate_agents", w.coordinate)
	w.register("plan_execution", w.plan)
	return w
}

func (w *CoordinatorWorker) coordinate(ctx context.Context, task *domain.Task) (map[string]any, error) {
	workers := w.router.Workers()
	roster := make([]map[string]any, 0, len(workers))
	for _, wk := range workers {
		stats := wk.Stats()
		roster = append(roster, map[string]any{
			"name":            wk.Name(),
			"type":            wk.Type(),
			"busy":            wk.Busy(),
			"tasks_completed": stats.TasksCompleted,
		})
	}
	return map[string]any{
		"workers":        roster,
		"coordinated_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// plan maps each requested operation to the worker type that would
// handle it, flagging the ones nothing can serve.
func (w *CoordinatorWorker) plan(ctx context.Context, task *domain.Task) (map[string]any, error) {
	ops, ok := task.Payload["operations"].([]any)
	if !ok || len(ops) == 0 {
		return nil, fmt.Errorf("plan_execution requires a non-empty operations list")
	}

	routes := w.router.Routes()
	steps := make([]map[string]any, 0, len(ops))
	for i, op := range ops {
		name, _ := op.(string)
		target, routed := routes[name]
		step := map[string]any{
			"order":     i + 1,
			"operation": name,
			"routed":    routed,
		}
		if routed {
			step["worker_type"] = target
		}
		steps = append(steps, step)
	}

	return map[string]any{
		"plan":  steps,
		"steps": len(steps),
	}, nil
}

var _ ports.Worker = (*CoordinatorWorker)(nil)
