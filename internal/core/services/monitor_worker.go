package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// MonitorWorker reports on the orchestrator's own health and the
// throughput of the worker pool.
type MonitorWorker struct {
	*BaseWorker
	router   *TaskRouter
	registry *TaskRegistry
	started  time.Time
}

func NewMonitorWorker(logger *slog.Logger, router *TaskRouter, registry *TaskRegistry, thinking *ThinkingService) *MonitorWorker {
	w := &MonitorWorker{
		BaseWorker: newBaseWorker("monitor-worker", "monitor", logger, thinking),
		router:     router,
		registry:   registry,
		started:    time.Now(),
	}
	w.register("system_health", w.health)
	w.register("performance_analysis", w.performance)
	return w
}

func (w *MonitorWorker) health(ctx context.Context, task *domain.Task) (map[string]any, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"uptime_seconds": int64(time.Since(w.started).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"heap_mb":        mem.HeapAlloc / 1024 / 1024,
		"tasks":          w.registry.Stats(),
	}, nil
}

func (w *MonitorWorker) performance(ctx context.Context, task *domain.Task) (map[string]any, error) {
	workers := w.router.Workers()
	perWorker := make([]map[string]any, 0, len(workers))

	totalCompleted, totalFailed := 0, 0
	for _, wk := range workers {
		stats := wk.Stats()
		totalCompleted += stats.TasksCompleted
		totalFailed += stats.TasksFailed
		perWorker = append(perWorker, map[string]any{
			"name":          wk.Name(),
			"type":          wk.Type(),
			"completed":     stats.TasksCompleted,
			"failed":        stats.TasksFailed,
			"last_activity": time.Unix(stats.LastActivity, 0).UTC().Format(time.RFC3339),
		})
	}

	successRate := 1.0
	if totalCompleted+totalFailed > 0 {
		successRate = float64(totalCompleted) / float64(totalCompleted+totalFailed)
	}

	return map[string]any{
		"workers":      perWorker,
		"completed":    totalCompleted,
		"failed":       totalFailed,
		"success_rate": successRate,
	}, nil
}

var _ ports.Worker = (*MonitorWorker)(nil)
