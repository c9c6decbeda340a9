package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReflectionLoop periodically runs a collaborative thinking pass over
// the worker pool's recent activity. Purely advisory: its output goes
// into the thinking history, never into task results.
type ReflectionLoop struct {
	logger   *slog.Logger
	router   *TaskRouter
	registry *TaskRegistry
	thinking *ThinkingService
	interval time.Duration // default 10 minutes
}

func NewReflectionLoop(logger *slog.Logger, router *TaskRouter, registry *TaskRegistry, thinking *ThinkingService, interval time.Duration) *ReflectionLoop {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ReflectionLoop{
		logger:   logger,
		router:   router,
		registry: registry,
		thinking: thinking,
		interval: interval,
	}
}

// Run starts the reflection loop. Blocks until ctx is cancelled.
func (r *ReflectionLoop) Run(ctx context.Context) error {
	r.logger.Info("reflection loop started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reflection loop stopped")
			return nil
		case <-ticker.C:
			r.reflect(ctx)
		}
	}
}

func (r *ReflectionLoop) reflect(ctx context.Context) {
	if r.thinking == nil {
		return
	}

	stats := r.registry.Stats()
	workers := r.router.Workers()
	names := make([]string, 0, len(workers))
	for _, w := range workers {
		names = append(names, w.Name())
	}

	topic := fmt.Sprintf(
		"Review recent orchestration: %d active, %d completed, %d failed tasks across %d workers. What should change?",
		stats["active"], stats["completed"], stats["failed"], len(workers),
	)

	synthesis, err := r.thinking.Collaborate(ctx, names, topic)
	if err != nil {
		r.logger.Error("reflection pass failed", "error", err)
		return
	}
	r.logger.Info("reflection pass complete", "synthesis_len", len(synthesis))
}
