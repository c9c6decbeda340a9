package services

import (
	"context"
	"log/slog"
	"time"
)

// HealthMonitor periodically inspects the worker pool and warns about
// workers that have gone idle for too long.
type HealthMonitor struct {
	logger        *slog.Logger
	router        *TaskRouter
	interval      time.Duration // default 60 seconds
	idleThreshold time.Duration // default 1 hour
}

func NewHealthMonitor(logger *slog.Logger, router *TaskRouter, interval, idleThreshold time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if idleThreshold <= 0 {
		idleThreshold = time.Hour
	}
	return &HealthMonitor{
		logger:        logger,
		router:        router,
		interval:      interval,
		idleThreshold: idleThreshold,
	}
}

// Run starts the monitor loop. Blocks until ctx is cancelled.
func (h *HealthMonitor) Run(ctx context.Context) error {
	h.logger.Info("health monitor started", "interval", h.interval)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("health monitor stopped")
			return nil
		case <-ticker.C:
			h.checkWorkers()
		}
	}
}

func (h *HealthMonitor) checkWorkers() {
	now := time.Now()
	for _, w := range h.router.Workers() {
		stats := w.Stats()
		idle := now.Sub(time.Unix(stats.LastActivity, 0))
		if !w.Busy() && idle > h.idleThreshold {
			h.logger.Warn("worker idle for too long",
				"worker", w.Name(),
				"idle", idle.Round(time.Second),
				"completed", stats.TasksCompleted,
			)
		}
	}
}
