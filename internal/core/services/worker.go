package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// taskHandler executes one task subtype.
type taskHandler func(ctx context.Context, task *domain.Task) (map[string]any, error)

// BaseWorker carries the state and plumbing shared by all workers.
// Concrete workers embed it and register handlers per task type.
// Execute serializes task execution per worker; the busy flag and
// counters live behind a separate mutex so Stats never blocks on a
// running task.
type BaseWorker struct {
	name       string
	workerType string
	logger     *slog.Logger
	thinking   *ThinkingService

	execMu   sync.Mutex
	handlers map[string]taskHandler

	mu           sync.Mutex
	busy         bool
	completed    int
	failed       int
	lastActivity time.Time
}

func newBaseWorker(name, workerType string, logger *slog.Logger, thinking *ThinkingService) *BaseWorker {
	return &BaseWorker{
		name:         name,
		workerType:   workerType,
		logger:       logger.With("worker", name),
		thinking:     thinking,
		handlers:     make(map[string]taskHandler),
		lastActivity: time.Now(),
	}
}

func (w *BaseWorker) register(taskType string, h taskHandler) {
	w.handlers[taskType] = h
}

func (w *BaseWorker) Name() string { return w.name }
func (w *BaseWorker) Type() string { return w.workerType }

func (w *BaseWorker) Capabilities() []string {
	caps := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		caps = append(caps, t)
	}
	return caps
}

func (w *BaseWorker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

func (w *BaseWorker) Stats() ports.WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WorkerStats{
		TasksCompleted: w.completed,
		TasksFailed:    w.failed,
		LastActivity:   w.lastActivity.Unix(),
	}
}

// Execute runs the handler for the task's type. Tasks routed to the
// same worker run one at a time. An unknown task type is a failure
// result, not a panic.
func (w *BaseWorker) Execute(ctx context.Context, task *domain.Task) (map[string]any, error) {
	w.execMu.Lock()
	defer w.execMu.Unlock()

	w.setBusy(true)
	defer w.setBusy(false)

	handler, ok := w.handlers[task.Type]
	if !ok {
		w.recordFailure()
		return nil, fmt.Errorf("worker %s cannot handle task type %q", w.name, task.Type)
	}

	w.logger.Info("executing task", "task_id", task.ID, "type", task.Type)

	if w.thinking != nil {
		w.thinking.Record(ctx, w.name, domain.ThinkingAnalysis, domain.LevelSurface,
			fmt.Sprintf("starting %s", task.Type), task.Payload)
	}

	result, err := handler(ctx, task)
	if err != nil {
		w.recordFailure()
		w.logger.Error("task failed", "task_id", task.ID, "type", task.Type, "error", err)
		return nil, err
	}

	w.recordSuccess()
	return result, nil
}

func (w *BaseWorker) setBusy(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = v
	w.lastActivity = time.Now()
}

func (w *BaseWorker) recordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.completed++
	w.lastActivity = time.Now()
}

func (w *BaseWorker) recordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failed++
	w.lastActivity = time.Now()
}
