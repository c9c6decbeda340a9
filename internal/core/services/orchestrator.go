package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
	"golang.org/x/sync/semaphore"
)

// OrchestratorConfig defines queue and concurrency limits
type OrchestratorConfig struct {
	QueueCapacity int
	MaxConcurrent int64
	PollInterval  time.Duration
}

// Orchestrator accepts tasks, routes them to workers and tracks their
// lifecycle. The queue is a bounded channel; a full queue rejects the
// submission instead of blocking the caller.
type Orchestrator struct {
	logger   *slog.Logger
	router   *TaskRouter
	registry *TaskRegistry
	events   *EventBus

	pendingQueue chan *domain.Task
	semaphore    *semaphore.Weighted
	pollInterval time.Duration

	started   time.Time
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

func NewOrchestrator(logger *slog.Logger, router *TaskRouter, registry *TaskRegistry, events *EventBus, cfg OrchestratorConfig) *Orchestrator {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 256
	}
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 8
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	return &Orchestrator{
		logger:       logger,
		router:       router,
		registry:     registry,
		events:       events,
		pendingQueue: make(chan *domain.Task, capacity),
		semaphore:    semaphore.NewWeighted(limit),
		pollInterval: poll,
		started:      time.Now(),
	}
}

// Submit enqueues a task and returns its ID. The task is tracked as
// PENDING before it hits the queue so Status can see it immediately.
func (o *Orchestrator) Submit(ctx context.Context, taskType string, payload map[string]any, priority domain.TaskPriority, pinned string) (domain.TaskID, error) {
	if priority < domain.PriorityCritical || priority > domain.PriorityLow {
		priority = domain.PriorityMedium
	}

	task := &domain.Task{
		ID:           domain.NewTaskID(),
		Type:         taskType,
		Payload:      payload,
		Priority:     priority,
		PinnedWorker: pinned,
		Status:       domain.TaskStatusPending,
		CreatedAt:    time.Now(),
	}

	o.registry.Track(task)
	o.submitted.Add(1)

	select {
	case o.pendingQueue <- task:
		o.logger.Info("task submitted", "task_id", task.ID, "type", taskType, "priority", priority)
		o.publish(task.ID, "queued", "")
		return task.ID, nil
	default:
		o.registry.Reject(task, "queue full")
		o.failed.Add(1)
		return task.ID, domain.ErrQueueFull
	}
}

// Start consumes the queue until ctx is cancelled. Each task runs in
// its own goroutine, bounded by the semaphore.
func (o *Orchestrator) Start(ctx context.Context) {
	o.logger.Info("starting orchestrator", "queue_capacity", cap(o.pendingQueue))

	go func() {
		for {
			select {
			case <-ctx.Done():
				o.logger.Info("stopping orchestrator")
				return
			case task := <-o.pendingQueue:
				worker := o.router.Resolve(task)
				if worker == nil {
					o.registry.Reject(task, fmt.Sprintf("no suitable worker for task type %q", task.Type))
					o.failed.Add(1)
					o.publish(task.ID, "failed", "no suitable worker")
					continue
				}

				if err := o.semaphore.Acquire(ctx, 1); err != nil {
					// The task was already dequeued; put it back so a
					// later Start picks it up, or fail it if the queue
					// filled up in the meantime.
					select {
					case o.pendingQueue <- task:
						o.logger.Info("requeued task on shutdown", "task_id", task.ID)
					default:
						o.registry.Reject(task, "dispatcher stopped before execution")
						o.failed.Add(1)
						o.publish(task.ID, "failed", "dispatcher stopped")
					}
					return
				}

				o.registry.MarkStarted(task.ID, worker.Name())
				o.publish(task.ID, "in_progress", worker.Name())

				go func(t *domain.Task, w ports.Worker) {
					defer o.semaphore.Release(1)
					o.execute(ctx, t, w)
				}(task, worker)
			}
		}
	}()
}

func (o *Orchestrator) execute(ctx context.Context, task *domain.Task, worker ports.Worker) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("worker panicked", "task_id", task.ID, "worker", worker.Name(), "panic", r)
			o.registry.Fail(task.ID, fmt.Sprintf("worker panic: %v", r))
			o.failed.Add(1)
			o.publish(task.ID, "failed", fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err := worker.Execute(ctx, task)
	if err != nil {
		o.registry.Fail(task.ID, err.Error())
		o.failed.Add(1)
		o.publish(task.ID, "failed", err.Error())
		return
	}

	o.registry.Complete(task.ID, result)
	o.completed.Add(1)
	o.publish(task.ID, "completed", "")
}

// GetTask returns a snapshot of a task's current state.
func (o *Orchestrator) GetTask(id domain.TaskID) (domain.Task, error) {
	return o.registry.Get(id)
}

// AwaitResult polls until the task reaches a terminal state or the
// context expires. Returns domain.ErrResultNotReady wrapped with the
// context error on timeout.
func (o *Orchestrator) AwaitResult(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		task, err := o.registry.Get(id)
		if err != nil {
			return domain.Task{}, err
		}
		if task.Status.Terminal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return task, fmt.Errorf("%w: %v", domain.ErrResultNotReady, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Status summarizes queue depth, task counters and the worker pool.
func (o *Orchestrator) Status() map[string]any {
	workers := o.router.Workers()
	pool := make([]map[string]any, 0, len(workers))
	for _, w := range workers {
		stats := w.Stats()
		pool = append(pool, map[string]any{
			"name":      w.Name(),
			"type":      w.Type(),
			"busy":      w.Busy(),
			"completed": stats.TasksCompleted,
			"failed":    stats.TasksFailed,
		})
	}

	return map[string]any{
		"queue_depth":    len(o.pendingQueue),
		"queue_capacity": cap(o.pendingQueue),
		"tasks":          o.registry.Stats(),
		"workers":        pool,
		"metrics": map[string]any{
			"total_submitted": o.submitted.Load(),
			"total_completed": o.completed.Load(),
			"total_failed":    o.failed.Load(),
		},
		"uptime_seconds": int64(time.Since(o.started).Seconds()),
	}
}

func (o *Orchestrator) publish(id domain.TaskID, status, detail string) {
	if o.events == nil {
		return
	}
	o.events.Publish(Event{
		TaskID:    string(id),
		Type:      EventTypeStatus,
		Data:      fmt.Sprintf(`{"status":%q,"detail":%q}`, status, detail),
		Timestamp: time.Now().Unix(),
	})
}
