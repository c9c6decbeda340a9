package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/domain"
)

// TaskRegistry tracks in-flight tasks and keeps a bounded history of
// finished ones. All task mutation happens under the registry lock so
// readers always see a consistent snapshot.
type TaskRegistry struct {
	logger *slog.Logger
	mu     sync.Mutex

	active map[domain.TaskID]*domain.Task

	// Circular buffer of finished tasks. When full, the oldest entry
	// is overwritten.
	history []*domain.Task
	head    int
	count   int
}

func NewTaskRegistry(logger *slog.Logger, historyCap int) *TaskRegistry {
	if historyCap <= 0 {
		historyCap = 1000
	}
	return &TaskRegistry{
		logger:  logger,
		active:  make(map[domain.TaskID]*domain.Task),
		history: make([]*domain.Task, historyCap),
	}
}

// Track registers a pending task as active.
func (r *TaskRegistry) Track(task *domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[task.ID] = task
}

// MarkStarted transitions a task to IN_PROGRESS and records the worker
// it was assigned to.
func (r *TaskRegistry) MarkStarted(id domain.TaskID, worker string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.active[id]
	if !ok {
		return
	}
	now := time.Now()
	task.Status = domain.TaskStatusInProgress
	task.AssignedWorker = worker
	task.StartedAt = &now
}

// Complete moves an active task into history with a success result.
func (r *TaskRegistry) Complete(id domain.TaskID, result map[string]any) {
	r.finish(id, domain.TaskStatusCompleted, result, "")
}

// Fail moves an active task into history with an error.
func (r *TaskRegistry) Fail(id domain.TaskID, errMsg string) {
	r.finish(id, domain.TaskStatusFailed, nil, errMsg)
}

// Reject fails a task that never reached a worker, skipping the
// IN_PROGRESS transition. The task moves straight into history.
func (r *TaskRegistry) Reject(task *domain.Task, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, task.ID)

	now := time.Now()
	task.Status = domain.TaskStatusFailed
	task.Error = errMsg
	task.CompletedAt = &now
	r.push(task)
}

func (r *TaskRegistry) finish(id domain.TaskID, status domain.TaskStatus, result map[string]any, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.active[id]
	if !ok {
		r.logger.Warn("finish on unknown task", "task_id", id)
		return
	}
	delete(r.active, id)

	now := time.Now()
	task.Status = status
	task.Result = result
	task.Error = errMsg
	task.CompletedAt = &now
	r.push(task)
}

// push assumes r.mu is held.
func (r *TaskRegistry) push(task *domain.Task) {
	r.history[r.head] = task
	r.head = (r.head + 1) % len(r.history)
	if r.count < len(r.history) {
		r.count++
	}
}

// Get returns a snapshot of the task, checking active tasks first and
// then the history. Returns domain.ErrTaskNotFound when the task was
// never seen or has been evicted from history.
func (r *TaskRegistry) Get(id domain.TaskID) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if task, ok := r.active[id]; ok {
		return snapshot(task), nil
	}
	for i := 0; i < r.count; i++ {
		task := r.history[(r.head-1-i+len(r.history))%len(r.history)]
		if task != nil && task.ID == id {
			return snapshot(task), nil
		}
	}
	return domain.Task{}, domain.ErrTaskNotFound
}

// ActiveCount returns the number of in-flight tasks.
func (r *TaskRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Recent returns up to limit finished tasks, newest first.
func (r *TaskRegistry) Recent(limit int) []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]domain.Task, 0, limit)
	for i := 0; i < limit; i++ {
		task := r.history[(r.head-1-i+len(r.history))%len(r.history)]
		if task != nil {
			out = append(out, snapshot(task))
		}
	}
	return out
}

// Stats summarizes the registry for status reporting.
func (r *TaskRegistry) Stats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	completed, failed := 0, 0
	for i := 0; i < r.count; i++ {
		task := r.history[(r.head-1-i+len(r.history))%len(r.history)]
		if task == nil {
			continue
		}
		switch task.Status {
		case domain.TaskStatusCompleted:
			completed++
		case domain.TaskStatusFailed:
			failed++
		}
	}
	return map[string]int{
		"active":    len(r.active),
		"completed": completed,
		"failed":    failed,
	}
}

func snapshot(t *domain.Task) domain.Task {
	cp := *t
	if t.Payload != nil {
		cp.Payload = make(map[string]any, len(t.Payload))
		for k, v := range t.Payload {
			cp.Payload[k] = v
		}
	}
	if t.Result != nil {
		cp.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			cp.Result[k] = v
		}
	}
	return cp
}
