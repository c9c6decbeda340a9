package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskID uniquely identifies a submitted task for the orchestrator's lifetime.
type TaskID string

// NewTaskID generates a random task identifier.
func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

// TaskStatus represents the lifecycle state of a task.
// Transitions are monotonic: PENDING -> IN_PROGRESS -> {COMPLETED, FAILED}.
// CANCELLED is part of the vocabulary but no code path currently reaches it;
// once submitted, a task runs to a terminal state.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskPriority orders tasks by importance. The queue is currently strict
// FIFO; priority is accepted and recorded but does not reorder dispatch.
type TaskPriority int

const (
	PriorityCritical TaskPriority = 1
	PriorityHigh     TaskPriority = 2
	PriorityMedium   TaskPriority = 3
	PriorityLow      TaskPriority = 4
)

// Task is a unit of requested work routed to a worker by capability.
type Task struct {
	ID           TaskID         `json:"id"`
	Type         string         `json:"type"`
	Payload      map[string]any `json:"payload"`
	Priority     TaskPriority   `json:"priority"`
	PinnedWorker string         `json:"pinned_worker,omitempty"`
	Status       TaskStatus     `json:"status"`

	AssignedWorker string         `json:"assigned_worker,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrResultNotReady = errors.New("task result not ready")
	ErrQueueFull      = errors.New("task queue full")
)
