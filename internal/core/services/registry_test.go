package services

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newTask(taskType string) *domain.Task {
	return &domain.Task{
		ID:        domain.NewTaskID(),
		Type:      taskType,
		Status:    domain.TaskStatusPending,
		Priority:  domain.PriorityMedium,
		CreatedAt: time.Now(),
	}
}

func TestTaskRegistry_Lifecycle(t *testing.T) {
	reg := NewTaskRegistry(testLogger(), 10)

	task := newTask("search_templates")
	reg.Track(task)
	assert.Equal(t, 1, reg.ActiveCount())

	fetched, err := reg.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, fetched.Status)

	reg.MarkStarted(task.ID, "template-worker")
	fetched, err = reg.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, fetched.Status)
	assert.Equal(t, "template-worker", fetched.AssignedWorker)
	assert.NotNil(t, fetched.StartedAt)

	reg.Complete(task.ID, map[string]any{"count": 3})
	assert.Equal(t, 0, reg.ActiveCount())

	fetched, err = reg.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, fetched.Status)
	assert.Equal(t, 3, fetched.Result["count"])
	assert.NotNil(t, fetched.CompletedAt)
}

func TestTaskRegistry_Fail(t *testing.T) {
	reg := NewTaskRegistry(testLogger(), 10)

	task := newTask("monitor_system")
	reg.Track(task)
	reg.MarkStarted(task.ID, "server-worker")
	reg.Fail(task.ID, "server unreachable")

	fetched, err := reg.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, fetched.Status)
	assert.Equal(t, "server unreachable", fetched.Error)
}

func TestTaskRegistry_Reject(t *testing.T) {
	reg := NewTaskRegistry(testLogger(), 10)

	task := newTask("unroutable_type")
	reg.Reject(task, "no suitable worker")

	// Rejected tasks never enter the active set
	assert.Equal(t, 0, reg.ActiveCount())

	fetched, err := reg.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, fetched.Status)
	assert.Equal(t, "no suitable worker", fetched.Error)
}

func TestTaskRegistry_RejectClearsTrackedTask(t *testing.T) {
	reg := NewTaskRegistry(testLogger(), 10)

	task := newTask("search_templates")
	reg.Track(task)
	reg.Reject(task, "queue full")

	assert.Equal(t, 0, reg.ActiveCount())
	fetched, err := reg.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, fetched.Status)
	assert.Empty(t, fetched.AssignedWorker)
	assert.Nil(t, fetched.StartedAt)
}

func TestTaskRegistry_TerminalStateIsFinal(t *testing.T) {
	reg := NewTaskRegistry(testLogger(), 10)

	task := newTask("search_templates")
	reg.Track(task)
	reg.Fail(task.ID, "worker exploded")

	// Once terminal, later transitions are ignored.
	reg.MarkStarted(task.ID, "tw")
	reg.Complete(task.ID, map[string]any{"ok": true})

	fetched, err := reg.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, fetched.Status)
	assert.Equal(t, "worker exploded", fetched.Error)
	assert.Nil(t, fetched.Result)

	stats := reg.Stats()
	assert.Equal(t, 1, stats["failed"])
	assert.Equal(t, 0, stats["completed"])
}

func TestTaskRegistry_NotFound(t *testing.T) {
	reg := NewTaskRegistry(testLogger(), 10)
	_, err := reg.Get(domain.NewTaskID())
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestTaskRegistry_SnapshotIsolation(t *testing.T) {
	reg := NewTaskRegistry(testLogger(), 10)

	task := newTask("search_templates")
	task.Payload = map[string]any{"query": "slack"}
	reg.Track(task)

	snap, err := reg.Get(task.ID)
	require.NoError(t, err)

	// Mutating the snapshot must not leak back into the registry
	snap.Payload["query"] = "mutated"
	again, err := reg.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "slack", again.Payload["query"])
}

func TestTaskRegistry_HistoryEviction(t *testing.T) {
	const capacity = 5
	reg := NewTaskRegistry(testLogger(), capacity)

	var ids []domain.TaskID
	for i := 0; i < capacity+3; i++ {
		task := newTask(fmt.Sprintf("type-%d", i))
		reg.Track(task)
		reg.Complete(task.ID, nil)
		ids = append(ids, task.ID)
	}

	// The oldest three are gone
	for _, id := range ids[:3] {
		_, err := reg.Get(id)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	}
	// The newest five remain
	for _, id := range ids[3:] {
		_, err := reg.Get(id)
		assert.NoError(t, err)
	}

	recent := reg.Recent(0)
	require.Len(t, recent, capacity)
	// Newest first
	assert.Equal(t, ids[len(ids)-1], recent[0].ID)
}

func TestTaskRegistry_Stats(t *testing.T) {
	reg := NewTaskRegistry(testLogger(), 10)

	done := newTask("a")
	reg.Track(done)
	reg.Complete(done.ID, nil)

	failed := newTask("b")
	reg.Track(failed)
	reg.Fail(failed.ID, "boom")

	active := newTask("c")
	reg.Track(active)

	stats := reg.Stats()
	assert.Equal(t, 1, stats["active"])
	assert.Equal(t, 1, stats["completed"])
	assert.Equal(t, 1, stats["failed"])
}

// The ring buffer must always retain exactly the most recent tasks, no
// matter how many finish in what order.
func TestTaskRegistry_RingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(t, "capacity")
		total := rapid.IntRange(0, 60).Draw(t, "total")

		reg := NewTaskRegistry(testLogger(), capacity)
		var ids []domain.TaskID
		for i := 0; i < total; i++ {
			task := newTask("t")
			reg.Track(task)
			if rapid.Bool().Draw(t, "fail") {
				reg.Fail(task.ID, "x")
			} else {
				reg.Complete(task.ID, nil)
			}
			ids = append(ids, task.ID)
		}

		retained := total
		if retained > capacity {
			retained = capacity
		}

		recent := reg.Recent(0)
		if len(recent) != retained {
			t.Fatalf("expected %d retained tasks, got %d", retained, len(recent))
		}
		// Newest-first ordering over the retained window
		for i := 0; i < retained; i++ {
			want := ids[total-1-i]
			if recent[i].ID != want {
				t.Fatalf("position %d: expected %s, got %s", i, want, recent[i].ID)
			}
		}
	})
}
