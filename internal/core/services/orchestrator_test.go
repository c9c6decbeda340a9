package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker executes via a configurable function.
type fakeWorker struct {
	name       string
	workerType string
	fn         func(ctx context.Context, task *domain.Task) (map[string]any, error)
}

func (f *fakeWorker) Name() string             { return f.name }
func (f *fakeWorker) Type() string             { return f.workerType }
func (f *fakeWorker) Capabilities() []string   { return nil }
func (f *fakeWorker) Busy() bool               { return false }
func (f *fakeWorker) Stats() ports.WorkerStats { return ports.WorkerStats{LastActivity: time.Now().Unix()} }
func (f *fakeWorker) Execute(ctx context.Context, task *domain.Task) (map[string]any, error) {
	return f.fn(ctx, task)
}

func newTestOrchestrator(t *testing.T, workers []ports.Worker, cfg OrchestratorConfig) (*Orchestrator, context.CancelFunc) {
	t.Helper()
	logger := testLogger()
	registry := NewTaskRegistry(logger, 100)
	router := NewTaskRouter(logger, nil)
	for _, w := range workers {
		router.Register(w)
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	orch := NewOrchestrator(logger, router, registry, NewEventBus(logger), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(cancel)
	return orch, cancel
}

func TestOrchestrator_SubmitAndAwait(t *testing.T) {
	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			return map[string]any{"count": 2}, nil
		}}
	orch, _ := newTestOrchestrator(t, []ports.Worker{worker}, OrchestratorConfig{})

	id, err := orch.Submit(context.Background(), "search_templates", map[string]any{"query": "x"}, domain.PriorityHigh, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	task, err := orch.AwaitResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, 2, task.Result["count"])
	assert.Equal(t, "tw", task.AssignedWorker)
}

func TestOrchestrator_WorkerError(t *testing.T) {
	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			return nil, errors.New("backend down")
		}}
	orch, _ := newTestOrchestrator(t, []ports.Worker{worker}, OrchestratorConfig{})

	id, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	task, err := orch.AwaitResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "backend down")
}

func TestOrchestrator_WorkerPanicBecomesFailure(t *testing.T) {
	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			panic("boom")
		}}
	orch, _ := newTestOrchestrator(t, []ports.Worker{worker}, OrchestratorConfig{})

	id, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	task, err := orch.AwaitResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "panic")
}

func TestOrchestrator_NoWorkerForType(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil, OrchestratorConfig{})

	id, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	task, err := orch.AwaitResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "no suitable worker")
}

func TestOrchestrator_UnknownTypeReachesIdleWorker(t *testing.T) {
	w := newBaseWorker("generic", "template", testLogger(), nil)
	w.register("known_op", func(ctx context.Context, task *domain.Task) (map[string]any, error) {
		return nil, nil
	})
	orch, _ := newTestOrchestrator(t, []ports.Worker{w}, OrchestratorConfig{})

	// Unrouted type lands on the idle worker, which reports the
	// unknown subtype as a task failure rather than a routing one.
	id, err := orch.Submit(context.Background(), "mystery_op", nil, domain.PriorityMedium, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	task, err := orch.AwaitResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "cannot handle task type")
}

func TestOrchestrator_QueueFull(t *testing.T) {
	release := make(chan struct{})
	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			<-release
			return nil, nil
		}}
	orch, _ := newTestOrchestrator(t, []ports.Worker{worker}, OrchestratorConfig{
		QueueCapacity: 2,
		MaxConcurrent: 1,
	})
	defer close(release)

	// Saturate: one executing, one acquiring, two queued, then overflow.
	// Submissions race the dispatcher, so keep pushing until rejection.
	var sawFull bool
	var attempts int64
	for i := 0; i < 20; i++ {
		_, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
		attempts++
		if errors.Is(err, domain.ErrQueueFull) {
			sawFull = true
			break
		}
		require.NoError(t, err)
	}
	assert.True(t, sawFull, "expected a queue-full rejection")

	// A rejected submission still counts as submitted and failed.
	metrics := orch.Status()["metrics"].(map[string]any)
	assert.Equal(t, attempts, metrics["total_submitted"])
	assert.GreaterOrEqual(t, metrics["total_failed"].(int64), int64(1))
}

func TestOrchestrator_ConcurrencyLimit(t *testing.T) {
	var running, peak int32
	var wg sync.WaitGroup

	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			current := atomic.AddInt32(&running, 1)
			for {
				max := atomic.LoadInt32(&peak)
				if current <= max || atomic.CompareAndSwapInt32(&peak, max, current) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			wg.Done()
			return nil, nil
		}}

	orch, _ := newTestOrchestrator(t, []ports.Worker{worker}, OrchestratorConfig{
		QueueCapacity: 32,
		MaxConcurrent: 2,
	})

	total := 6
	wg.Add(total)
	for i := 0; i < total; i++ {
		_, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
		require.NoError(t, err)
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(0))
}

func TestOrchestrator_AwaitTimeout(t *testing.T) {
	release := make(chan struct{})
	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			<-release
			return nil, nil
		}}
	orch, _ := newTestOrchestrator(t, []ports.Worker{worker}, OrchestratorConfig{})
	defer close(release)

	id, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	task, err := orch.AwaitResult(ctx, id)
	assert.ErrorIs(t, err, domain.ErrResultNotReady)
	assert.False(t, task.Status.Terminal())
}

func TestOrchestrator_Status(t *testing.T) {
	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			return nil, nil
		}}
	orch, _ := newTestOrchestrator(t, []ports.Worker{worker}, OrchestratorConfig{QueueCapacity: 16})

	id, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	_, err = orch.AwaitResult(waitCtx, id)
	require.NoError(t, err)

	status := orch.Status()
	assert.Equal(t, 16, status["queue_capacity"])
	workers := status["workers"].([]map[string]any)
	require.Len(t, workers, 1)
	assert.Equal(t, "tw", workers[0]["name"])

	metrics := status["metrics"].(map[string]any)
	assert.Equal(t, int64(1), metrics["total_submitted"])
	assert.Equal(t, int64(1), metrics["total_completed"])
	assert.Equal(t, int64(0), metrics["total_failed"])
	assert.GreaterOrEqual(t, status["uptime_seconds"].(int64), int64(0))
}

func TestOrchestrator_StopThenStartResumes(t *testing.T) {
	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		}}
	logger := testLogger()
	registry := NewTaskRegistry(logger, 100)
	router := NewTaskRouter(logger, nil)
	router.Register(worker)
	orch := NewOrchestrator(logger, router, registry, NewEventBus(logger), OrchestratorConfig{PollInterval: 5 * time.Millisecond})

	ctx1, cancel1 := context.WithCancel(context.Background())
	orch.Start(ctx1)
	cancel1()
	time.Sleep(20 * time.Millisecond)

	// task submitted while stopped stays queued
	id, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	orch.Start(ctx2)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	task, err := orch.AwaitResult(waitCtx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
}

func TestOrchestrator_EventsPublished(t *testing.T) {
	logger := testLogger()
	registry := NewTaskRegistry(logger, 100)
	router := NewTaskRouter(logger, nil)
	bus := NewEventBus(logger)

	subscribed := make(chan struct{})
	router.Register(&fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			<-subscribed
			return nil, nil
		}})
	orch := NewOrchestrator(logger, router, registry, bus, OrchestratorConfig{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	id, err := orch.Submit(ctx, "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)

	ch, unsub := bus.Subscribe(string(id))
	defer unsub()
	close(subscribed)

	// A completed event arrives once execution finishes
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			assert.Equal(t, EventTypeStatus, evt.Type)
			if strings.Contains(evt.Data, "completed") {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for completed event")
		}
	}
}

func TestOrchestrator_TaskIDsUnique(t *testing.T) {
	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			return nil, nil
		}}
	orch, _ := newTestOrchestrator(t, []ports.Worker{worker}, OrchestratorConfig{})

	seen := make(map[domain.TaskID]bool)
	for i := 0; i < 25; i++ {
		id, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate task ID %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 25)
}

func TestOrchestrator_StopRequeuesDequeuedTask(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	worker := &fakeWorker{name: "tw", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			started <- struct{}{}
			<-release
			return map[string]any{"ok": true}, nil
		}}
	logger := testLogger()
	registry := NewTaskRegistry(logger, 100)
	router := NewTaskRouter(logger, nil)
	router.Register(worker)
	orch := NewOrchestrator(logger, router, registry, NewEventBus(logger), OrchestratorConfig{
		MaxConcurrent: 1,
		PollInterval:  5 * time.Millisecond,
	})

	ctx1, cancel1 := context.WithCancel(context.Background())
	orch.Start(ctx1)

	// First task takes the only slot.
	idA, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)
	<-started

	// Second task is dequeued but the dispatcher blocks acquiring a slot.
	idB, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	// Stopping mid-acquire must not lose the dequeued task.
	cancel1()
	time.Sleep(30 * time.Millisecond)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	orch.Start(ctx2)
	close(release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	go func() { <-started }()

	taskA, err := orch.AwaitResult(waitCtx, idA)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, taskA.Status)

	taskB, err := orch.AwaitResult(waitCtx, idB)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, taskB.Status)
}

func TestOrchestrator_FastTaskOvertakesSlowOne(t *testing.T) {
	release := make(chan struct{})
	slow := &fakeWorker{name: "slow", workerType: "template",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			<-release
			return nil, nil
		}}
	fast := &fakeWorker{name: "fast", workerType: "server",
		fn: func(ctx context.Context, task *domain.Task) (map[string]any, error) {
			return nil, nil
		}}
	orch, _ := newTestOrchestrator(t, []ports.Worker{slow, fast}, OrchestratorConfig{})

	slowID, err := orch.Submit(context.Background(), "search_templates", nil, domain.PriorityMedium, "")
	require.NoError(t, err)
	fastID, err := orch.Submit(context.Background(), "import_template", nil, domain.PriorityMedium, "")
	require.NoError(t, err)

	// The second submission finishes while the first is still running.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	fastTask, err := orch.AwaitResult(waitCtx, fastID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, fastTask.Status)

	pending, err := orch.GetTask(slowID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.TaskStatusCompleted, pending.Status)

	close(release)
	slowTask, err := orch.AwaitResult(waitCtx, slowID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, slowTask.Status)
	require.NotNil(t, fastTask.CompletedAt)
	require.NotNil(t, slowTask.CompletedAt)
	assert.True(t, fastTask.CompletedAt.Before(*slowTask.CompletedAt))
}
