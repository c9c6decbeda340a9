package services

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// SelectionStrategy breaks ties when several workers of the right type
// could take a task.
type SelectionStrategy interface {
	Select(candidates []ports.Worker) ports.Worker
}

// MostCompletedIdle prefers idle workers, and among those the one with
// the highest completed-task count. Falls back to the first candidate
// when every worker is busy.
type MostCompletedIdle struct{}

func (MostCompletedIdle) Select(candidates []ports.Worker) ports.Worker {
	if len(candidates) == 0 {
		return nil
	}
	var best ports.Worker
	bestCompleted := -1
	for _, w := range candidates {
		if w.Busy() {
			continue
		}
		if completed := w.Stats().TasksCompleted; completed > bestCompleted {
			best = w
			bestCompleted = completed
		}
	}
	if best == nil {
		return candidates[0]
	}
	return best
}

// TaskRouter decides which worker handles a task type. It centralizes
// the routing logic so the orchestrator doesn't need to know which
// worker owns each operation.
type TaskRouter struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	routes   map[string]string // task type -> worker type
	workers  map[string]ports.Worker
	strategy SelectionStrategy
}

// NewTaskRouter creates a router with the default task-type mappings.
func NewTaskRouter(logger *slog.Logger, strategy SelectionStrategy) *TaskRouter {
	if strategy == nil {
		strategy = MostCompletedIdle{}
	}
	router := &TaskRouter{
		logger:   logger,
		routes:   make(map[string]string),
		workers:  make(map[string]ports.Worker),
		strategy: strategy,
	}

	// Template catalog operations
	router.routes["search_templates"] = "template"
	router.routes["analyze_template"] = "template"
	router.routes["recommend_templates"] = "template"
	router.routes["categorize_templates"] = "template"

	// Automation server operations
	router.routes["import_template"] = "server"
	router.routes["export_workflow"] = "server"
	router.routes["activate_workflow"] = "server"
	router.routes["deactivate_workflow"] = "server"
	router.routes["get_workflows"] = "server"
	router.routes["monitor_system"] = "server"

	// Coordination and monitoring
	router.routes["coordinate_agents"] = "coordinator"
	router.routes["plan_execution"] = "coordinator"
	router.routes["system_health"] = "monitor"
	router.routes["performance_analysis"] = "monitor"

	return router
}

// Register adds a worker to the pool. The worker name must be unique.
func (r *TaskRouter) Register(w ports.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[w.Name()] = w
	r.logger.Info("worker registered", "name", w.Name(), "type", w.Type(), "capabilities", w.Capabilities())
}

// RegisterRoute adds or overrides a task-type route.
func (r *TaskRouter) RegisterRoute(taskType, workerType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[strings.TrimSpace(strings.ToLower(taskType))] = workerType
}

// Resolve picks the worker for a task. Pinning wins over the routing
// table; ties among same-type workers go through the strategy. Returns
// nil when no registered worker can take the task.
func (r *TaskRouter) Resolve(task *domain.Task) ports.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if task.PinnedWorker != "" {
		if w, ok := r.workers[task.PinnedWorker]; ok {
			return w
		}
		r.logger.Warn("pinned worker not registered", "worker", task.PinnedWorker, "task_id", task.ID)
		return nil
	}

	workerType, ok := r.routes[strings.TrimSpace(strings.ToLower(task.Type))]
	if !ok {
		// Unknown type: best-effort handoff to an idle worker. The
		// worker itself reports the unknown subtype as a failure.
		r.logger.Debug("no route for task type, trying idle fallback", "type", task.Type)
		return r.idleFallback()
	}

	var candidates []ports.Worker
	for _, w := range r.workers {
		if w.Type() == workerType {
			candidates = append(candidates, w)
		}
	}
	return r.strategy.Select(candidates)
}

// idleFallback picks the idle worker with the most completed tasks, or
// nil when every worker is busy. Assumes r.mu is held.
func (r *TaskRouter) idleFallback() ports.Worker {
	var best ports.Worker
	bestCompleted := -1
	for _, w := range r.workers {
		if w.Busy() {
			continue
		}
		if completed := w.Stats().TasksCompleted; completed > bestCompleted {
			best = w
			bestCompleted = completed
		}
	}
	return best
}

// Workers returns all registered workers.
func (r *TaskRouter) Workers() []ports.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ports.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	return out
}

// Routes returns a copy of the routing table.
func (r *TaskRouter) Routes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string, len(r.routes))
	for k, v := range r.routes {
		result[k] = v
	}
	return result
}
