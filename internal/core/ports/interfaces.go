package ports

import (
	"context"
	"io"

	"github.com/manthysbr/flowpilot/internal/core/domain"
)

// Repository abstracts the persistent storage (DuckDB)
type Repository interface {
	// Templates
	SaveTemplate(ctx context.Context, t domain.Template) error
	GetTemplate(ctx context.Context, id domain.TemplateID) (domain.Template, error)
	SearchTemplates(ctx context.Context, f domain.TemplateFilter) ([]domain.Template, error)
	ListCategories(ctx context.Context) ([]domain.CategoryCount, error)
	IncrementDownloads(ctx context.Context, id domain.TemplateID) error

	// User workflows
	SaveUserWorkflow(ctx context.Context, w domain.UserWorkflow) error
	GetUserWorkflow(ctx context.Context, id string) (domain.UserWorkflow, error)
	ListUserWorkflows(ctx context.Context, userID int64) ([]domain.UserWorkflow, error)
	DeleteUserWorkflow(ctx context.Context, id string) error

	// Sessions
	SaveSession(ctx context.Context, s domain.UserSession) error
	GetSession(ctx context.Context, userID int64) (domain.UserSession, error)

	// Execution logs
	SaveExecutionLog(ctx context.Context, e domain.ExecutionLog) error
	ListExecutionLogs(ctx context.Context, workflowID string, limit int) ([]domain.ExecutionLog, error)
	ExecutionStats(ctx context.Context, userID int64) (domain.ExecutionStats, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}

// AutomationClient talks to one user's automation server (n8n).
type AutomationClient interface {
	ListWorkflows(ctx context.Context, activeOnly bool) ([]map[string]any, error)
	GetWorkflow(ctx context.Context, id string) (map[string]any, error)
	CreateWorkflow(ctx context.Context, definition map[string]any) (map[string]any, error)
	ActivateWorkflow(ctx context.Context, id string) error
	DeactivateWorkflow(ctx context.Context, id string) error
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]map[string]any, error)
	HealthCheck(ctx context.Context) error
}

// ClientFactory builds an AutomationClient from a user's session
// credentials. Injected so services can be tested against httptest.
type ClientFactory func(baseURL, apiKey string) AutomationClient

// LLMProvider generates text completions
type LLMProvider interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// VoiceProvider handles speech transcription and synthesis
type VoiceProvider interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Worker executes tasks routed to it by the orchestrator.
type Worker interface {
	Name() string
	Type() string
	Capabilities() []string
	Busy() bool
	Stats() WorkerStats
	Execute(ctx context.Context, task *domain.Task) (map[string]any, error)
}

// WorkerStats is a snapshot of a worker's counters.
type WorkerStats struct {
	TasksCompleted int
	TasksFailed    int
	LastActivity   int64 // unix seconds
}
