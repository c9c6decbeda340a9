package services

import (
	"context"
	"sort"
	"sync"

	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
)

// memRepo is an in-memory ports.Repository for service tests.
type memRepo struct {
	mu         sync.Mutex
	templates  map[domain.TemplateID]domain.Template
	workflows  map[string]domain.UserWorkflow
	sessions   map[int64]domain.UserSession
	executions []domain.ExecutionLog
	settings   map[string]string

	searchCalls int
	getCalls    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		templates: make(map[domain.TemplateID]domain.Template),
		workflows: make(map[string]domain.UserWorkflow),
		sessions:  make(map[int64]domain.UserSession),
		settings:  make(map[string]string),
	}
}

func (m *memRepo) SaveTemplate(_ context.Context, t domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

func (m *memRepo) GetTemplate(_ context.Context, id domain.TemplateID) (domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	t, ok := m.templates[id]
	if !ok {
		return domain.Template{}, domain.ErrTemplateNotFound
	}
	return t, nil
}

func (m *memRepo) SearchTemplates(_ context.Context, f domain.TemplateFilter) ([]domain.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	var out []domain.Template
	for _, t := range m.templates {
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DownloadCount > out[j].DownloadCount })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) ListCategories(_ context.Context) ([]domain.CategoryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCat := make(map[string]int)
	for _, t := range m.templates {
		byCat[t.Category]++
	}
	var counts []domain.CategoryCount
	for cat, n := range byCat {
		counts = append(counts, domain.CategoryCount{Category: cat, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	return counts, nil
}

func (m *memRepo) IncrementDownloads(_ context.Context, id domain.TemplateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return domain.ErrTemplateNotFound
	}
	t.DownloadCount++
	m.templates[id] = t
	return nil
}

func (m *memRepo) SaveUserWorkflow(_ context.Context, w domain.UserWorkflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[w.ID] = w
	return nil
}

func (m *memRepo) GetUserWorkflow(_ context.Context, id string) (domain.UserWorkflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return domain.UserWorkflow{}, domain.ErrWorkflowNotFound
	}
	return w, nil
}

func (m *memRepo) ListUserWorkflows(_ context.Context, userID int64) ([]domain.UserWorkflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UserWorkflow
	for _, w := range m.workflows {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memRepo) DeleteUserWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workflows, id)
	return nil
}

func (m *memRepo) SaveSession(_ context.Context, s domain.UserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s
	return nil
}

func (m *memRepo) GetSession(_ context.Context, userID int64) (domain.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return domain.UserSession{}, domain.ErrSessionNotFound
	}
	return s, nil
}

func (m *memRepo) SaveExecutionLog(_ context.Context, e domain.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, e)
	return nil
}

func (m *memRepo) ListExecutionLogs(_ context.Context, workflowID string, limit int) ([]domain.ExecutionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ExecutionLog
	for i := len(m.executions) - 1; i >= 0; i-- {
		e := m.executions[i]
		if workflowID != "" && e.WorkflowID != workflowID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) ExecutionStats(_ context.Context, userID int64) (domain.ExecutionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.ExecutionStats
	for _, e := range m.executions {
		if e.UserID != userID {
			continue
		}
		stats.Total++
		switch e.Status {
		case "success":
			stats.Succeeded++
		case "error":
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	return stats, nil
}

func (m *memRepo) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[key], nil
}

func (m *memRepo) SaveSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

var _ ports.Repository = (*memRepo)(nil)

// stubLLM returns a canned response or error.
type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) GenerateText(_ context.Context, _ string) (string, error) {
	return s.response, s.err
}
