package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/manthysbr/flowpilot/internal/config"
	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/ports"
	"github.com/manthysbr/flowpilot/internal/core/services"
)

// Server exposes the orchestrator and supporting services over HTTP.
type Server struct {
	logger       *slog.Logger
	orchestrator *services.Orchestrator
	templates    *services.TemplateService
	workflows    *services.WorkflowService
	sessions     *services.SessionService
	executions   *services.ExecutionLogService
	nlu          *services.NLUService
	reminders    *services.ReminderService
	thinking     *services.ThinkingService
	eventBus     *services.EventBus
	settings     *config.SettingsStore
	voice        ports.VoiceProvider
}

func NewServer(
	logger *slog.Logger,
	orchestrator *services.Orchestrator,
	templates *services.TemplateService,
	workflows *services.WorkflowService,
	sessions *services.SessionService,
	executions *services.ExecutionLogService,
	nlu *services.NLUService,
	reminders *services.ReminderService,
	thinking *services.ThinkingService,
	eventBus *services.EventBus,
	settings *config.SettingsStore,
) *Server {
	return &Server{
		logger:       logger,
		orchestrator: orchestrator,
		templates:    templates,
		workflows:    workflows,
		sessions:     sessions,
		executions:   executions,
		nlu:          nlu,
		reminders:    reminders,
		thinking:     thinking,
		eventBus:     eventBus,
		settings:     settings,
	}
}

// SetVoice wires the voice provider. Voice endpoints return 503 until
// one is set.
func (s *Server) SetVoice(v ports.VoiceProvider) {
	s.voice = v
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Task API
		if r.Method == "POST" && r.URL.Path == "/v1/tasks" {
			s.handleSubmitTask(w, r)
			return
		}
		if r.Method == "GET" && strings.HasPrefix(r.URL.Path, "/v1/tasks/") && !strings.Contains(strings.TrimPrefix(r.URL.Path, "/v1/tasks/"), "/") {
			s.handleGetTask(w, r)
			return
		}
		if r.Method == "GET" && r.URL.Path == "/v1/status" {
			s.handleStatus(w, r)
			return
		}
		// SSE task events
		if r.Method == "GET" && isTaskEventsPath(r.URL.Path) {
			s.handleTaskSSE(w, r)
			return
		}
		// Template catalog
		if r.Method == "GET" && r.URL.Path == "/v1/templates" {
			s.handleSearchTemplates(w, r)
			return
		}
		if r.Method == "GET" && r.URL.Path == "/v1/templates/categories" {
			s.handleListCategories(w, r)
			return
		}
		if r.Method == "GET" && strings.HasPrefix(r.URL.Path, "/v1/templates/") {
			s.handleGetTemplate(w, r)
			return
		}
		if r.Method == "POST" && r.URL.Path == "/v1/templates" {
			s.handleSaveTemplate(w, r)
			return
		}
		// User workflows
		if r.Method == "GET" && r.URL.Path == "/v1/workflows" {
			s.handleListWorkflows(w, r)
			return
		}
		// Session
		if r.Method == "PUT" && r.URL.Path == "/v1/session" {
			s.handleConfigureSession(w, r)
			return
		}
		if r.Method == "GET" && r.URL.Path == "/v1/session" {
			s.handleGetSession(w, r)
			return
		}
		// Execution logs
		if r.Method == "GET" && r.URL.Path == "/v1/executions" {
			s.handleListExecutions(w, r)
			return
		}
		if r.Method == "GET" && r.URL.Path == "/v1/executions/stats" {
			s.handleExecutionStats(w, r)
			return
		}
		// Chat classification
		if r.Method == "POST" && r.URL.Path == "/v1/chat/classify" {
			s.handleClassify(w, r)
			return
		}
		// Thinking history
		if r.Method == "GET" && r.URL.Path == "/v1/thoughts" {
			s.handleListThoughts(w, r)
			return
		}
		// Reminders
		if r.Method == "POST" && r.URL.Path == "/v1/reminders" {
			s.handleCreateReminder(w, r)
			return
		}
		if r.Method == "DELETE" && strings.HasPrefix(r.URL.Path, "/v1/reminders/") {
			s.handleCancelReminder(w, r)
			return
		}
		// Voice
		if r.Method == "POST" && r.URL.Path == "/v1/voice/transcribe" {
			s.handleTranscribe(w, r)
			return
		}
		if r.Method == "POST" && r.URL.Path == "/v1/voice/synthesize" {
			s.handleSynthesize(w, r)
			return
		}
		// Settings
		if r.Method == "GET" && r.URL.Path == "/v1/settings" {
			s.handleGetSettings(w, r)
			return
		}
		if r.Method == "PUT" && r.URL.Path == "/v1/settings" {
			s.handleUpdateSettings(w, r)
			return
		}
		if r.Method == "GET" && r.URL.Path == "/healthz" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}
		http.NotFound(w, r)
	})
}

// isTaskEventsPath checks if an URL path matches /v1/tasks/{id}/events
func isTaskEventsPath(path string) bool {
	const prefix = "/v1/tasks/"
	const suffix = "/events"
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return false
	}
	middle := path[len(prefix) : len(path)-len(suffix)]
	return len(middle) > 0 && !strings.Contains(middle, "/")
}

type submitTaskRequest struct {
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload"`
	Priority int            `json:"priority"`
	Worker   string         `json:"worker"`
}

// handleSubmitTask enqueues a task.
// POST /v1/tasks
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "task type is required", http.StatusBadRequest)
		return
	}

	id, err := s.orchestrator.Submit(r.Context(), req.Type, req.Payload, domain.TaskPriority(req.Priority), req.Worker)
	if errors.Is(err, domain.ErrQueueFull) {
		http.Error(w, "task queue is full, retry later", http.StatusTooManyRequests)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"task_id": id,
		"status":  domain.TaskStatusPending,
	})
}

// handleGetTask returns a task snapshot, optionally blocking until it
// finishes when ?wait=true.
// GET /v1/tasks/{id}
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if id == "" {
		http.Error(w, "missing task id", http.StatusBadRequest)
		return
	}

	taskID := domain.TaskID(id)
	var task domain.Task
	var err error

	if r.URL.Query().Get("wait") == "true" {
		timeout := 30 * time.Second
		if t := r.URL.Query().Get("timeout"); t != "" {
			if secs, convErr := strconv.Atoi(t); convErr == nil && secs > 0 && secs <= 300 {
				timeout = time.Duration(secs) * time.Second
			}
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		task, err = s.orchestrator.AwaitResult(ctx, taskID)
		if errors.Is(err, domain.ErrResultNotReady) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusRequestTimeout)
			json.NewEncoder(w).Encode(task)
			return
		}
	} else {
		task, err = s.orchestrator.GetTask(taskID)
	}

	if errors.Is(err, domain.ErrTaskNotFound) {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// handleStatus reports queue depth, task counters and the worker pool.
// GET /v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.orchestrator.Status())
}

// handleTaskSSE streams lifecycle events for one task.
// GET /v1/tasks/{id}/events
func (s *Server) handleTaskSSE(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	var taskID string
	if len(parts) >= 3 {
		taskID = parts[2] // v1/tasks/{id}/events
	}
	if taskID == "" {
		http.Error(w, "missing task id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := s.eventBus.Subscribe(taskID)
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}

// handleSearchTemplates queries the catalog.
// GET /v1/templates?q=&category=&complexity=&limit=
func (s *Server) handleSearchTemplates(w http.ResponseWriter, r *http.Request) {
	filter := domain.TemplateFilter{
		Query:      r.URL.Query().Get("q"),
		Category:   r.URL.Query().Get("category"),
		Complexity: r.URL.Query().Get("complexity"),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}

	templates, err := s.templates.Search(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if templates == nil {
		templates = []domain.Template{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"templates": templates,
		"count":     len(templates),
	})
}

// handleGetTemplate returns a single template.
// GET /v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/templates/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	tmpl, err := s.templates.Get(r.Context(), domain.TemplateID(id))
	if errors.Is(err, domain.ErrTemplateNotFound) {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tmpl)
}

// handleSaveTemplate upserts a template into the catalog.
// POST /v1/templates
func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl domain.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if tmpl.ID == "" {
		tmpl.ID = domain.NewTemplateID()
		tmpl.CreatedAt = time.Now()
	}
	tmpl.UpdatedAt = time.Now()
	if !tmpl.IsActive {
		tmpl.IsActive = true
	}

	if err := s.templates.Save(r.Context(), tmpl); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tmpl)
}

// handleListCategories returns category counts.
// GET /v1/templates/categories
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	counts, err := s.templates.Categories(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if counts == nil {
		counts = []domain.CategoryCount{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"categories": counts,
		"count":      len(counts),
	})
}

// handleListWorkflows returns the user's locally tracked workflows.
// GET /v1/workflows?user_id=
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	workflows, err := s.workflows.ListLocal(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if workflows == nil {
		workflows = []domain.UserWorkflow{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

type sessionRequest struct {
	UserID    int64  `json:"user_id"`
	ServerURL string `json:"server_url"`
	APIKey    string `json:"api_key"`
}

// handleConfigureSession stores server credentials for a user.
// PUT /v1/session
func (s *Server) handleConfigureSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	session, err := s.sessions.Configure(r.Context(), req.UserID, req.ServerURL, req.APIKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user_id":    session.UserID,
		"server_url": session.N8NURL,
		"configured": session.Configured(),
	})
}

// handleGetSession returns the session with the API key masked.
// GET /v1/session?user_id=
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, masked, err := s.sessions.Get(r.Context(), userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user_id":        session.UserID,
		"server_url":     session.N8NURL,
		"api_key_masked": masked,
		"last_activity":  session.LastActivity,
	})
}

// handleListExecutions returns recent execution logs.
// GET /v1/executions?workflow_id=&limit=
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflow_id")
	if workflowID == "" {
		http.Error(w, "workflow_id is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	logs, err := s.executions.Recent(r.Context(), workflowID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []domain.ExecutionLog{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"executions": logs,
		"count":      len(logs),
	})
}

// handleExecutionStats aggregates a user's execution history.
// GET /v1/executions/stats?user_id=
func (s *Server) handleExecutionStats(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := s.executions.Stats(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

type classifyRequest struct {
	Message string `json:"message"`
}

// handleClassify maps a chat message to an intent.
// POST /v1/chat/classify
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	intent := s.nlu.Classify(r.Context(), req.Message)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intent)
}

// handleListThoughts returns the thinking history.
// GET /v1/thoughts?worker=&limit=
func (s *Server) handleListThoughts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	thoughts := s.thinking.History(r.URL.Query().Get("worker"), limit)
	if thoughts == nil {
		thoughts = []domain.Thought{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"thoughts": thoughts,
		"count":    len(thoughts),
	})
}

type reminderRequest struct {
	UserID       int64  `json:"user_id"`
	Message      string `json:"message"`
	DelaySeconds int    `json:"delay_seconds"`
}

// handleCreateReminder schedules a one-shot reminder.
// POST /v1/reminders
func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" || req.DelaySeconds <= 0 {
		http.Error(w, "message and positive delay_seconds are required", http.StatusBadRequest)
		return
	}

	reminder := s.reminders.Schedule(r.Context(), req.UserID, req.Message, time.Duration(req.DelaySeconds)*time.Second)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(reminder)
}

// handleCancelReminder cancels a pending reminder.
// DELETE /v1/reminders/{id}
func (s *Server) handleCancelReminder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/reminders/")
	if id == "" {
		http.Error(w, "missing reminder id", http.StatusBadRequest)
		return
	}
	if !s.reminders.Cancel(id) {
		http.Error(w, "reminder not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSettings returns the config with secrets masked.
// GET /v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.settings.GetMaskedConfig())
}

// handleUpdateSettings validates and persists new settings.
// PUT /v1/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update domain.AppConfig
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.settings.UpdateConfig(r.Context(), &update); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.settings.GetMaskedConfig())
}

// handleTranscribe accepts a multipart audio upload and returns text.
// POST /v1/voice/transcribe
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		http.Error(w, "voice provider not configured", http.StatusServiceUnavailable)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing audio file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	text, err := s.voice.Transcribe(r.Context(), file, header.Filename)
	if err != nil {
		s.logger.Error("transcription failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"text": text})
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// handleSynthesize turns text into mp3 audio.
// POST /v1/voice/synthesize
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		http.Error(w, "voice provider not configured", http.StatusServiceUnavailable)
		return
	}

	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	audio, err := s.voice.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("speech synthesis failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(audio)
}

func userIDParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return 0, fmt.Errorf("user_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user_id: %w", err)
	}
	return id, nil
}
