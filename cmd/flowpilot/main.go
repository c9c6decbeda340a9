package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/flowpilot/internal/adapters/duckdb"
	"github.com/manthysbr/flowpilot/internal/adapters/llm"
	"github.com/manthysbr/flowpilot/internal/adapters/n8n"
	appconfig "github.com/manthysbr/flowpilot/internal/config"
	"github.com/manthysbr/flowpilot/internal/core/domain"
	"github.com/manthysbr/flowpilot/internal/core/services"
	"github.com/manthysbr/flowpilot/pkg/console"
	"github.com/rs/cors"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting flowpilot")

	if err := run(logger); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	// Initialize Adapters
	dbPath := os.Getenv("FLOWPILOT_DB_PATH")
	if dbPath == "" {
		dbPath = "flowpilot.db"
	}

	repo, err := duckdb.NewRepository(dbPath)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	// Encryption for stored API keys
	secretKey, err := appconfig.NewSecretKey()
	if err != nil {
		return fmt.Errorf("failed to init secret key: %w", err)
	}

	// Settings store: loads persisted config from DuckDB with encrypted secrets
	settingsStore, err := appconfig.NewSettingsStore(logger, repo, secretKey)
	if err != nil {
		return fmt.Errorf("failed to init settings store: %w", err)
	}

	cfg := settingsStore.GetConfig()
	orchCfg := cfg.Orchestrator

	llmProvider := llm.NewHotProvider(llm.FromConfig(cfg.Providers.LLM))
	voiceProvider := llm.NewHotVoice(llm.NewVoiceProvider(cfg.Providers.Voice))

	// Hot-swap providers when settings change via the API
	settingsStore.OnChange(func(updated *domain.AppConfig) {
		llmProvider.Set(llm.FromConfig(updated.Providers.LLM))
		voiceProvider.Set(llm.NewVoiceProvider(updated.Providers.Voice))
		logger.Info("providers reloaded", "llm_mode", updated.Providers.LLM.Mode)
	})

	// Core Services
	eventBus := services.NewEventBus(logger)
	registry := services.NewTaskRegistry(logger, orchCfg.HistoryCapacity)
	router := services.NewTaskRouter(logger, nil)
	thinking := services.NewThinkingService(logger, llmProvider)
	nlu := services.NewNLUService(logger, llmProvider)

	sessions := services.NewSessionService(logger, repo, secretKey)
	templates := services.NewTemplateService(logger, repo)
	workflows := services.NewWorkflowService(logger, repo, sessions, n8n.Factory)
	executions := services.NewExecutionLogService(logger, repo)
	reminders := services.NewReminderService(logger, nil)
	defer reminders.Shutdown()

	// Worker pool
	router.Register(services.NewTemplateWorker(logger, templates, thinking))
	router.Register(services.NewServerWorker(logger, workflows, thinking))
	router.Register(services.NewCoordinatorWorker(logger, router, thinking))
	router.Register(services.NewMonitorWorker(logger, router, registry, thinking))

	orchestrator := services.NewOrchestrator(logger, router, registry, eventBus, services.OrchestratorConfig{
		QueueCapacity: orchCfg.QueueCapacity,
		MaxConcurrent: int64(orchCfg.MaxConcurrent),
		PollInterval:  time.Duration(orchCfg.PollIntervalMS) * time.Millisecond,
	})
	orchestrator.Start(ctx)

	healthMonitor := services.NewHealthMonitor(logger, router,
		time.Duration(orchCfg.HealthIntervalSec)*time.Second,
		time.Duration(orchCfg.IdleWarnThresholdS)*time.Second,
	)
	reflection := services.NewReflectionLoop(logger, router, registry, thinking,
		time.Duration(orchCfg.ReflectIntervalSec)*time.Second,
	)

	// Console API
	apiServer := console.NewServer(logger, orchestrator, templates, workflows, sessions, executions, nlu, reminders, thinking, eventBus, settingsStore)
	apiServer.SetVoice(voiceProvider)

	// CORS Configuration
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:5174"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	handler := c.Handler(apiServer.Handler())

	port := 8080
	if p := os.Getenv("FLOWPILOT_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			port = n
		}
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Worker health monitoring
	g.Go(func() error {
		return healthMonitor.Run(gCtx)
	})

	// 2. Periodic reflection over orchestration activity
	g.Go(func() error {
		return reflection.Run(gCtx)
	})

	// 3. API Server
	g.Go(func() error {
		logger.Info("starting console api server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	// 4. Graceful Shutdown for API Server
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
