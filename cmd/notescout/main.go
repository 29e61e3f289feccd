package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wenjiegu/notescout/internal/chat"
	"github.com/wenjiegu/notescout/internal/config"
	"github.com/wenjiegu/notescout/internal/content"
	"github.com/wenjiegu/notescout/internal/executor"
	"github.com/wenjiegu/notescout/internal/history"
	"github.com/wenjiegu/notescout/internal/httpapi"
	"github.com/wenjiegu/notescout/internal/llm"
	"github.com/wenjiegu/notescout/internal/notify"
	"github.com/wenjiegu/notescout/internal/observability"
	"github.com/wenjiegu/notescout/internal/taskflow"
	"github.com/wenjiegu/notescout/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	transcripts, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer transcripts.Close()

	var brain llm.Client
	if strings.TrimSpace(cfg.LLMBaseURL) == "" || strings.EqualFold(cfg.LLMModel, "mock") {
		brain = llm.NewMockClient()
		log.Printf("llm client: mock")
	} else {
		brain = llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		log.Printf("llm client: %s (model %s)", cfg.LLMBaseURL, cfg.LLMModel)
	}

	var notes content.Service
	if strings.TrimSpace(cfg.ContentServiceURL) == "" {
		notes = content.NewMockService()
		log.Printf("content service: mock")
	} else {
		notes = content.NewHTTPBridge(cfg.ContentServiceURL)
		log.Printf("content service: %s", cfg.ContentServiceURL)
	}

	registry := notify.NewRegistry()
	manager := tasks.NewManager(taskflow.NewTaskNotifier(registry, metrics))

	exec := executor.New(manager, brain, notes, registry, metrics, executor.Config{
		MaxNotesPerBatch:    cfg.MaxItemsPerBatch,
		MaxKeywordsPerBatch: cfg.MaxKeywordsPerBatch,
		MaxBatches:          cfg.MaxBatches,
		Model:               cfg.LLMModel,
	})
	flow := taskflow.New(manager, exec, 10*time.Minute)

	chatSvc := chat.NewService(brain, manager, registry, transcripts, chat.Config{
		Model:            cfg.LLMModel,
		SegmentMinLength: cfg.SegmentMinLength,
		HistoryRetention: cfg.HistoryRetention,
	})

	api := httpapi.New(cfg, chatSvc, flow, registry, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
