// Package main is the entry point for the testplane worker.
// A worker runs one role: "llm" turns natural-language test cases into plans,
// "runner" executes ready plans in a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"testplane/internal/artifacts"
	"testplane/internal/config"
	"testplane/internal/llm"
	"testplane/internal/logger"
	"testplane/internal/observability"
	"testplane/internal/plan"
	"testplane/internal/queue"
	"testplane/internal/queue/streams"
	"testplane/internal/runner"
	"testplane/internal/runner/browser"
	"testplane/internal/store/postgres"
	"testplane/internal/worker"
)

const (
	roleLLM    = "llm"
	roleRunner = "runner"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: testplane.yaml in current directory)")
	role := flag.String("role", roleRunner, "Worker role: llm or runner")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *role != roleLLM && *role != roleRunner {
		log.Fatalf("Unknown role %q (want %s or %s)", *role, roleLLM, roleRunner)
	}
	logr := logger.New(cfg.LogLevel).With("role", *role)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "testplane-worker-"+*role, cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logr.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("testplane-worker-" + *role)
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logr.Error("failed to shutdown metrics", "error", err)
		}
	}()
	metrics, err := observability.NewWorkerMetrics()
	if err != nil {
		log.Fatalf("Failed to init worker metrics: %v", err)
	}

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	queues, err := streams.Open(ctx, cfg, store, "testplane-worker-"+*role)
	if err != nil {
		log.Fatalf("Failed to open queue: %v", err)
	}
	defer queues.Close()

	limits := plan.Limits{MaxSteps: cfg.PlanMaxSteps, MaxAssertions: cfg.PlanMaxAssertions}

	var (
		kind    queue.Kind
		handler worker.Handler
		cleanup func()
	)
	switch *role {
	case roleLLM:
		kind = queue.KindGeneration
		generator, err := llm.New(llm.Config{
			Provider:   cfg.LLMProvider,
			BaseURL:    cfg.LLMBaseURL,
			Model:      cfg.LLMModel,
			APIKey:     cfg.LLMAPIKey,
			NumPredict: cfg.LLMNumPredict,
			NumCtx:     cfg.LLMNumCtx,
		})
		if err != nil {
			log.Fatalf("Failed to create LLM client: %v", err)
		}
		handler = worker.NewGenerationHandler(store, store, generator, limits, logr)
		logr.Info("using llm", "provider", cfg.LLMProvider, "model", cfg.LLMModel)

	case roleRunner:
		kind = queue.KindExecution
		handler, cleanup = newRunnerHandler(ctx, cfg, store, limits, logr, metrics)
	}
	if cleanup != nil {
		defer cleanup()
	}

	hostname, _ := os.Hostname()
	agent := worker.New(queues.Stream(kind), handler, worker.AgentConfig{
		ID:           fmt.Sprintf("%s-%s-%d", *role, hostname, os.Getpid()),
		Kind:         kind,
		BatchSize:    cfg.QueueBatchSize,
		BlockTimeout: cfg.QueueBlockTimeout,
		ErrorBackoff: cfg.QueueErrorBackoff,
		MaxBackoff:   cfg.WorkerMaxBackoff,
	}, logr, metrics)

	logr.Info("worker started", "queue", cfg.QueueBackend, "stream", kind)
	go agent.Run(ctx)

	// Start a dedicated metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		logr.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logr.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down worker")
	cancel()

	<-agent.Done()
}

func newRunnerHandler(ctx context.Context, cfg *config.Config, store *postgres.Store, limits plan.Limits, logr *slog.Logger, metrics *observability.WorkerMetrics) (worker.Handler, func()) {
	driver, err := browser.New(cfg.BrowserDriver)
	if err != nil {
		log.Fatalf("Failed to create browser driver: %v", err)
	}

	storage, err := artifacts.NewStorage(ctx, cfg.StorageBackend, cfg.ArtifactsRoot, artifacts.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("Failed to init artifact storage: %v", err)
	}
	uploader := artifacts.NewService(storage, artifacts.ServiceConfig{
		Root:       cfg.ArtifactsRoot,
		KeepLocal:  cfg.KeepLocalArtifacts,
		PresignTTL: cfg.PresignTTL,
	}, logr)

	engine := runner.New(driver, runner.Config{
		ArtifactsRoot:  cfg.ArtifactsRoot,
		DefaultTimeout: cfg.BrowserTimeout,
	}, logr)
	logr.Info("using browser driver", "driver", cfg.BrowserDriver, "storage", cfg.StorageBackend)

	cleanup := func() {
		if pw, ok := driver.(*browser.Playwright); ok {
			if err := pw.Stop(); err != nil {
				logr.Warn("failed to stop playwright", "error", err)
			}
		}
	}
	return worker.NewExecutionHandler(store, store, engine, uploader, limits, logr, metrics), cleanup
}
