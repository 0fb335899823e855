// Package main is the entry point for the testplane controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"testplane/internal/artifacts"
	"testplane/internal/config"
	"testplane/internal/controller"
	"testplane/internal/controller/handlers"
	"testplane/internal/controller/middleware"
	"testplane/internal/logger"
	"testplane/internal/observability"
	"testplane/internal/queue/streams"
	"testplane/internal/store/postgres"

	"go.opentelemetry.io/otel"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: testplane.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logr := logger.New(cfg.LogLevel)

	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		version, err := postgres.Migrate(store.DB())
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		logr.Info("schema migrated", "version", version)
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "testplane-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logr.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("testplane-controller")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logr.Error("failed to shutdown metrics", "error", err)
		}
	}()

	queues, err := streams.Open(ctx, cfg, store, "testplane-controller")
	if err != nil {
		log.Fatalf("Failed to open queue: %v", err)
	}
	defer queues.Close()

	if err := queues.RegisterDepthGauge(otel.Meter("testplane-controller"), logr); err != nil {
		logr.Warn("failed to register queue depth metric", "error", err)
	}

	// The controller only reads artifacts; it never creates buckets.
	var storage artifacts.Storage
	if cfg.StorageBackend == artifacts.BackendMinio {
		storage, err = artifacts.NewMinioStorage(minioConfig(cfg))
	} else {
		storage, err = artifacts.NewLocalStorage(cfg.ArtifactsRoot)
	}
	if err != nil {
		log.Fatalf("Failed to init artifact storage: %v", err)
	}
	locator := artifacts.NewService(storage, artifacts.ServiceConfig{
		Root:       cfg.ArtifactsRoot,
		PresignTTL: cfg.PresignTTL,
	}, logr)

	h := handlers.New(store, queues.Publisher(), locator, logr)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateLimitBurst)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go limiter.Run(sweepCtx)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, controller.Routes(h, limiter, metricsHandler))

	go func() {
		logr.Info("testplane controller starting", "addr", addr, "queue", cfg.QueueBackend)
		if err := srv.Run(ctx); err != nil {
			logr.Error("server stopped", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	logr.Info("server exited properly")
}

func minioConfig(cfg *config.Config) artifacts.MinioConfig {
	return artifacts.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
		UseSSL:    cfg.MinioUseSSL,
	}
}
