package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/passpolicy/config"
	"github.com/jwalitptl/passpolicy/internal/app"
	"github.com/jwalitptl/passpolicy/internal/handler/health"
	promHandler "github.com/jwalitptl/passpolicy/internal/handler/prometheus"
	"github.com/jwalitptl/passpolicy/internal/middleware"
	"github.com/jwalitptl/passpolicy/internal/service/audit"
	"github.com/jwalitptl/passpolicy/internal/service/event"
	internalWorker "github.com/jwalitptl/passpolicy/internal/worker"
	"github.com/jwalitptl/passpolicy/pkg/logger"
	"github.com/jwalitptl/passpolicy/pkg/metrics"
	"github.com/jwalitptl/passpolicy/pkg/worker"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig(os.Getenv("PASSPOLICY_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	// Initialize logger
	hostname, _ := os.Hostname()
	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	}).WithFields(map[string]interface{}{"worker_id": fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())})
	log.Logger = *appLogger.Zerolog()

	if cfg.Persistence.Driver != config.DriverPostgres {
		appLogger.Fatal(errors.New("unsupported driver"), "the worker needs shared postgres storage; the api runs the outbox itself with the memory driver")
	}
	if !cfg.Redis.Enabled {
		appLogger.Fatal(errors.New("redis disabled"), "the worker publishes to redis")
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, cfg.Monitoring.Namespace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := app.Build(ctx, cfg, appLogger, m)
	if err != nil {
		appLogger.Fatal(err, "Failed to initialize dependencies")
	}
	defer components.Close()

	processor, err := worker.NewOutboxProcessor(
		components.Outbox,
		components.Publisher,
		worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
		},
		appLogger,
		m,
	)
	if err != nil {
		appLogger.Fatal(err, "Invalid outbox configuration")
	}

	cleanup := internalWorker.NewAuditCleanupWorker(
		audit.NewService(components.Audits),
		event.NewService(components.Outbox),
		internalWorker.CleanupConfig{
			AuditRetention:  cfg.Password.AuditRetention,
			OutboxRetention: cfg.Outbox.Retention,
			Interval:        cfg.Cache.CleanupInterval,
		},
		appLogger,
	)

	// Health and metrics endpoints
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())
	health.NewHandler(components.Pingers()).RegisterRoutes(engine.Group(""))
	if cfg.Monitoring.PrometheusEnabled {
		metricsHandler := promHandler.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, cfg.Monitoring.Namespace)
		engine.GET(cfg.Monitoring.MetricsPath, metricsHandler.Handler())
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.WorkerPort),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "Health check server failed")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Health server forced to shutdown")
	}
}
