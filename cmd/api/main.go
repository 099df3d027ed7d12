package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/passpolicy/config"
	"github.com/jwalitptl/passpolicy/internal/app"
	auditHandler "github.com/jwalitptl/passpolicy/internal/handler/audit"
	"github.com/jwalitptl/passpolicy/internal/handler/health"
	passwordHandler "github.com/jwalitptl/passpolicy/internal/handler/password"
	policyHandler "github.com/jwalitptl/passpolicy/internal/handler/policy"
	promHandler "github.com/jwalitptl/passpolicy/internal/handler/prometheus"
	"github.com/jwalitptl/passpolicy/internal/middleware"
	engine "github.com/jwalitptl/passpolicy/internal/password"
	policyStore "github.com/jwalitptl/passpolicy/internal/policy"
	"github.com/jwalitptl/passpolicy/internal/router"
	"github.com/jwalitptl/passpolicy/internal/service/audit"
	"github.com/jwalitptl/passpolicy/internal/service/event"
	passwordService "github.com/jwalitptl/passpolicy/internal/service/password"
	policyService "github.com/jwalitptl/passpolicy/internal/service/policy"
	internalWorker "github.com/jwalitptl/passpolicy/internal/worker"
	"github.com/jwalitptl/passpolicy/pkg/auth"
	"github.com/jwalitptl/passpolicy/pkg/logger"
	"github.com/jwalitptl/passpolicy/pkg/metrics"
	"github.com/jwalitptl/passpolicy/pkg/security"
	"github.com/jwalitptl/passpolicy/pkg/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv("PASSPOLICY_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, cfg.Monitoring.Namespace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage, cache and messaging
	components, err := app.Build(ctx, cfg, appLogger, m)
	if err != nil {
		appLogger.Fatal(err, "failed to initialize dependencies")
	}
	defer components.Close()

	// Engine
	store := policyStore.NewStore()
	validator := engine.NewValidator(cfg.Password.CommonPasswords)
	generator := engine.NewGenerator(validator, cfg.Password.MaxAttempts)
	tracker := engine.NewHistoryTracker(security.NewBcryptHasher(cfg.Password.BcryptCost))

	// Services
	auditSvc := audit.NewService(components.Audits)
	policySvc := policyService.NewService(store, components.Policies, auditSvc, validator, appLogger, m)
	if err := policySvc.LoadPolicy(ctx); err != nil {
		appLogger.Fatal(err, "failed to load password policy")
	}
	passwordSvc := passwordService.NewService(
		store,
		validator,
		generator,
		tracker,
		components.History,
		passwordService.Config{DefaultLength: cfg.Password.DefaultLength},
		appLogger,
		m,
	)

	if components.Publisher != nil {
		if err := components.Publisher.Subscribe(ctx, policySvc.HandleEvent); err != nil {
			appLogger.Fatal(err, "failed to subscribe to policy events")
		}

		// With in-memory storage no separate worker can see this outbox.
		if cfg.Persistence.Driver == config.DriverMemory {
			processor, err := worker.NewOutboxProcessor(components.Outbox, components.Publisher, outboxConfig(cfg), appLogger, m)
			if err != nil {
				appLogger.Fatal(err, "invalid outbox configuration")
			}
			go processor.Start(ctx)
		}
	}

	if cfg.Persistence.Driver == config.DriverMemory {
		cleanup := internalWorker.NewAuditCleanupWorker(auditSvc, event.NewService(components.Outbox), internalWorker.CleanupConfig{
			AuditRetention:  cfg.Password.AuditRetention,
			OutboxRetention: cfg.Outbox.Retention,
			Interval:        cfg.Cache.CleanupInterval,
		}, appLogger)
		go cleanup.Start(ctx)
	}

	// HTTP
	handlers := router.Handlers{
		Password: passwordHandler.NewHandler(passwordSvc, cfg.JWT.AdminRole),
		Policy:   policyHandler.NewHandler(policySvc),
		Audit:    auditHandler.NewHandler(policySvc),
		Health:   health.NewHandler(components.Pingers()),
	}
	if cfg.Monitoring.PrometheusEnabled {
		handlers.Metrics = promHandler.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, cfg.Monitoring.Namespace)
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)),
		handlers,
		router.RouterConfig{
			Mode:             ginMode(cfg.Server.Mode),
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       middleware.DefaultCORSConfig(),
			AdminRole:        cfg.JWT.AdminRole,
			MetricsPath:      cfg.Monitoring.MetricsPath,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server
	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port, "driver", cfg.Persistence.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}

func outboxConfig(cfg *config.Config) worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}
