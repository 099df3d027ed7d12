// Package app wires configuration into the storage, cache and messaging
// collaborators shared by cmd/api and cmd/worker.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/passpolicy/config"
	"github.com/jwalitptl/passpolicy/internal/handler/health"
	"github.com/jwalitptl/passpolicy/internal/repository"
	"github.com/jwalitptl/passpolicy/internal/repository/memory"
	"github.com/jwalitptl/passpolicy/internal/repository/postgres"
	policyCache "github.com/jwalitptl/passpolicy/internal/repository/redis"
	"github.com/jwalitptl/passpolicy/pkg/logger"
	"github.com/jwalitptl/passpolicy/pkg/messaging"
	"github.com/jwalitptl/passpolicy/pkg/messaging/redis"
	"github.com/jwalitptl/passpolicy/pkg/metrics"
)

type Components struct {
	DB    *sqlx.DB
	Redis *goredis.Client

	Policies repository.PolicyRepository
	History  repository.HistoryRepository
	Audits   repository.AuditRepository
	Outbox   repository.OutboxRepository

	// Publisher is nil when redis is disabled.
	Publisher *messaging.BrokerAdapter

	closers []func() error
}

// Build connects the configured persistence driver and, when enabled, redis.
// The caller owns the result and must Close it.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*Components, error) {
	c := &Components{}

	switch cfg.Persistence.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		c.DB = db
		c.closers = append(c.closers, db.Close)

		if err := postgres.EnsureSchema(ctx, db); err != nil {
			c.Close()
			return nil, err
		}

		base := postgres.NewBaseRepository(db, postgres.RetryConfig{
			Attempts: cfg.Persistence.RetryAttempts,
			Backoff:  cfg.Persistence.RetryBackoff,
			MaxDelay: cfg.Persistence.RetryMaxDelay,
		})
		c.Policies = postgres.NewPolicyRepository(base)
		c.History = postgres.NewHistoryRepository(base)
		c.Audits = postgres.NewAuditRepository(base)
		c.Outbox = postgres.NewOutboxRepository(base)

	case config.DriverMemory:
		c.Outbox = memory.NewOutboxRepository()
		c.Policies = memory.NewPolicyRepository(c.Outbox)
		c.History = memory.NewHistoryRepository(0, cfg.Cache.CleanupInterval)
		c.Audits = memory.NewAuditRepository(memory.DefaultAuditCapacity)

	default:
		return nil, fmt.Errorf("unsupported persistence driver %q", cfg.Persistence.Driver)
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Redis = client

		zl := log.Component("messaging").Zerolog()
		c.Publisher = messaging.NewBrokerAdapter(redis.NewRedisBrokerFromClient(client, zl), cfg.Redis.Channel, *zl)
		c.closers = append(c.closers, c.Publisher.Close)

		c.Policies = policyCache.NewPolicyCache(c.Policies, client, cfg.Cache.PolicyTTL, *log.Component("policy_cache").Zerolog(), m)
	}

	return c, nil
}

// Pingers returns the readiness checks for the connected collaborators.
func (c *Components) Pingers() map[string]health.Pinger {
	checks := map[string]health.Pinger{}
	if c.DB != nil {
		checks["database"] = c.DB.PingContext
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases connections in reverse order of creation.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
