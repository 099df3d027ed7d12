// Package redis caches the active policy record in front of the durable
// policy repository so replicas do not hit postgres on every startup or
// reload.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/internal/repository"
	"github.com/jwalitptl/passpolicy/pkg/metrics"
)

const DefaultPolicyKey = "passpolicy:policy:active"

type PolicyCache struct {
	next    repository.PolicyRepository
	client  *redis.Client
	key     string
	ttl     time.Duration
	cb      *gobreaker.CircuitBreaker
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewPolicyCache decorates next. Cache failures are logged and fall through
// to next; they never fail a load or a save.
func NewPolicyCache(next repository.PolicyRepository, client *redis.Client, ttl time.Duration, logger zerolog.Logger, m *metrics.Metrics) *PolicyCache {
	l := logger.With().Str("component", "policy_cache").Logger()
	return &PolicyCache{
		next:   next,
		client: client,
		key:    DefaultPolicyKey,
		ttl:    ttl,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "policy-cache",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
		logger:  l,
		metrics: m,
	}
}

func (c *PolicyCache) LoadPolicy(ctx context.Context) (*model.PolicyRecord, error) {
	var raw []byte
	_, err := c.cb.Execute(func() (interface{}, error) {
		var err error
		raw, err = c.client.Get(ctx, c.key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	})

	switch {
	case err != nil:
		c.observe("get", "error")
		c.logger.Warn().Err(err).Msg("policy cache read failed, falling back")
	case raw != nil:
		var record model.PolicyRecord
		if err := json.Unmarshal(raw, &record); err == nil {
			c.observe("get", "hit")
			return &record, nil
		}
		c.observe("get", "corrupt")
		c.logger.Warn().Msg("discarding undecodable cached policy")
	default:
		c.observe("get", "miss")
	}

	record, err := c.next.LoadPolicy(ctx)
	if err != nil || record == nil {
		return record, err
	}
	c.store(ctx, record)
	return record, nil
}

// SavePolicy writes through to next and then refreshes the cached copy.
// If the refresh fails the stale key is deleted.
func (c *PolicyCache) SavePolicy(ctx context.Context, record *model.PolicyRecord, events ...*model.OutboxEvent) error {
	if err := c.next.SavePolicy(ctx, record, events...); err != nil {
		return err
	}
	c.store(ctx, record)
	return nil
}

func (c *PolicyCache) store(ctx context.Context, record *model.PolicyRecord) {
	raw, err := json.Marshal(record)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode policy for cache")
		return
	}

	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, c.key, raw, c.ttl).Err()
	})
	if err != nil {
		c.observe("set", "error")
		c.logger.Warn().Err(err).Msg("policy cache write failed")
		if delErr := c.client.Del(ctx, c.key).Err(); delErr != nil {
			c.logger.Debug().Err(delErr).Msg("stale policy cache entry not removed")
		}
		return
	}
	c.observe("set", "success")
}

func (c *PolicyCache) observe(op, status string) {
	if c.metrics != nil {
		c.metrics.RedisOperations.WithLabelValues(op, status).Inc()
	}
}

var _ repository.PolicyRepository = (*PolicyCache)(nil)
