package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Engine metrics
	Validations        *prometheus.CounterVec
	ValidationIssues   *prometheus.CounterVec
	ScoreDistribution  prometheus.Histogram
	GenerationAttempts prometheus.Histogram
	PolicyUpdates      *prometheus.CounterVec
	HistoryRecords     prometheus.Counter
	ExpiryChecks       *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// Persistence metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "validations_total",
			Help:      "Total number of password validations by outcome and strength label",
		}, []string{"valid", "label"}),
		ValidationIssues: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "validation_issues_total",
			Help:      "Total number of issues raised, by issue code",
		}, []string{"issue"}),
		ScoreDistribution: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "password_score",
			Help:      "Distribution of computed password scores",
			Buckets:   []float64{20, 40, 60, 75, 90, 100},
		}),
		GenerationAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "generation_attempts",
			Help:      "Validator round trips needed to produce a compliant password",
			Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
		}),
		PolicyUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "updates_total",
			Help:      "Total number of policy write attempts by action and status",
		}, []string{"action", "status"}),
		HistoryRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "records_total",
			Help:      "Total number of recorded password changes",
		}),
		ExpiryChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "expiry_checks_total",
			Help:      "Total number of expiry checks by resulting state",
		}, []string{"state"}),

		// Outbox metrics
		OutboxEventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		// Database metrics
		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of persistence operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of persistence operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		// Redis metrics
		RedisOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Total number of policy cache operations",
		}, []string{"operation", "status"}),
	}
}

// NewNop returns metrics bound to a private registry, for tests and tools
// that never expose a scrape endpoint.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "passpolicy")
}
