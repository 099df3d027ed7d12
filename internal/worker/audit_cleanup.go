package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/passpolicy/internal/service/audit"
	"github.com/jwalitptl/passpolicy/internal/service/event"
	"github.com/jwalitptl/passpolicy/pkg/logger"
)

type CleanupConfig struct {
	AuditRetention  time.Duration
	OutboxRetention time.Duration
	Interval        time.Duration
}

// AuditCleanupWorker prunes old admin audit entries and delivered outbox
// events. A zero retention disables that half.
type AuditCleanupWorker struct {
	auditor *audit.Service
	events  *event.Service
	config  CleanupConfig
	logger  *logger.Logger
	now     func() time.Time
}

func NewAuditCleanupWorker(auditor *audit.Service, events *event.Service, config CleanupConfig, log *logger.Logger) *AuditCleanupWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditCleanupWorker{
		auditor: auditor,
		events:  events,
		config:  config,
		logger:  log.Component("cleanup_worker"),
		now:     time.Now,
	}
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	if w.config.Interval <= 0 {
		w.logger.Warn("cleanup interval not set, cleanup worker disabled")
		return
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "cleanup failed")
			}
		}
	}
}

// Cleanup runs one pass. Both halves run even when the first fails.
func (w *AuditCleanupWorker) Cleanup(ctx context.Context) error {
	var firstErr error

	if w.auditor != nil && w.config.AuditRetention > 0 {
		cutoff := w.now().Add(-w.config.AuditRetention)
		rows, err := w.auditor.Cleanup(ctx, cutoff)
		if err != nil {
			firstErr = fmt.Errorf("failed to cleanup audit logs: %w", err)
		} else if rows > 0 {
			w.logger.Info("cleaned up audit logs", "rows", rows, "before", cutoff.Format(time.RFC3339))
		}
	}

	if w.events != nil && w.config.OutboxRetention > 0 {
		rows, err := w.events.CleanupProcessedEvents(ctx, w.config.OutboxRetention)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if rows > 0 {
			w.logger.Info("cleaned up outbox events", "rows", rows)
		}
	}

	return firstErr
}
