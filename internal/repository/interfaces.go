package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/passpolicy/internal/model"
)

// All repository interfaces in one file
type (
	// PolicyRepository persists the active password policy. LoadPolicy
	// returns nil, nil when no policy has been stored yet.
	PolicyRepository interface {
		LoadPolicy(ctx context.Context) (*model.PolicyRecord, error)
		// SavePolicy stores record and enqueues events in the same unit of work.
		SavePolicy(ctx context.Context, record *model.PolicyRecord, events ...*model.OutboxEvent) error
	}

	// HistoryRepository persists per-identity password history. LoadHistory
	// returns nil, nil for an identity with no stored history.
	HistoryRepository interface {
		LoadHistory(ctx context.Context, identityID string) (*model.PasswordHistory, error)
		SaveHistory(ctx context.Context, history *model.PasswordHistory) error
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, limit int) ([]*model.AuditLog, error)
		Count(ctx context.Context) (int, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
