package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if len(log.Data) == 0 {
		log.Data = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO policy_audit_logs (
			id, actor, action, data, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	err := r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			log.ID,
			log.Actor,
			log.Action,
			[]byte(log.Data),
			log.IPAddress,
			log.UserAgent,
			log.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 {
		limit = model.DefaultAuditLimit
	}

	query := `
		SELECT id, actor, action, data, ip_address, user_agent, created_at
		FROM policy_audit_logs
		ORDER BY created_at DESC
		LIMIT $1`

	var logs []*model.AuditLog
	err := r.withRetry(ctx, func(ctx context.Context) error {
		logs = logs[:0]
		return r.db.SelectContext(ctx, &logs, query, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

func (r *auditRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM policy_audit_logs`)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return n, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM policy_audit_logs
		WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	return result.RowsAffected()
}
