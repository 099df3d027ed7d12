package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/internal/repository"
)

type historyRepository struct {
	BaseRepository
}

func NewHistoryRepository(base BaseRepository) repository.HistoryRepository {
	return &historyRepository{base}
}

func (r *historyRepository) LoadHistory(ctx context.Context, identityID string) (*model.PasswordHistory, error) {
	query := `
		SELECT identity_id, entries, last_changed_at, change_count
		FROM password_history
		WHERE identity_id = $1`

	var h model.PasswordHistory
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.QueryRowxContext(ctx, query, identityID).
			Scan(&h.IdentityID, pq.Array(&h.Entries), &h.LastChangedAt, &h.ChangeCount)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load password history: %w", err)
	}
	return &h, nil
}

func (r *historyRepository) SaveHistory(ctx context.Context, h *model.PasswordHistory) error {
	if h == nil || h.IdentityID == "" {
		return fmt.Errorf("password history requires an identity")
	}

	query := `
		INSERT INTO password_history (identity_id, entries, last_changed_at, change_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity_id) DO UPDATE SET
			entries = EXCLUDED.entries,
			last_changed_at = EXCLUDED.last_changed_at,
			change_count = EXCLUDED.change_count`

	entries := h.Entries
	if entries == nil {
		entries = []string{}
	}

	err := r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query, h.IdentityID, pq.Array(entries), h.LastChangedAt, h.ChangeCount)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save password history: %w", err)
	}
	return nil
}
