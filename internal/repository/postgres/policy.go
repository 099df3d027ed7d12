package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/passpolicy/internal/model"
	"github.com/jwalitptl/passpolicy/internal/repository"
)

const policyColumns = `
	min_length, max_length, require_uppercase, require_lowercase,
	require_numbers, require_special_chars, min_special_chars,
	prevent_common_passwords, prevent_user_info, prevent_reuse,
	max_age_days, warning_days, lockout_attempts, lockout_duration_minutes`

type policyRepository struct {
	BaseRepository
}

func NewPolicyRepository(base BaseRepository) repository.PolicyRepository {
	return &policyRepository{base}
}

func (r *policyRepository) LoadPolicy(ctx context.Context) (*model.PolicyRecord, error) {
	query := `SELECT ` + policyColumns + `, version, updated_by, updated_at
		FROM password_policies
		WHERE id = 1`

	var record model.PolicyRecord
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &record, query)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load password policy: %w", err)
	}
	return &record, nil
}

func (r *policyRepository) SavePolicy(ctx context.Context, record *model.PolicyRecord, events ...*model.OutboxEvent) error {
	if record == nil {
		return fmt.Errorf("policy record cannot be nil")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO password_policies (id, ` + policyColumns + `, version, updated_by, updated_at)
		VALUES (1,
			:min_length, :max_length, :require_uppercase, :require_lowercase,
			:require_numbers, :require_special_chars, :min_special_chars,
			:prevent_common_passwords, :prevent_user_info, :prevent_reuse,
			:max_age_days, :warning_days, :lockout_attempts, :lockout_duration_minutes,
			1, :updated_by, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			min_length = EXCLUDED.min_length,
			max_length = EXCLUDED.max_length,
			require_uppercase = EXCLUDED.require_uppercase,
			require_lowercase = EXCLUDED.require_lowercase,
			require_numbers = EXCLUDED.require_numbers,
			require_special_chars = EXCLUDED.require_special_chars,
			min_special_chars = EXCLUDED.min_special_chars,
			prevent_common_passwords = EXCLUDED.prevent_common_passwords,
			prevent_user_info = EXCLUDED.prevent_user_info,
			prevent_reuse = EXCLUDED.prevent_reuse,
			max_age_days = EXCLUDED.max_age_days,
			warning_days = EXCLUDED.warning_days,
			lockout_attempts = EXCLUDED.lockout_attempts,
			lockout_duration_minutes = EXCLUDED.lockout_duration_minutes,
			version = password_policies.version + 1,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING version`

	named, args, err := sqlx.Named(query, record)
	if err != nil {
		return fmt.Errorf("failed to bind policy query: %w", err)
	}

	err = r.withRetry(ctx, func(ctx context.Context) error {
		return r.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := tx.QueryRowxContext(ctx, tx.Rebind(named), args...).Scan(&record.Version); err != nil {
				return err
			}
			for _, event := range events {
				if err := insertOutboxEvent(ctx, tx, event); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to save password policy: %w", err)
	}
	return nil
}
