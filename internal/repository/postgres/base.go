package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"
)

// RetryConfig controls how transient database failures are retried.
type RetryConfig struct {
	Attempts int
	Backoff  time.Duration
	MaxDelay time.Duration
}

const defaultRetryBackoff = 50 * time.Millisecond

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db    *sqlx.DB
	retry RetryConfig
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB, retry RetryConfig) BaseRepository {
	return BaseRepository{db: db, retry: retry}
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// withRetry runs fn, retrying transient failures with exponential backoff.
// Non-transient errors and context cancellation end the loop immediately.
func (r *BaseRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.retry.Attempts <= 0 {
		return fn(ctx)
	}

	base := r.retry.Backoff
	if base <= 0 {
		base = defaultRetryBackoff
	}
	backoff := retry.NewExponential(base)
	if r.retry.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(r.retry.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(uint64(r.retry.Attempts), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// isTransient reports whether err is worth retrying: lost connections,
// serialization failures, deadlocks and resource exhaustion.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53":
			return true
		}
		return pqErr.Code == "57P01"
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
