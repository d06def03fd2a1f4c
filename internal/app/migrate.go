package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// retryPolicy bounds how often goose is re-run after a transient failure.
type retryPolicy struct {
	attempts int
	initial  time.Duration
	ceiling  time.Duration
}

var migrationRetry = retryPolicy{attempts: 3, initial: 100 * time.Millisecond, ceiling: 3 * time.Second}

// Contention codes CockroachDB and Postgres return while another node holds
// the goose version table.
var transientSQLStates = []string{
	"40001", // serialization_failure
	"40P01", // deadlock_detected
	"55P03", // lock_not_available
}

func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.initial << (attempt - 1)
	if d <= 0 || d > p.ceiling {
		return p.ceiling
	}
	return d
}

func migrateWithRetry(ctx context.Context, logger *slog.Logger, fn func(context.Context) error) error {
	return migrationRetry.run(ctx, logger, fn)
}

func (p retryPolicy) run(ctx context.Context, logger *slog.Logger, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = fn(ctx); err == nil || !shouldRetryMigration(err) {
			return err
		}
		if attempt == p.attempts {
			break
		}

		wait := p.delay(attempt)
		logger.Warn("migration hit contention, retrying", "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("migrations still failing after %d attempts: %w", p.attempts, err)
}

func shouldRetryMigration(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, pgx.ErrTxClosed):
		return true
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, code := range transientSQLStates {
		if pgErr.Code == code {
			return true
		}
	}
	return false
}
