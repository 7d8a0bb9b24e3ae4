package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrRetriesExhausted is returned when a retryable transaction kept failing.
var ErrRetriesExhausted = errors.New("transaction retries exhausted")

// TxFunc runs statements against an open transaction.
type TxFunc func(ctx context.Context, exec sqlx.ExtContext) error

// TxOptions controls isolation and retry behaviour of a gateway transaction.
type TxOptions struct {
	Label      string
	Isolation  sql.IsolationLevel
	ReadOnly   bool
	MaxRetries int
	Backoff    time.Duration
}

// TxObserver receives transaction timings.
type TxObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// RetryObserver is optionally implemented by a TxObserver to count retried attempts.
type RetryObserver interface {
	ObserveTxRetry(label string)
}

// Gateway scopes multi-statement work in transactions.
type Gateway struct {
	db       *sqlx.DB
	observer TxObserver
	logger   *zap.Logger
}

// NewGateway wraps db. observer may be nil.
func NewGateway(db *sqlx.DB, observer TxObserver, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{db: db, observer: observer, logger: logger}
}

// DB exposes the underlying handle for single-statement reads.
func (g *Gateway) DB() *sqlx.DB {
	return g.db
}

// WithinTx runs fn inside a transaction, committing on success and rolling back on any error.
// Serialization failures and deadlocks are retried up to opts.MaxRetries times with linear backoff.
func (g *Gateway) WithinTx(ctx context.Context, opts TxOptions, fn TxFunc) error {
	if opts.Label == "" {
		opts.Label = "tx"
	}
	for attempt := 1; ; attempt++ {
		err := g.runOnce(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt > opts.MaxRetries {
			return fmt.Errorf("%s: %w after %d attempts: %v", opts.Label, ErrRetriesExhausted, attempt, err)
		}
		if ro, ok := g.observer.(RetryObserver); ok {
			ro.ObserveTxRetry(opts.Label)
		}
		g.logger.Warn("retrying transaction",
			zap.String("label", opts.Label),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if opts.Backoff > 0 {
			timer := time.NewTimer(opts.Backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func (g *Gateway) runOnce(ctx context.Context, opts TxOptions, fn TxFunc) (err error) {
	start := time.Now()
	tx, err := g.db.BeginTxx(ctx, &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin %s: %w", opts.Label, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
		if g.observer != nil {
			g.observer.ObserveDBQuery(opts.Label, time.Since(start))
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", opts.Label, err)
	}
	return nil
}
