package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/models"
)

// ErrNoTransaction is returned by mutations invoked outside RunInTransaction
var ErrNoTransaction = errors.New("operation requires an active transaction")

type txContextKey struct{}

// RetryPolicy bounds how a transaction is retried on transient conflicts
type RetryPolicy struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxTotalWait time.Duration
	LockTimeout  time.Duration
}

// DefaultRetryPolicy returns the policy used for seat reservation
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   5,
		BaseDelay:    20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		MaxTotalWait: 2 * time.Second,
		LockTimeout:  3 * time.Second,
	}
}

// Backoff returns the jittered delay before retry number attempt (0-based).
// The delay doubles per attempt, is capped at MaxDelay, and lands in [d/2, d].
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)+1))
}

// TxExecutor runs units of work in SERIALIZABLE transactions and retries them
// on serialization failures, deadlocks and lock timeouts
type TxExecutor struct {
	db     *sqlx.DB
	policy RetryPolicy
	logger *logrus.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewTxExecutor creates a new TxExecutor
func NewTxExecutor(db *sqlx.DB, policy RetryPolicy, logger *logrus.Logger) *TxExecutor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TxExecutor{
		db:     db,
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Policy returns the executor's default retry policy
func (e *TxExecutor) Policy() RetryPolicy {
	return e.policy
}

// WithTx runs fn with the executor's default policy
func (e *TxExecutor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.RunInTransaction(ctx, e.policy, fn)
}

// RunInTransaction executes fn inside a SERIALIZABLE transaction carried by the context.
// fn may run more than once and must not have side effects outside the transaction.
// When ctx already carries a transaction, fn joins it and no retry happens at this level.
func (e *TxExecutor) RunInTransaction(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	var waited time.Duration
	for attempt := 0; ; attempt++ {
		err := e.runOnce(ctx, policy, fn)
		if err == nil {
			if attempt > 0 {
				e.logger.WithField("attempts", attempt+1).Debug("Transaction committed after retry")
			}
			return nil
		}

		if !IsRetryable(err) {
			return err
		}

		if attempt >= policy.MaxRetries {
			e.logger.WithFields(logrus.Fields{
				"attempts": attempt + 1,
				"sqlstate": SQLState(err),
			}).Warn("Transaction retries exhausted")
			return &models.StorageConflictError{Attempts: attempt + 1, Err: err}
		}

		delay := policy.Backoff(attempt)
		if policy.MaxTotalWait > 0 && waited+delay > policy.MaxTotalWait {
			e.logger.WithFields(logrus.Fields{
				"attempts": attempt + 1,
				"waited":   waited.String(),
			}).Warn("Transaction retry budget exceeded")
			return &models.StorageTimeoutError{Waited: waited, Err: err}
		}

		e.logger.WithFields(logrus.Fields{
			"attempt":  attempt + 1,
			"sqlstate": SQLState(err),
			"delay":    delay.String(),
		}).Debug("Retrying transaction after transient conflict")

		if err := e.sleep(ctx, delay); err != nil {
			return fmt.Errorf("transaction retry aborted: %w", err)
		}
		waited += delay
	}
}

// runOnce performs one attempt: begin, fn, commit. Any error rolls back.
func (e *TxExecutor) runOnce(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	tx, err := e.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			e.logger.WithError(rbErr).Warn("Failed to roll back transaction")
		}
	}()

	if policy.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", policy.LockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		return err
	}

	finished = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TxFromContext returns the transaction carried by ctx, if any
func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sqlx.Tx)
	return tx, ok && tx != nil
}

// requireTx returns the context transaction or ErrNoTransaction
func requireTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return nil, ErrNoTransaction
	}
	return tx, nil
}

// queryer returns the context transaction when present, otherwise the pool
func queryer(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
