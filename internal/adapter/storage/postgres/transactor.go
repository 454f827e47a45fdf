package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// Transactor implements ports.TxRunner on top of a pgx pool.
type Transactor struct {
	pool        Pool
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool, maxAttempts int, log zerolog.Logger) *Transactor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Transactor{pool: pool, maxAttempts: maxAttempts, backoff: 20 * time.Millisecond, log: log}
}

// Begin starts a new READ COMMITTED transaction. Row locks taken with
// SELECT ... FOR UPDATE provide the isolation the ledger needs.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
}

// RunInTx runs fn in a fresh transaction, retrying lost races.
func (t *Transactor) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		err = t.runOnce(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}

		t.log.Warn().Err(err).Int("attempt", attempt).Msg("unit of work lost a race, retrying")

		if attempt < t.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * t.backoff):
			}
		}
	}
	return apperror.ErrConcurrentModification(err)
}

func (t *Transactor) runOnce(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := t.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if retryable(err) {
			return fmt.Errorf("commit tx: %w", err)
		}
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func retryable(err error) bool {
	if domain.IsRetryable(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
	}
	return false
}
