// Package memory is a process-local storage driver with real unit-of-work
// semantics. Units of work are serialised: only one Tx is open at a time,
// writes are staged on the Tx and become visible on Commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

var errForeignTx = errors.New("memory: transaction was not opened by this store")

type refKey struct {
	accountID uuid.UUID
	reference string
}

// Store holds all committed rows.
type Store struct {
	mu sync.RWMutex

	// sem admits one open Tx at a time.
	sem chan struct{}

	users    map[uuid.UUID]domain.User
	accounts map[uuid.UUID]domain.Account
	txns     []domain.Transaction
	refs     map[refKey]int
	bills    map[uuid.UUID]domain.Bill
	outbox   []domain.OutboxMessage
	audits   []domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sem:      make(chan struct{}, 1),
		users:    make(map[uuid.UUID]domain.User),
		accounts: make(map[uuid.UUID]domain.Account),
		refs:     make(map[refKey]int),
		bills:    make(map[uuid.UUID]domain.Bill),
	}
}

// Tx is a staged unit of work. Only Commit and Rollback are supported;
// the SQL methods of pgx.Tx are not available on the memory driver.
type Tx struct {
	pgx.Tx

	store    *Store
	done     bool
	users    map[uuid.UUID]domain.User
	accounts map[uuid.UUID]domain.Account
	bills    map[uuid.UUID]domain.Bill
	txns     []domain.Transaction
	outbox   []domain.OutboxMessage
}

// Begin waits for the previous unit of work to finish, or for ctx.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Tx{
		store:    s,
		users:    make(map[uuid.UUID]domain.User),
		accounts: make(map[uuid.UUID]domain.Account),
		bills:    make(map[uuid.UUID]domain.Bill),
	}, nil
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("memory: nested transactions are not supported")
}

// Commit publishes the staged rows atomically.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	defer t.release()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range t.users {
		s.users[id] = u
	}
	for id, a := range t.accounts {
		s.accounts[id] = a
	}
	for id, b := range t.bills {
		s.bills[id] = b
	}
	for _, txn := range t.txns {
		s.refs[refKey{txn.AccountID, txn.ReferenceNumber}] = len(s.txns)
		s.txns = append(s.txns, txn)
	}
	s.outbox = append(s.outbox, t.outbox...)
	return nil
}

// Rollback discards the staged rows. Calling it after Commit is a no-op
// returning pgx.ErrTxClosed.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.release()
	return nil
}

func (t *Tx) release() {
	<-t.store.sem
}

func (s *Store) unwrap(tx pgx.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt.store != s {
		return nil, errForeignTx
	}
	if mt.done {
		return nil, pgx.ErrTxClosed
	}
	return mt, nil
}

// Transactor implements ports.TxRunner for the memory store.
type Transactor struct {
	store       *Store
	maxAttempts int
	log         zerolog.Logger
}

// NewTransactor creates a unit-of-work runner over store.
func NewTransactor(store *Store, maxAttempts int, log zerolog.Logger) *Transactor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Transactor{store: store, maxAttempts: maxAttempts, log: log}
}

func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.store.Begin(ctx)
}

// RunInTx commits when fn returns nil and retries lost races with a fresh Tx.
func (t *Transactor) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		err = t.runOnce(ctx, fn)
		if err == nil || !domain.IsRetryable(err) {
			return err
		}
		t.log.Warn().Err(err).Int("attempt", attempt).Msg("unit of work lost a race, retrying")
	}
	return apperror.ErrConcurrentModification(err)
}

func (t *Transactor) runOnce(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := t.store.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// HealthCheck implements ports.HealthChecker; the memory store is always up.
type HealthCheck struct{}

func (HealthCheck) Ping(ctx context.Context) error { return nil }
func (HealthCheck) Name() string                   { return "memory" }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
