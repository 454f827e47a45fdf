package service

import (
	"context"
	"io"
	"testing"
	"time"

	"retail-ledger/internal/adapter/storage/memory"
	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func fixedClock() time.Time { return testNow }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ledgerEnv wires the services over a fresh memory store.
type ledgerEnv struct {
	store    *memory.Store
	runner   *memory.Transactor
	users    *memory.UserRepo
	accounts *memory.AccountRepo
	txns     *memory.TransactionRepo
	bills    *memory.BillRepo
	outbox   *memory.OutboxRepo
	ledger   *LedgerService
}

func newLedgerEnv(t *testing.T) *ledgerEnv {
	t.Helper()
	s := memory.NewStore()
	env := &ledgerEnv{
		store:    s,
		runner:   memory.NewTransactor(s, 3, newTestLogger()),
		users:    memory.NewUserRepo(s),
		accounts: memory.NewAccountRepo(s),
		txns:     memory.NewTransactionRepo(s),
		bills:    memory.NewBillRepo(s),
		outbox:   memory.NewOutboxRepo(s),
	}
	env.ledger = NewLedgerService(env.accounts, env.txns, env.bills, env.users, env.outbox, nil, newTestLogger())
	env.ledger.clock = fixedClock
	return env
}

func (e *ledgerEnv) user(t *testing.T, role domain.Role) domain.Caller {
	t.Helper()
	id := uuid.New()
	require.NoError(t, e.users.Create(context.Background(), &domain.User{
		ID:        id,
		Email:     id.String() + "@example.com",
		FullName:  "Test User",
		Role:      role,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}))
	return domain.Caller{UserID: id, Role: role}
}

func (e *ledgerEnv) account(t *testing.T, owner domain.Caller, accountType domain.AccountType, balance, currency string) *domain.Account {
	t.Helper()
	number, err := domain.NewAccountNumber()
	require.NoError(t, err)
	a, err := domain.NewAccount(owner.UserID, accountType, currency, number, testNow)
	require.NoError(t, err)
	a.Balance = domain.MustMoney(balance, currency)
	require.NoError(t, e.runner.RunInTx(context.Background(), func(tx pgx.Tx) error {
		return e.accounts.Create(context.Background(), tx, a)
	}))
	return a
}

func (e *ledgerEnv) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	a, err := e.accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a.Balance.String()
}

func (e *ledgerEnv) entries(t *testing.T, id uuid.UUID) []domain.Transaction {
	t.Helper()
	txns, _, err := e.txns.ListByAccount(context.Background(), ports.TransactionListParams{
		AccountID: id, Page: 1, PageSize: 1000,
	})
	require.NoError(t, err)
	return txns
}

func (e *ledgerEnv) pending(t *testing.T) []domain.OutboxMessage {
	t.Helper()
	msgs, err := e.outbox.FetchUnprocessed(context.Background(), nil, 1000)
	require.NoError(t, err)
	return msgs
}

func (e *ledgerEnv) inTx(fn func(tx pgx.Tx) error) error {
	return e.runner.RunInTx(context.Background(), fn)
}
