package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"retail-ledger/internal/adapter/storage/memory"
	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/internal/core/ports/mocks"
	"retail-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testRates() map[domain.AccountType]decimal.Decimal {
	return map[domain.AccountType]decimal.Decimal{
		domain.AccountTypeSavings:     dec("0.012"),
		domain.AccountTypeMoneyMarket: dec("0.035"),
	}
}

func TestParseInterestRates(t *testing.T) {
	rates, err := ParseInterestRates(map[string]string{"savings": "0.02", "CERTIFICATE_OF_DEPOSIT": "0.045"})
	require.NoError(t, err)
	assert.True(t, rates[domain.AccountTypeSavings].Equal(dec("0.02")))
	assert.True(t, rates[domain.AccountTypeCertificateOfDeposit].Equal(dec("0.045")))

	_, err = ParseInterestRates(map[string]string{"checking": "0.01"})
	assert.Error(t, err)
	_, err = ParseInterestRates(map[string]string{"savings": "two percent"})
	assert.Error(t, err)
	_, err = ParseInterestRates(map[string]string{"savings": "-0.01"})
	assert.Error(t, err)
}

func TestInterestJob_AccruesOncePerPeriod(t *testing.T) {
	env := newLedgerEnv(t)
	owner := env.user(t, domain.RoleCustomer)
	savings := env.account(t, owner, domain.AccountTypeSavings, "1000", "USD")
	tiny := env.account(t, owner, domain.AccountTypeMoneyMarket, "0.50", "USD")
	checking := env.account(t, owner, domain.AccountTypeChecking, "1000", "USD")
	cd := env.account(t, owner, domain.AccountTypeCertificateOfDeposit, "1000", "USD")

	job := NewInterestJob(env.accounts, env.txns, env.ledger, env.runner,
		InterestConfig{Rates: testRates(), PeriodsPerYear: 12}, newTestLogger())
	job.clock = fixedClock

	stats, err := job.Accrue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, InterestStats{Accounts: 3, Credited: 1, Skipped: 2}, stats)

	assert.Equal(t, "1001.00 USD", env.balance(t, savings.ID))
	assert.Equal(t, "0.50 USD", env.balance(t, tiny.ID), "interest rounding to zero is skipped")
	assert.Equal(t, "1000.00 USD", env.balance(t, checking.ID))
	assert.Equal(t, "1000.00 USD", env.balance(t, cd.ID), "no configured rate")

	entries := env.entries(t, savings.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.TransactionTypeInterestCredit, entries[0].Type)
	assert.Equal(t, domain.InterestReference(savings.ID, testNow), entries[0].ReferenceNumber)
	assert.Equal(t, "Interest for March 2026", entries[0].Description)

	stats, err = job.Accrue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AlreadyCredited)
	assert.Equal(t, 0, stats.Credited)
	assert.Equal(t, "1001.00 USD", env.balance(t, savings.ID), "rerun in the same period does not double-credit")

	job.clock = func() time.Time { return testNow.AddDate(0, 1, 0) }
	stats, err = job.Accrue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Credited)
	assert.Equal(t, "1002.00 USD", env.balance(t, savings.ID))
}

func TestInterestJob_IsolatesFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newLedgerEnv(t)
	owner := env.user(t, domain.RoleCustomer)
	first := env.account(t, owner, domain.AccountTypeSavings, "1000", "USD")
	second := env.account(t, owner, domain.AccountTypeSavings, "2000", "USD")
	third := env.account(t, owner, domain.AccountTypeSavings, "3000", "USD")

	ledger := mocks.NewMockLedgerService(ctrl)
	ledger.EXPECT().AddTransaction(gomock.Any(), gomock.Any(), domain.SystemCaller(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, tx pgx.Tx, caller domain.Caller, req ports.AddTransactionRequest) (*domain.Transaction, error) {
			switch req.AccountID {
			case first.ID:
				return nil, errors.New("boom")
			case second.ID:
				return nil, apperror.ErrDuplicateReference()
			}
			assert.Equal(t, third.ID, req.AccountID)
			assert.True(t, req.Amount.Equal(dec("3")), req.Amount.String())
			assert.Equal(t, domain.TransactionTypeInterestCredit, req.Type)
			return &domain.Transaction{}, nil
		}).Times(3)

	job := NewInterestJob(env.accounts, env.txns, ledger, env.runner,
		InterestConfig{Rates: testRates()}, newTestLogger())
	job.clock = fixedClock

	stats, err := job.Accrue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, InterestStats{Accounts: 3, Credited: 1, AlreadyCredited: 1, Failed: 1}, stats)
}

// drainingAccounts empties an account between listing and crediting.
type drainingAccounts struct {
	*memory.AccountRepo
	drain func()
}

func (d drainingAccounts) ListInterestBearing(ctx context.Context) ([]domain.Account, error) {
	accounts, err := d.AccountRepo.ListInterestBearing(ctx)
	d.drain()
	return accounts, err
}

func TestInterestJob_UsesLockedBalance(t *testing.T) {
	env := newLedgerEnv(t)
	owner := env.user(t, domain.RoleCustomer)
	savings := env.account(t, owner, domain.AccountTypeSavings, "1000", "USD")

	accounts := drainingAccounts{AccountRepo: env.accounts, drain: func() {
		require.NoError(t, env.inTx(func(tx pgx.Tx) error {
			_, err := env.ledger.Withdraw(context.Background(), tx, owner, ports.WithdrawRequest{
				AccountID: savings.ID, Amount: dec("1000"), Currency: "USD",
			})
			return err
		}))
	}}
	job := NewInterestJob(accounts, env.txns, env.ledger, env.runner,
		InterestConfig{Rates: testRates(), PeriodsPerYear: 12}, newTestLogger())
	job.clock = fixedClock

	stats, err := job.Accrue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, InterestStats{Accounts: 1, Skipped: 1}, stats)
	assert.Equal(t, "0.00 USD", env.balance(t, savings.ID))
	assert.Len(t, env.entries(t, savings.ID), 1, "only the withdrawal is posted")
}

// cancellingLedger cancels the run while a credit is in flight.
type cancellingLedger struct {
	ports.LedgerService
	cancel context.CancelFunc
}

func (c cancellingLedger) AddTransaction(ctx context.Context, tx pgx.Tx, caller domain.Caller, req ports.AddTransactionRequest) (*domain.Transaction, error) {
	c.cancel()
	return c.LedgerService.AddTransaction(ctx, tx, caller, req)
}

func TestInterestJob_CancelKeepsInFlightCredit(t *testing.T) {
	env := newLedgerEnv(t)
	owner := env.user(t, domain.RoleCustomer)
	first := env.account(t, owner, domain.AccountTypeSavings, "1000", "USD")
	second := env.account(t, owner, domain.AccountTypeSavings, "1000", "USD")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := NewInterestJob(env.accounts, env.txns, cancellingLedger{LedgerService: env.ledger, cancel: cancel}, env.runner,
		InterestConfig{Rates: testRates(), PeriodsPerYear: 12}, newTestLogger())
	job.clock = fixedClock

	stats, err := job.Accrue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Credited)

	balances := []string{env.balance(t, first.ID), env.balance(t, second.ID)}
	assert.ElementsMatch(t, []string{"1001.00 USD", "1000.00 USD"}, balances,
		"the credit in flight commits and the next account is not started")
}

type failingAccounts struct {
	ports.AccountRepository
}

func (failingAccounts) ListInterestBearing(ctx context.Context) ([]domain.Account, error) {
	return nil, errors.New("db down")
}

func TestInterestJob_ListFailure(t *testing.T) {
	job := NewInterestJob(failingAccounts{}, nil, nil, nil, InterestConfig{}, newTestLogger())
	assert.ErrorContains(t, job.Run(context.Background()), "db down")
}
