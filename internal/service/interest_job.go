package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// InterestConfig holds annual rates per interest-bearing account type.
type InterestConfig struct {
	Rates          map[domain.AccountType]decimal.Decimal
	PeriodsPerYear int
}

// ParseInterestRates converts configured rate strings, keyed by account type
// in any case, into decimals.
func ParseInterestRates(raw map[string]string) (map[domain.AccountType]decimal.Decimal, error) {
	rates := make(map[domain.AccountType]decimal.Decimal, len(raw))
	for key, value := range raw {
		t := domain.AccountType(strings.ToUpper(key))
		if !t.IsInterestBearing() {
			return nil, fmt.Errorf("interest rate for %q: not an interest-bearing account type", key)
		}
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("interest rate for %q: %w", key, err)
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("interest rate for %q must not be negative", key)
		}
		rates[t] = rate
	}
	return rates, nil
}

// errNoInterestDue rolls back an account whose locked balance earns nothing.
var errNoInterestDue = errors.New("no interest due")

// InterestStats summarises one accrual run.
type InterestStats struct {
	Accounts        int
	Credited        int
	Skipped         int
	AlreadyCredited int
	Failed          int
}

// InterestJob credits periodic interest to every active interest-bearing
// account. Each account is credited in its own unit of work; one failing
// account never stops the run.
type InterestJob struct {
	accounts ports.AccountRepository
	txns     ports.TransactionRepository
	ledger   ports.LedgerService
	runner   ports.TxRunner
	cfg      InterestConfig
	clock    func() time.Time
	log      zerolog.Logger
}

func NewInterestJob(
	accounts ports.AccountRepository,
	txns ports.TransactionRepository,
	ledger ports.LedgerService,
	runner ports.TxRunner,
	cfg InterestConfig,
	log zerolog.Logger,
) *InterestJob {
	if cfg.PeriodsPerYear < 1 {
		cfg.PeriodsPerYear = 12
	}
	return &InterestJob{
		accounts: accounts,
		txns:     txns,
		ledger:   ledger,
		runner:   runner,
		cfg:      cfg,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

func (j *InterestJob) Name() string { return "interest-accrual" }

// Run implements ports.ScheduledJob.
func (j *InterestJob) Run(ctx context.Context) error {
	_, err := j.Accrue(ctx)
	return err
}

// Accrue credits interest for the current period. A period already credited
// to an account is skipped, so reruns are harmless.
func (j *InterestJob) Accrue(ctx context.Context) (InterestStats, error) {
	var stats InterestStats

	accounts, err := j.accounts.ListInterestBearing(ctx)
	if err != nil {
		return stats, fmt.Errorf("list interest-bearing accounts: %w", err)
	}
	stats.Accounts = len(accounts)

	period := j.clock()
	periods := decimal.NewFromInt(int64(j.cfg.PeriodsPerYear))

	for i := range accounts {
		if ctx.Err() != nil {
			j.log.Warn().Int("remaining", len(accounts)-i).Msg("interest accrual cancelled")
			break
		}
		account := &accounts[i]
		log := j.log.With().Str("account_id", account.ID.String()).Logger()

		rate, ok := j.cfg.Rates[account.AccountType]
		if !ok || !rate.IsPositive() {
			stats.Skipped++
			continue
		}

		ref := domain.InterestReference(account.ID, period)
		existing, err := j.txns.GetByReference(ctx, account.ID, ref)
		if err != nil {
			log.Error().Err(err).Msg("interest duplicate check failed")
			stats.Failed++
			continue
		}
		if existing != nil {
			log.Info().Str("reference", ref).Msg("interest already credited for period")
			stats.AlreadyCredited++
			continue
		}

		// A credit that has started commits even if the run is cancelled.
		txCtx := context.WithoutCancel(ctx)
		err = j.runner.RunInTx(txCtx, func(tx pgx.Tx) error {
			locked, err := j.accounts.GetByIDForUpdate(txCtx, tx, account.ID)
			if err != nil {
				return err
			}
			if locked == nil || !locked.IsActive {
				return errNoInterestDue
			}
			interest, err := locked.Balance.Multiply(rate.Div(periods))
			if err != nil {
				return err
			}
			interest = interest.Round(2)
			if !interest.IsPositive() {
				return errNoInterestDue
			}
			_, err = j.ledger.AddTransaction(txCtx, tx, domain.SystemCaller(), ports.AddTransactionRequest{
				AccountID:       account.ID,
				Type:            domain.TransactionTypeInterestCredit,
				Amount:          interest.Amount(),
				Currency:        interest.Currency(),
				Description:     "Interest for " + period.Format("January 2006"),
				ReferenceNumber: ref,
			})
			return err
		})
		if errors.Is(err, errNoInterestDue) {
			stats.Skipped++
			continue
		}
		if err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Code == apperror.ErrDuplicateReference().Code {
				log.Info().Str("reference", ref).Msg("interest already credited for period")
				stats.AlreadyCredited++
				continue
			}
			log.Error().Err(err).Msg("interest credit failed")
			stats.Failed++
			continue
		}
		stats.Credited++
	}

	j.log.Info().
		Int("accounts", stats.Accounts).
		Int("credited", stats.Credited).
		Int("skipped", stats.Skipped).
		Int("already_credited", stats.AlreadyCredited).
		Int("failed", stats.Failed).
		Msg("interest accrual finished")
	return stats, nil
}
