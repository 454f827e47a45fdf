package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const idempotencyTTL = 24 * time.Hour

// LedgerService implements ports.LedgerService, the funds movement engine.
//
// Every entry point runs inside the caller's unit of work and follows the
// same steps: lock the account rows, apply the access guard, validate,
// mutate balances through Money, persist the account and its entries, then
// stage an outbox event. Nothing is committed here; any returned error means
// the caller must roll back.
type LedgerService struct {
	accounts   ports.AccountRepository
	txns       ports.TransactionRepository
	bills      ports.BillRepository
	users      ports.UserRepository
	outbox     ports.OutboxRepository
	idempCache ports.IdempotencyCache
	clock      func() time.Time
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerService. idempCache may be nil, in
// which case deposit replays are resolved from the store only.
func NewLedgerService(
	accounts ports.AccountRepository,
	txns ports.TransactionRepository,
	bills ports.BillRepository,
	users ports.UserRepository,
	outbox ports.OutboxRepository,
	idempCache ports.IdempotencyCache,
	log zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		accounts:   accounts,
		txns:       txns,
		bills:      bills,
		users:      users,
		outbox:     outbox,
		idempCache: idempCache,
		clock:      func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Deposit credits an account. A caller-supplied reference number makes the
// call idempotent: replaying it returns the original entry unchanged.
func (s *LedgerService) Deposit(ctx context.Context, tx pgx.Tx, caller domain.Caller, req ports.DepositRequest) (*domain.Transaction, error) {
	account, err := s.lockAccount(ctx, tx, caller, req.AccountID)
	if err != nil {
		return nil, err
	}

	if req.ReferenceNumber != "" {
		existing, err := s.replayDeposit(ctx, account.ID, req.ReferenceNumber)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.Type != domain.TransactionTypeDeposit || !existing.Amount.Amount().Equal(req.Amount) {
				return nil, apperror.ErrDuplicateReference()
			}
			s.log.Info().
				Str("account_id", account.ID.String()).
				Str("reference", req.ReferenceNumber).
				Msg("deposit replayed")
			return existing, nil
		}
	}

	amount, err := amountFor(account, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	ref := req.ReferenceNumber
	if ref == "" {
		if ref, err = domain.NewReferenceNumber(domain.TransactionTypeDeposit); err != nil {
			return nil, apperror.InternalError(err)
		}
	}

	entry, err := s.applySingle(ctx, tx, account, domain.TransactionTypeDeposit, amount, req.Description, ref)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("account_id", account.ID.String()).
		Str("amount", amount.String()).
		Msg("deposit applied")
	return entry, nil
}

// Withdraw debits an account.
func (s *LedgerService) Withdraw(ctx context.Context, tx pgx.Tx, caller domain.Caller, req ports.WithdrawRequest) (*domain.Transaction, error) {
	account, err := s.lockAccount(ctx, tx, caller, req.AccountID)
	if err != nil {
		return nil, err
	}

	amount, err := amountFor(account, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	ref, err := domain.NewReferenceNumber(domain.TransactionTypeWithdrawal)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	entry, err := s.applySingle(ctx, tx, account, domain.TransactionTypeWithdrawal, amount, req.Description, ref)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("account_id", account.ID.String()).
		Str("amount", amount.String()).
		Msg("withdrawal applied")
	return entry, nil
}

// Transfer moves funds between two accounts of the same currency. Only the
// source account is checked against the caller. Rows are locked in
// ascending id order so opposing transfers cannot deadlock.
func (s *LedgerService) Transfer(ctx context.Context, tx pgx.Tx, caller domain.Caller, req ports.TransferRequest) (*ports.TransferResult, error) {
	if req.FromAccountID == req.ToAccountID {
		return nil, apperror.BusinessRule("Cannot transfer to the same account")
	}

	first, second := req.FromAccountID, req.ToAccountID
	if second.String() < first.String() {
		first, second = second, first
	}
	locked := make(map[uuid.UUID]*domain.Account, 2)
	for _, id := range []uuid.UUID{first, second} {
		a, err := s.accounts.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return nil, ledgerError("lock account", err)
		}
		if a == nil {
			return nil, apperror.ErrNotFound("account")
		}
		locked[id] = a
	}
	source, dest := locked[req.FromAccountID], locked[req.ToAccountID]

	if !caller.CanAccess(source.UserID) {
		return nil, apperror.ErrForbidden()
	}

	amount, err := amountFor(source, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	if dest.Currency() != source.Currency() {
		return nil, apperror.ErrCurrencyMismatch(source.Currency(), dest.Currency())
	}

	now := s.clock()
	if err := source.Debit(amount, now); err != nil {
		return nil, ledgerError("debit source", err)
	}
	if err := dest.Credit(amount, now); err != nil {
		return nil, ledgerError("credit destination", err)
	}

	ref, err := domain.NewReferenceNumber(domain.TransactionTypeTransfer)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	debit := domain.NewEntry(source, domain.TransactionTypeTransfer, domain.DirectionDebit, amount, req.Description, ref, now)
	debit.RelatedAccountID = &dest.ID
	credit := domain.NewEntry(dest, domain.TransactionTypeTransfer, domain.DirectionCredit, amount, req.Description, ref, now)
	credit.RelatedAccountID = &source.ID

	for _, id := range []uuid.UUID{first, second} {
		if err := s.accounts.Update(ctx, tx, locked[id]); err != nil {
			return nil, ledgerError("update account", err)
		}
	}
	for _, e := range []*domain.Transaction{debit, credit} {
		if err := s.txns.Create(ctx, tx, e); err != nil {
			return nil, ledgerError("insert transfer leg", err)
		}
	}

	for _, leg := range []struct {
		entry   *domain.Transaction
		account *domain.Account
		other   *domain.Account
	}{
		{debit, source, dest},
		{credit, dest, source},
	} {
		evt, err := s.transactionCompleted(ctx, leg.account, leg.entry, leg.other.AccountNumber)
		if err != nil {
			return nil, err
		}
		if err := s.stage(ctx, tx, evt); err != nil {
			return nil, err
		}
	}

	s.log.Info().
		Str("reference", ref).
		Str("from_account_id", source.ID.String()).
		Str("to_account_id", dest.ID.String()).
		Str("amount", amount.String()).
		Msg("transfer applied")
	return &ports.TransferResult{Debit: debit, Credit: credit}, nil
}

// PayBill debits the bill's account by the bill amount and marks it paid.
func (s *LedgerService) PayBill(ctx context.Context, tx pgx.Tx, caller domain.Caller, req ports.PayBillRequest) (*domain.Transaction, error) {
	bill, err := s.bills.GetByIDForUpdate(ctx, tx, req.BillID)
	if err != nil {
		return nil, ledgerError("lock bill", err)
	}
	if bill == nil {
		return nil, apperror.ErrNotFound("bill")
	}

	account, err := s.lockAccount(ctx, tx, caller, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(bill.UserID) {
		return nil, apperror.ErrForbidden()
	}
	if bill.AccountID != account.ID {
		return nil, apperror.BusinessRule("Bill does not belong to this account")
	}
	if bill.IsPaid {
		return nil, apperror.BusinessRule("Bill is already paid")
	}
	if bill.Amount.Currency() != account.Currency() {
		return nil, apperror.ErrCurrencyMismatch(account.Currency(), bill.Amount.Currency())
	}

	now := s.clock()
	if err := account.Debit(bill.Amount, now); err != nil {
		return nil, ledgerError("debit account", err)
	}
	if err := bill.MarkPaid(now); err != nil {
		return nil, apperror.BusinessRule("Bill is already paid")
	}

	ref, err := domain.NewReferenceNumber(domain.TransactionTypeBillPayment)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	entry := domain.NewEntry(account, domain.TransactionTypeBillPayment, domain.DirectionDebit, bill.Amount,
		"Bill payment to "+bill.Payee, ref, now)

	if err := s.persist(ctx, tx, account, entry); err != nil {
		return nil, err
	}
	if err := s.bills.MarkPaid(ctx, tx, bill); err != nil {
		return nil, ledgerError("mark bill paid", err)
	}

	to, err := s.recipient(ctx, account.UserID)
	if err != nil {
		return nil, err
	}
	evt := domain.BillPaymentCompleted{
		EventMeta:       domain.NewEventMeta(now),
		To:              to,
		BillID:          bill.ID,
		TransactionID:   entry.ID,
		AccountNumber:   account.AccountNumber,
		Payee:           bill.Payee,
		Amount:          entry.Amount,
		BalanceAfter:    entry.BalanceAfter,
		ReferenceNumber: ref,
	}
	if err := s.stage(ctx, tx, evt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("bill_id", bill.ID.String()).
		Str("amount", bill.Amount.String()).
		Msg("bill paid")
	return entry, nil
}

// AddTransaction applies a single credit or debit entry of any type that
// touches one account. Transfers and bill payments have their own entry
// points. A supplied reference number must be unused on the account.
func (s *LedgerService) AddTransaction(ctx context.Context, tx pgx.Tx, caller domain.Caller, req ports.AddTransactionRequest) (*domain.Transaction, error) {
	if !req.Type.IsCredit() && !req.Type.IsDebit() {
		return nil, apperror.Validation(fmt.Sprintf("Transaction type %q cannot be applied as a single entry", req.Type))
	}

	account, err := s.lockAccount(ctx, tx, caller, req.AccountID)
	if err != nil {
		return nil, err
	}

	amount, err := amountFor(account, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	ref := req.ReferenceNumber
	if ref == "" {
		if ref, err = domain.NewReferenceNumber(req.Type); err != nil {
			return nil, apperror.InternalError(err)
		}
	} else {
		existing, err := s.txns.GetByReference(ctx, account.ID, ref)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("check reference: %w", err))
		}
		if existing != nil {
			return nil, apperror.ErrDuplicateReference()
		}
	}

	entry, err := s.applySingle(ctx, tx, account, req.Type, amount, req.Description, ref)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tx_id", entry.ID.String()).
		Str("account_id", account.ID.String()).
		Str("type", string(req.Type)).
		Str("amount", amount.String()).
		Msg("transaction applied")
	return entry, nil
}

// RecordPaymentFailure stages a PaymentFailed event for a card charge that
// was declined. Balances are not touched.
func (s *LedgerService) RecordPaymentFailure(ctx context.Context, tx pgx.Tx, caller domain.Caller, req ports.PaymentFailureRequest) error {
	account, err := s.lockAccount(ctx, tx, caller, req.AccountID)
	if err != nil {
		return err
	}
	amount, err := amountFor(account, req.Amount, req.Currency)
	if err != nil {
		return err
	}
	to, err := s.recipient(ctx, account.UserID)
	if err != nil {
		return err
	}

	evt := domain.PaymentFailed{
		EventMeta:     domain.NewEventMeta(s.clock()),
		To:            to,
		AccountNumber: account.AccountNumber,
		Amount:        amount,
		Reason:        req.Reason,
	}
	if err := s.stage(ctx, tx, evt); err != nil {
		return err
	}

	s.log.Warn().
		Str("account_id", account.ID.String()).
		Str("amount", amount.String()).
		Str("reason", req.Reason).
		Msg("payment failure recorded")
	return nil
}

// applySingle mutates one account, persists it with its entry and stages
// the event matching the entry type.
func (s *LedgerService) applySingle(ctx context.Context, tx pgx.Tx, account *domain.Account, txType domain.TransactionType, amount domain.Money, description, ref string) (*domain.Transaction, error) {
	now := s.clock()
	direction := domain.DirectionCredit
	var err error
	if txType.IsDebit() {
		direction = domain.DirectionDebit
		err = account.Debit(amount, now)
	} else {
		err = account.Credit(amount, now)
	}
	if err != nil {
		return nil, ledgerError("apply "+string(txType), err)
	}

	entry := domain.NewEntry(account, txType, direction, amount, description, ref, now)
	if err := s.persist(ctx, tx, account, entry); err != nil {
		return nil, err
	}

	evt, err := s.eventFor(ctx, account, entry)
	if err != nil {
		return nil, err
	}
	if err := s.stage(ctx, tx, evt); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *LedgerService) persist(ctx context.Context, tx pgx.Tx, account *domain.Account, entry *domain.Transaction) error {
	if err := s.accounts.Update(ctx, tx, account); err != nil {
		return ledgerError("update account", err)
	}
	if err := s.txns.Create(ctx, tx, entry); err != nil {
		return ledgerError("insert transaction", err)
	}
	return nil
}

func (s *LedgerService) eventFor(ctx context.Context, account *domain.Account, entry *domain.Transaction) (domain.Event, error) {
	to, err := s.recipient(ctx, account.UserID)
	if err != nil {
		return nil, err
	}
	meta := domain.NewEventMeta(entry.CreatedAt)

	switch entry.Type {
	case domain.TransactionTypeCardCharge:
		return domain.PaymentProcessed{
			EventMeta: meta, To: to, TransactionID: entry.ID, AccountNumber: account.AccountNumber,
			Amount: entry.Amount, ReferenceNumber: entry.ReferenceNumber, Description: entry.Description,
		}, nil
	case domain.TransactionTypeRefund:
		return domain.PaymentRefunded{
			EventMeta: meta, To: to, TransactionID: entry.ID, AccountNumber: account.AccountNumber,
			Amount: entry.Amount, ReferenceNumber: entry.ReferenceNumber, Description: entry.Description,
		}, nil
	}
	return s.transactionCompleted(ctx, account, entry, "")
}

func (s *LedgerService) transactionCompleted(ctx context.Context, account *domain.Account, entry *domain.Transaction, relatedNumber string) (domain.Event, error) {
	to, err := s.recipient(ctx, account.UserID)
	if err != nil {
		return nil, err
	}
	return domain.TransactionCompleted{
		EventMeta:            domain.NewEventMeta(entry.CreatedAt),
		To:                   to,
		TransactionID:        entry.ID,
		AccountID:            account.ID,
		AccountNumber:        account.AccountNumber,
		RelatedAccountNumber: relatedNumber,
		TransactionType:      entry.Type,
		Direction:            entry.Direction,
		Amount:               entry.Amount,
		BalanceAfter:         entry.BalanceAfter,
		ReferenceNumber:      entry.ReferenceNumber,
		Description:          entry.Description,
	}, nil
}

func (s *LedgerService) stage(ctx context.Context, tx pgx.Tx, evt domain.Event) error {
	return stageEvent(ctx, s.outbox, tx, evt, s.clock())
}

// stageEvent writes evt to the outbox inside tx.
func stageEvent(ctx context.Context, outbox ports.OutboxRepository, tx pgx.Tx, evt domain.Event, now time.Time) error {
	msg, err := domain.NewOutboxMessage(evt, now)
	if err != nil {
		return apperror.InternalError(err)
	}
	if err := outbox.Create(ctx, tx, msg); err != nil {
		return ledgerError("stage event", err)
	}
	return nil
}

func (s *LedgerService) recipient(ctx context.Context, userID uuid.UUID) (domain.Recipient, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.Recipient{}, apperror.InternalError(fmt.Errorf("load account owner: %w", err))
	}
	if u == nil {
		return domain.Recipient{UserID: userID}, nil
	}
	return domain.Recipient{UserID: u.ID, Email: u.Email, FullName: u.FullName}, nil
}

// lockAccount loads the account row for update and applies the access guard.
func (s *LedgerService) lockAccount(ctx context.Context, tx pgx.Tx, caller domain.Caller, id uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, ledgerError("lock account", err)
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	if !caller.CanAccess(account.UserID) {
		return nil, apperror.ErrForbidden()
	}
	return account, nil
}

// replayDeposit looks for an already-committed deposit carrying ref, first
// in the cache and then in the store.
func (s *LedgerService) replayDeposit(ctx context.Context, accountID uuid.UUID, ref string) (*domain.Transaction, error) {
	key := "deposit:" + accountID.String() + ":" + ref

	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			var t domain.Transaction
			if err := json.Unmarshal(cached, &t); err == nil {
				return &t, nil
			}
			s.log.Warn().Str("key", key).Msg("discarding unreadable idempotency entry")
		}
	}

	existing, err := s.txns.GetByReference(ctx, accountID, ref)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if existing == nil {
		return nil, nil
	}

	if s.idempCache != nil {
		if data, err := json.Marshal(existing); err == nil {
			if err := s.idempCache.Set(ctx, key, data, idempotencyTTL); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
			}
		}
	}
	return existing, nil
}

// amountFor validates a requested amount against the account currency.
func amountFor(account *domain.Account, amount decimal.Decimal, currency string) (domain.Money, error) {
	if !amount.IsPositive() {
		return domain.Money{}, apperror.ErrInvalidAmount()
	}
	if currency == "" {
		currency = account.Currency()
	}
	m, err := domain.NewMoney(amount, currency)
	if err != nil {
		return domain.Money{}, apperror.Validation(err.Error())
	}
	if m.Currency() != account.Currency() {
		return domain.Money{}, apperror.ErrCurrencyMismatch(account.Currency(), m.Currency())
	}
	return m, nil
}

// ledgerError maps domain failures to client errors. Lost races are returned
// unwrapped by AppError so the unit-of-work runner can retry them.
func ledgerError(op string, err error) error {
	var insufficient *domain.InsufficientFundsError
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &insufficient):
		return apperror.ErrInsufficientFunds(insufficient.Available.String(), insufficient.Required.String())
	case errors.Is(err, domain.ErrAccountNotActive):
		return apperror.ErrAccountNotActive()
	case errors.Is(err, domain.ErrCurrencyMismatch):
		return apperror.Validation("Currency does not match account currency")
	case domain.IsRetryable(err):
		return fmt.Errorf("%s: %w", op, err)
	case errors.As(err, &appErr):
		return err
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}
