package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type accountService struct {
	accounts ports.AccountRepository
	txns     ports.TransactionRepository
	users    ports.UserRepository
	outbox   ports.OutboxRepository
	clock    func() time.Time
	log      zerolog.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(
	accounts ports.AccountRepository,
	txns ports.TransactionRepository,
	users ports.UserRepository,
	outbox ports.OutboxRepository,
	log zerolog.Logger,
) ports.AccountService {
	return &accountService{
		accounts: accounts,
		txns:     txns,
		users:    users,
		outbox:   outbox,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// OpenAccount opens a zero-balance account. Customers may only open
// accounts for themselves.
func (s *accountService) OpenAccount(ctx context.Context, tx pgx.Tx, caller domain.Caller, req ports.OpenAccountRequest) (*domain.Account, error) {
	owner := req.UserID
	if owner == uuid.Nil {
		owner = caller.UserID
	}
	if !caller.CanAccess(owner) {
		return nil, apperror.ErrForbidden()
	}
	if !req.AccountType.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("Unknown account type %q", req.AccountType))
	}

	user, err := s.users.GetByID(ctx, owner)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load owner: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("user")
	}

	number, err := domain.NewAccountNumber()
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	now := s.clock()
	account, err := domain.NewAccount(owner, req.AccountType, req.Currency, number, now)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	if err := s.accounts.Create(ctx, tx, account); err != nil {
		return nil, ledgerError("create account", err)
	}

	evt := domain.AccountCreated{
		EventMeta:     domain.NewEventMeta(now),
		To:            domain.Recipient{UserID: user.ID, Email: user.Email, FullName: user.FullName},
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		AccountType:   account.AccountType,
		Currency:      account.Currency(),
	}
	if err := stageEvent(ctx, s.outbox, tx, evt, now); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", account.ID.String()).
		Str("user_id", owner.String()).
		Str("account_type", string(account.AccountType)).
		Str("currency", account.Currency()).
		Msg("account opened")
	return account, nil
}

// CloseAccount soft-closes an empty account.
func (s *accountService) CloseAccount(ctx context.Context, tx pgx.Tx, caller domain.Caller, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, ledgerError("lock account", err)
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	if !caller.CanAccess(account.UserID) {
		return nil, apperror.ErrForbidden()
	}

	if err := account.Close(s.clock()); err != nil {
		switch {
		case errors.Is(err, domain.ErrAccountNotActive):
			return nil, apperror.BusinessRule("Account is already closed")
		case errors.Is(err, domain.ErrAccountNotEmpty):
			return nil, apperror.BusinessRule("Account balance must be zero before closing")
		}
		return nil, apperror.InternalError(err)
	}

	if err := s.accounts.Update(ctx, tx, account); err != nil {
		return nil, ledgerError("update account", err)
	}

	s.log.Info().Str("account_id", account.ID.String()).Msg("account closed")
	return account, nil
}

func (s *accountService) GetAccount(ctx context.Context, caller domain.Caller, accountID uuid.UUID) (*domain.Account, error) {
	return s.visibleAccount(ctx, caller, accountID)
}

// ListAccounts lists userID's accounts, or the caller's own when userID is nil.
func (s *accountService) ListAccounts(ctx context.Context, caller domain.Caller, userID uuid.UUID) ([]domain.Account, error) {
	if userID == uuid.Nil {
		userID = caller.UserID
	}
	if !caller.CanAccess(userID) {
		return nil, apperror.ErrForbidden()
	}
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list accounts: %w", err))
	}
	return accounts, nil
}

// ListTransactions returns one page of an account's entries, newest first.
func (s *accountService) ListTransactions(ctx context.Context, caller domain.Caller, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if _, err := s.visibleAccount(ctx, caller, params.AccountID); err != nil {
		return nil, 0, err
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, 0, apperror.Validation("from must not be after to")
	}

	txns, total, err := s.txns.ListByAccount(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, total, nil
}

func (s *accountService) visibleAccount(ctx context.Context, caller domain.Caller, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	if !caller.CanAccess(account.UserID) {
		return nil, apperror.ErrForbidden()
	}
	return account, nil
}
