package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

type billService struct {
	accounts ports.AccountRepository
	bills    ports.BillRepository
	clock    func() time.Time
	log      zerolog.Logger
}

// NewBillService creates a new bill service.
func NewBillService(accounts ports.AccountRepository, bills ports.BillRepository, log zerolog.Logger) ports.BillService {
	return &billService{
		accounts: accounts,
		bills:    bills,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// CreateBill registers a payable against one of the owner's accounts.
func (s *billService) CreateBill(ctx context.Context, caller domain.Caller, req ports.CreateBillRequest) (*domain.Bill, error) {
	payee := strings.TrimSpace(req.Payee)
	if payee == "" {
		return nil, apperror.Validation("Payee is required")
	}
	if req.DueDate.IsZero() {
		return nil, apperror.Validation("Due date is required")
	}

	account, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	if !caller.CanAccess(account.UserID) {
		return nil, apperror.ErrForbidden()
	}
	if !account.IsActive {
		return nil, apperror.ErrAccountNotActive()
	}

	amount, err := amountFor(account, req.Amount, "")
	if err != nil {
		return nil, err
	}

	bill := domain.NewBill(account.UserID, account.ID, payee, amount, req.DueDate, s.clock())
	if err := s.bills.Create(ctx, bill); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create bill: %w", err))
	}

	s.log.Info().
		Str("bill_id", bill.ID.String()).
		Str("account_id", account.ID.String()).
		Str("amount", amount.String()).
		Msg("bill created")
	return bill, nil
}

// ListBills lists the caller's bills.
func (s *billService) ListBills(ctx context.Context, caller domain.Caller) ([]domain.Bill, error) {
	bills, err := s.bills.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list bills: %w", err))
	}
	return bills, nil
}
