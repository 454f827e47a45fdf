package handler

import (
	"context"
	"errors"
	"strings"

	"retail-ledger/internal/adapter/http/dto"
	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/apperror"
	"retail-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerHandler exposes the funds movement engine. Each request is one unit
// of work: it commits when the engine succeeds and rolls back otherwise.
type LedgerHandler struct {
	runner ports.TxRunner
	ledger ports.LedgerService
	log    zerolog.Logger
}

func NewLedgerHandler(runner ports.TxRunner, ledger ports.LedgerService, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{runner: runner, ledger: ledger, log: log}
}

// Deposit handles POST /api/v1/accounts/:id/deposit.
func (h *LedgerHandler) Deposit(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	ctx := c.Request.Context()
	var result *domain.Transaction
	err := h.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = h.ledger.Deposit(ctx, tx, caller, ports.DepositRequest{
			AccountID:       accountID,
			Amount:          req.Amount,
			Currency:        req.Currency,
			Description:     req.Description,
			ReferenceNumber: req.ReferenceNumber,
		})
		return err
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(result))
}

// Withdraw handles POST /api/v1/accounts/:id/withdraw.
func (h *LedgerHandler) Withdraw(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	ctx := c.Request.Context()
	var result *domain.Transaction
	err := h.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = h.ledger.Withdraw(ctx, tx, caller, ports.WithdrawRequest{
			AccountID:   accountID,
			Amount:      req.Amount,
			Currency:    req.Currency,
			Description: req.Description,
		})
		return err
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(result))
}

// Transfer handles POST /api/v1/transfers.
func (h *LedgerHandler) Transfer(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	ctx := c.Request.Context()
	var result *ports.TransferResult
	err := h.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = h.ledger.Transfer(ctx, tx, caller, ports.TransferRequest{
			FromAccountID: uuid.MustParse(req.FromAccountID),
			ToAccountID:   uuid.MustParse(req.ToAccountID),
			Amount:        req.Amount,
			Currency:      req.Currency,
			Description:   req.Description,
		})
		return err
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.TransferResponse{
		ReferenceNumber: result.Debit.ReferenceNumber,
		Debit:           toTransactionResponse(result.Debit),
		Credit:          toTransactionResponse(result.Credit),
	})
}

// PayBill handles POST /api/v1/bills/:id/pay.
func (h *LedgerHandler) PayBill(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	billID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.PayBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	ctx := c.Request.Context()
	var result *domain.Transaction
	err := h.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = h.ledger.PayBill(ctx, tx, caller, ports.PayBillRequest{
			BillID:    billID,
			AccountID: uuid.MustParse(req.AccountID),
		})
		return err
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(result))
}

// AddTransaction handles POST /api/v1/admin/accounts/:id/transactions.
// A rejected card charge is recorded as a PaymentFailed event in its own
// unit of work before the original error is returned.
func (h *LedgerHandler) AddTransaction(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AddTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txType := domain.TransactionType(strings.ToUpper(req.Type))
	ctx := c.Request.Context()
	var result *domain.Transaction
	err := h.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = h.ledger.AddTransaction(ctx, tx, caller, ports.AddTransactionRequest{
			AccountID:       accountID,
			Type:            txType,
			Amount:          req.Amount,
			Currency:        req.Currency,
			Description:     req.Description,
			ReferenceNumber: req.ReferenceNumber,
		})
		return err
	})
	if err != nil {
		if txType == domain.TransactionTypeCardCharge {
			h.recordCardDecline(ctx, caller, accountID, req, err)
		}
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(result))
}

func (h *LedgerHandler) recordCardDecline(ctx context.Context, caller domain.Caller, accountID uuid.UUID, req dto.AddTransactionRequest, cause error) {
	var appErr *apperror.AppError
	if !errors.As(cause, &appErr) || (appErr.Kind != apperror.KindInsufficientFunds && appErr.Kind != apperror.KindBusinessRule) {
		return
	}

	err := h.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		return h.ledger.RecordPaymentFailure(ctx, tx, caller, ports.PaymentFailureRequest{
			AccountID: accountID,
			Amount:    req.Amount,
			Currency:  req.Currency,
			Reason:    appErr.Message,
		})
	})
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID.String()).Msg("failed to record card decline")
	}
}
