package handler

import (
	"strconv"
	"strings"
	"time"

	"retail-ledger/internal/adapter/http/dto"
	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/pkg/apperror"
	"retail-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AccountHandler handles account lifecycle and history endpoints.
type AccountHandler struct {
	runner   ports.TxRunner
	accounts ports.AccountService
}

func NewAccountHandler(runner ports.TxRunner, accounts ports.AccountService) *AccountHandler {
	return &AccountHandler{runner: runner, accounts: accounts}
}

// ListAccounts handles GET /api/v1/accounts. Staff may pass ?user_id=.
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var userID uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation("Invalid user_id"))
			return
		}
		userID = id
	}

	accounts, err := h.accounts.ListAccounts(c.Request.Context(), caller, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AccountResponse, len(accounts))
	for i := range accounts {
		items[i] = toAccountResponse(&accounts[i])
	}
	response.OK(c, items)
}

// OpenAccount handles POST /api/v1/accounts.
func (h *AccountHandler) OpenAccount(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	var req dto.OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var owner uuid.UUID
	if req.UserID != "" {
		owner = uuid.MustParse(req.UserID)
	}

	ctx := c.Request.Context()
	var account *domain.Account
	err := h.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		account, err = h.accounts.OpenAccount(ctx, tx, caller, ports.OpenAccountRequest{
			UserID:      owner,
			AccountType: domain.AccountType(strings.ToUpper(req.AccountType)),
			Currency:    req.Currency,
		})
		return err
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toAccountResponse(account))
}

// GetAccount handles GET /api/v1/accounts/:id.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	account, err := h.accounts.GetAccount(c.Request.Context(), caller, accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toAccountResponse(account))
}

// CloseAccount handles POST /api/v1/accounts/:id/close.
func (h *AccountHandler) CloseAccount(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var account *domain.Account
	err := h.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		account, err = h.accounts.CloseAccount(ctx, tx, caller, accountID)
		return err
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toAccountResponse(account))
}

// ListTransactions handles GET /api/v1/accounts/:id/transactions.
// Query: page, page_size, type, from, to (RFC 3339 or YYYY-MM-DD).
func (h *AccountHandler) ListTransactions(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	accountID, ok := pathID(c, "id")
	if !ok {
		return
	}

	params, err := parseListParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	params.AccountID = accountID

	txns, total, err := h.accounts.ListTransactions(c.Request.Context(), caller, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, len(txns))
	for i := range txns {
		items[i] = toTransactionResponse(&txns[i])
	}

	totalPages := int(total) / params.PageSize
	if int(total)%params.PageSize != 0 {
		totalPages++
	}

	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	})
}

func parseListParams(c *gin.Context) (ports.TransactionListParams, error) {
	params := ports.TransactionListParams{Page: 1, PageSize: defaultPageSize}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return params, apperror.Validation("page must be a positive integer")
		}
		params.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return params, apperror.Validation("page_size must be a positive integer")
		}
		params.PageSize = min(size, maxPageSize)
	}
	if raw := c.Query("type"); raw != "" {
		t := domain.TransactionType(strings.ToUpper(raw))
		if !t.Valid() {
			return params, apperror.Validation("Unknown transaction type")
		}
		params.Type = &t
	}

	var err error
	if params.From, err = parseTimeQuery(c, "from"); err != nil {
		return params, err
	}
	if params.To, err = parseTimeQuery(c, "to"); err != nil {
		return params, err
	}
	return params, nil
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperror.Validation(name + " must be RFC 3339 or YYYY-MM-DD")
}
