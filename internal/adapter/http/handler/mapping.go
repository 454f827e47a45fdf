package handler

import (
	"time"

	"retail-ledger/internal/adapter/http/dto"
	"retail-ledger/internal/adapter/http/middleware"
	"retail-ledger/internal/core/domain"
	"retail-ledger/pkg/apperror"
	"retail-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// callerOrAbort returns the authenticated caller, writing 401 when absent.
func callerOrAbort(c *gin.Context) (domain.Caller, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return domain.Caller{}, false
	}
	return caller, true
}

// pathID parses a uuid path parameter, writing 400 when malformed.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation("Invalid "+name+" in path"))
		return uuid.Nil, false
	}
	return id, true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toUserResponse(u *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        string(u.Role),
		LastLoginAt: formatTimePtr(u.LastLoginAt),
		CreatedAt:   formatTime(u.CreatedAt),
	}
}

func toAccountResponse(a *domain.Account) dto.AccountResponse {
	return dto.AccountResponse{
		ID:            a.ID.String(),
		UserID:        a.UserID.String(),
		AccountNumber: a.AccountNumber,
		AccountType:   string(a.AccountType),
		Balance:       a.Balance.Amount().StringFixed(2),
		Currency:      a.Currency(),
		IsActive:      a.IsActive,
		CreatedAt:     formatTime(a.CreatedAt),
		ClosedAt:      formatTimePtr(a.ClosedAt),
	}
}

func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:              tx.ID.String(),
		AccountID:       tx.AccountID.String(),
		TransactionType: string(tx.Type),
		Direction:       string(tx.Direction),
		Amount:          tx.Amount.Amount().StringFixed(2),
		Currency:        tx.Amount.Currency(),
		BalanceAfter:    tx.BalanceAfter.Amount().StringFixed(2),
		Description:     tx.Description,
		ReferenceNumber: tx.ReferenceNumber,
		TransactionDate: formatTime(tx.TransactionDate),
	}
	if tx.RelatedAccountID != nil {
		related := tx.RelatedAccountID.String()
		resp.RelatedAccountID = &related
	}
	return resp
}

func toBillResponse(b *domain.Bill) dto.BillResponse {
	return dto.BillResponse{
		ID:        b.ID.String(),
		AccountID: b.AccountID.String(),
		Payee:     b.Payee,
		Amount:    b.Amount.Amount().StringFixed(2),
		Currency:  b.Amount.Currency(),
		DueDate:   b.DueDate.Format("2006-01-02"),
		IsPaid:    b.IsPaid,
		PaidAt:    formatTimePtr(b.PaidAt),
	}
}
