package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AccountType is the product an account belongs to.
type AccountType string

const (
	AccountTypeChecking             AccountType = "CHECKING"
	AccountTypeSavings              AccountType = "SAVINGS"
	AccountTypeMoneyMarket          AccountType = "MONEY_MARKET"
	AccountTypeCertificateOfDeposit AccountType = "CERTIFICATE_OF_DEPOSIT"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeChecking, AccountTypeSavings, AccountTypeMoneyMarket, AccountTypeCertificateOfDeposit:
		return true
	}
	return false
}

// IsInterestBearing reports whether the monthly interest job credits this type.
func (t AccountType) IsInterestBearing() bool {
	return t == AccountTypeSavings || t == AccountTypeMoneyMarket || t == AccountTypeCertificateOfDeposit
}

// Account holds a customer balance. Balance currency never changes after creation.
type Account struct {
	ID            uuid.UUID   `json:"id"`
	UserID        uuid.UUID   `json:"user_id"`
	AccountNumber string      `json:"account_number"`
	AccountType   AccountType `json:"account_type"`
	Balance       Money       `json:"balance"`
	IsActive      bool        `json:"is_active"`
	Version       int64       `json:"-"` // optimistic concurrency token
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ClosedAt      *time.Time  `json:"closed_at,omitempty"`
}

// NewAccount opens an active account with a zero balance.
func NewAccount(userID uuid.UUID, accountType AccountType, currency, number string, now time.Time) (*Account, error) {
	if !accountType.Valid() {
		return nil, ErrInvalidAccountType
	}
	balance, err := ZeroMoney(currency)
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:            uuid.New(),
		UserID:        userID,
		AccountNumber: number,
		AccountType:   accountType,
		Balance:       balance,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (a *Account) Currency() string { return a.Balance.Currency() }

// Credit adds amount to the balance.
func (a *Account) Credit(amount Money, now time.Time) error {
	if !a.IsActive {
		return ErrAccountNotActive
	}
	next, err := a.Balance.Add(amount)
	if err != nil {
		return err
	}
	a.Balance = next
	a.UpdatedAt = now
	return nil
}

// Debit removes amount from the balance. It returns *InsufficientFundsError
// when the balance is lower than amount.
func (a *Account) Debit(amount Money, now time.Time) error {
	if !a.IsActive {
		return ErrAccountNotActive
	}
	next, err := a.Balance.Subtract(amount)
	if errors.Is(err, ErrNegativeAmount) {
		return &InsufficientFundsError{Available: a.Balance, Required: amount}
	}
	if err != nil {
		return err
	}
	a.Balance = next
	a.UpdatedAt = now
	return nil
}

// Close soft-closes the account. Only empty, active accounts can be closed.
func (a *Account) Close(now time.Time) error {
	if !a.IsActive {
		return ErrAccountNotActive
	}
	if !a.Balance.IsZero() {
		return ErrAccountNotEmpty
	}
	a.IsActive = false
	a.ClosedAt = &now
	a.UpdatedAt = now
	return nil
}
