package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors raised by domain invariants. Services translate them into
// apperror codes; storage adapters return the concurrency ones.
var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeAmount   = errors.New("amount cannot be negative")
	ErrEmptyCurrency    = errors.New("currency cannot be empty")
	ErrInvalidCurrency  = errors.New("currency must be a 3-letter ISO code")

	ErrAccountNotActive   = errors.New("account is not active")
	ErrAccountNotEmpty    = errors.New("account balance must be zero")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrBillAlreadyPaid    = errors.New("bill already paid")

	ErrConcurrentUpdate       = errors.New("row was modified concurrently")
	ErrDuplicateReference     = errors.New("reference number already used for account")
	ErrDuplicateAccountNumber = errors.New("account number already exists")
	ErrDuplicateEmail         = errors.New("email already registered")
	ErrUnknownEventType       = errors.New("unknown event type")
)

// InsufficientFundsError reports the balance that was available when a debit failed.
type InsufficientFundsError struct {
	Available Money
	Required  Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, required %s", e.Available, e.Required)
}

// IsRetryable reports whether err was caused by a lost race that a fresh
// unit of work may resolve.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate) ||
		errors.Is(err, ErrDuplicateReference) ||
		errors.Is(err, ErrDuplicateAccountNumber)
}
