package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit        TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal     TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer       TransactionType = "TRANSFER"
	TransactionTypeBillPayment    TransactionType = "BILL_PAYMENT"
	TransactionTypeInterestCredit TransactionType = "INTEREST_CREDIT"
	TransactionTypeFee            TransactionType = "FEE"
	TransactionTypeRefund         TransactionType = "REFUND"
	TransactionTypeCardCharge     TransactionType = "CARD_CHARGE"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer,
		TransactionTypeBillPayment, TransactionTypeInterestCredit, TransactionTypeFee,
		TransactionTypeRefund, TransactionTypeCardCharge:
		return true
	}
	return false
}

// IsCredit reports whether a single-account entry of this type increases the balance.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeInterestCredit || t == TransactionTypeRefund
}

// IsDebit reports whether a single-account entry of this type decreases the balance.
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypeWithdrawal || t == TransactionTypeFee || t == TransactionTypeCardCharge
}

// ReferencePrefix is the leading segment of generated reference numbers.
func (t TransactionType) ReferencePrefix() string {
	switch t {
	case TransactionTypeDeposit:
		return "DEP"
	case TransactionTypeWithdrawal:
		return "WDR"
	case TransactionTypeTransfer:
		return "TRF"
	case TransactionTypeBillPayment:
		return "BIL"
	case TransactionTypeInterestCredit:
		return "INT"
	case TransactionTypeFee:
		return "FEE"
	case TransactionTypeRefund:
		return "RFD"
	case TransactionTypeCardCharge:
		return "CRD"
	}
	return "TXN"
}

// EntryDirection is the sign of a ledger entry relative to its account.
type EntryDirection string

const (
	DirectionCredit EntryDirection = "CREDIT"
	DirectionDebit  EntryDirection = "DEBIT"
)

// Transaction is an immutable ledger entry. A transfer produces two entries
// sharing one reference number, each pointing at the other account.
type Transaction struct {
	ID               uuid.UUID       `json:"id"`
	AccountID        uuid.UUID       `json:"account_id"`
	RelatedAccountID *uuid.UUID      `json:"related_account_id,omitempty"`
	Type             TransactionType `json:"transaction_type"`
	Direction        EntryDirection  `json:"direction"`
	Amount           Money           `json:"amount"`
	BalanceAfter     Money           `json:"balance_after"`
	Description      string          `json:"description"`
	ReferenceNumber  string          `json:"reference_number"`
	TransactionDate  time.Time       `json:"transaction_date"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewEntry records a movement already applied to account.
func NewEntry(account *Account, txType TransactionType, direction EntryDirection, amount Money, description, reference string, now time.Time) *Transaction {
	return &Transaction{
		ID:              uuid.New(),
		AccountID:       account.ID,
		Type:            txType,
		Direction:       direction,
		Amount:          amount,
		BalanceAfter:    account.Balance,
		Description:     description,
		ReferenceNumber: reference,
		TransactionDate: now,
		CreatedAt:       now,
	}
}
