package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bill is a payable owed by a user, settled from one specific account.
type Bill struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	AccountID uuid.UUID  `json:"account_id"`
	Payee     string     `json:"payee"`
	Amount    Money      `json:"amount"`
	DueDate   time.Time  `json:"due_date"`
	IsPaid    bool       `json:"is_paid"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func NewBill(userID, accountID uuid.UUID, payee string, amount Money, dueDate, now time.Time) *Bill {
	return &Bill{
		ID:        uuid.New(),
		UserID:    userID,
		AccountID: accountID,
		Payee:     payee,
		Amount:    amount,
		DueDate:   dueDate,
		CreatedAt: now,
	}
}

func (b *Bill) MarkPaid(now time.Time) error {
	if b.IsPaid {
		return ErrBillAlreadyPaid
	}
	b.IsPaid = true
	b.PaidAt = &now
	return nil
}
