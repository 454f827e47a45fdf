package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the stable discriminator stored with every outbox message.
type EventType string

const (
	EventAccountCreated       EventType = "account.created"
	EventTransactionCompleted EventType = "transaction.completed"
	EventBillPaymentCompleted EventType = "bill_payment.completed"
	EventPaymentProcessed     EventType = "payment.processed"
	EventPaymentRefunded      EventType = "payment.refunded"
	EventPaymentFailed        EventType = "payment.failed"
)

// Event is the closed set of domain events. Only types in this package implement it.
type Event interface {
	EventID() uuid.UUID
	Time() time.Time
	Type() EventType
	Recipient() Recipient
	isEvent()
}

// EventMeta is embedded in every event.
type EventMeta struct {
	ID         uuid.UUID `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewEventMeta(now time.Time) EventMeta {
	return EventMeta{ID: uuid.New(), OccurredAt: now}
}

func (m EventMeta) EventID() uuid.UUID { return m.ID }
func (m EventMeta) Time() time.Time    { return m.OccurredAt }

// Recipient is the user an event concerns. Denormalised so subscribers
// never query the ledger.
type Recipient struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email,omitempty"`
	FullName string    `json:"full_name,omitempty"`
}

type AccountCreated struct {
	EventMeta
	To            Recipient   `json:"recipient"`
	AccountID     uuid.UUID   `json:"account_id"`
	AccountNumber string      `json:"account_number"`
	AccountType   AccountType `json:"account_type"`
	Currency      string      `json:"currency"`
}

type TransactionCompleted struct {
	EventMeta
	To                   Recipient       `json:"recipient"`
	TransactionID        uuid.UUID       `json:"transaction_id"`
	AccountID            uuid.UUID       `json:"account_id"`
	AccountNumber        string          `json:"account_number"`
	RelatedAccountNumber string          `json:"related_account_number,omitempty"`
	TransactionType      TransactionType `json:"transaction_type"`
	Direction            EntryDirection  `json:"direction"`
	Amount               Money           `json:"amount"`
	BalanceAfter         Money           `json:"balance_after"`
	ReferenceNumber      string          `json:"reference_number"`
	Description          string          `json:"description"`
}

type BillPaymentCompleted struct {
	EventMeta
	To              Recipient `json:"recipient"`
	BillID          uuid.UUID `json:"bill_id"`
	TransactionID   uuid.UUID `json:"transaction_id"`
	AccountNumber   string    `json:"account_number"`
	Payee           string    `json:"payee"`
	Amount          Money     `json:"amount"`
	BalanceAfter    Money     `json:"balance_after"`
	ReferenceNumber string    `json:"reference_number"`
}

type PaymentProcessed struct {
	EventMeta
	To              Recipient `json:"recipient"`
	TransactionID   uuid.UUID `json:"transaction_id"`
	AccountNumber   string    `json:"account_number"`
	Amount          Money     `json:"amount"`
	ReferenceNumber string    `json:"reference_number"`
	Description     string    `json:"description"`
}

type PaymentRefunded struct {
	EventMeta
	To              Recipient `json:"recipient"`
	TransactionID   uuid.UUID `json:"transaction_id"`
	AccountNumber   string    `json:"account_number"`
	Amount          Money     `json:"amount"`
	ReferenceNumber string    `json:"reference_number"`
	Description     string    `json:"description"`
}

type PaymentFailed struct {
	EventMeta
	To            Recipient `json:"recipient"`
	AccountNumber string    `json:"account_number"`
	Amount        Money     `json:"amount"`
	Reason        string    `json:"reason"`
}

func (AccountCreated) Type() EventType       { return EventAccountCreated }
func (TransactionCompleted) Type() EventType { return EventTransactionCompleted }
func (BillPaymentCompleted) Type() EventType { return EventBillPaymentCompleted }
func (PaymentProcessed) Type() EventType     { return EventPaymentProcessed }
func (PaymentRefunded) Type() EventType      { return EventPaymentRefunded }
func (PaymentFailed) Type() EventType        { return EventPaymentFailed }

func (e AccountCreated) Recipient() Recipient       { return e.To }
func (e TransactionCompleted) Recipient() Recipient { return e.To }
func (e BillPaymentCompleted) Recipient() Recipient { return e.To }
func (e PaymentProcessed) Recipient() Recipient     { return e.To }
func (e PaymentRefunded) Recipient() Recipient      { return e.To }
func (e PaymentFailed) Recipient() Recipient        { return e.To }

func (AccountCreated) isEvent()       {}
func (TransactionCompleted) isEvent() {}
func (BillPaymentCompleted) isEvent() {}
func (PaymentProcessed) isEvent()     {}
func (PaymentRefunded) isEvent()      {}
func (PaymentFailed) isEvent()        {}

// EncodeEvent serialises evt for the outbox.
func EncodeEvent(evt Event) (EventType, []byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", evt.Type(), err)
	}
	return evt.Type(), data, nil
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(eventType EventType, data []byte) (Event, error) {
	switch eventType {
	case EventAccountCreated:
		return decodeAs[AccountCreated](eventType, data)
	case EventTransactionCompleted:
		return decodeAs[TransactionCompleted](eventType, data)
	case EventBillPaymentCompleted:
		return decodeAs[BillPaymentCompleted](eventType, data)
	case EventPaymentProcessed:
		return decodeAs[PaymentProcessed](eventType, data)
	case EventPaymentRefunded:
		return decodeAs[PaymentRefunded](eventType, data)
	case EventPaymentFailed:
		return decodeAs[PaymentFailed](eventType, data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
}

func decodeAs[T Event](eventType EventType, data []byte) (Event, error) {
	var evt T
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return evt, nil
}
