package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxMessage_CarriesTypedEvent(t *testing.T) {
	evt := TransactionCompleted{
		EventMeta:       NewEventMeta(now),
		To:              Recipient{UserID: uuid.New(), Email: "ana@example.com", FullName: "Ana"},
		TransactionID:   uuid.New(),
		AccountID:       uuid.New(),
		AccountNumber:   "100000000001",
		TransactionType: TransactionTypeDeposit,
		Direction:       DirectionCredit,
		Amount:          MustMoney("25.00", "USD"),
		BalanceAfter:    MustMoney("125.00", "USD"),
		ReferenceNumber: "DEP-ABC",
	}

	msg, err := NewOutboxMessage(evt, now)
	require.NoError(t, err)
	assert.Equal(t, evt.EventID(), msg.ID)
	assert.Equal(t, EventTransactionCompleted, msg.EventType)
	assert.False(t, msg.IsProcessed)

	decoded, err := msg.Event()
	require.NoError(t, err)

	got, ok := decoded.(TransactionCompleted)
	require.True(t, ok, "decoded event should be TransactionCompleted, got %T", decoded)
	assert.Equal(t, evt.To, got.Recipient())
	assert.Equal(t, "125.00 USD", got.BalanceAfter.String())
	assert.Equal(t, evt.EventID(), got.EventID())
}

func TestDecodeEvent_DispatchesByType(t *testing.T) {
	events := []Event{
		AccountCreated{EventMeta: NewEventMeta(now), AccountType: AccountTypeSavings, Currency: "USD"},
		BillPaymentCompleted{EventMeta: NewEventMeta(now), Payee: "Water", Amount: MustMoney("1", "USD"), BalanceAfter: MustMoney("0", "USD")},
		PaymentProcessed{EventMeta: NewEventMeta(now), Amount: MustMoney("3", "USD")},
		PaymentRefunded{EventMeta: NewEventMeta(now), Amount: MustMoney("3", "USD")},
		PaymentFailed{EventMeta: NewEventMeta(now), Amount: MustMoney("3", "USD"), Reason: "card declined"},
	}

	for _, evt := range events {
		t.Run(string(evt.Type()), func(t *testing.T) {
			typ, data, err := EncodeEvent(evt)
			require.NoError(t, err)

			decoded, err := DecodeEvent(typ, data)
			require.NoError(t, err)
			assert.IsType(t, evt, decoded)
			assert.Equal(t, evt.EventID(), decoded.EventID())
		})
	}
}

func TestDecodeEvent_UnknownType(t *testing.T) {
	_, err := DecodeEvent("ledger.exploded", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}
