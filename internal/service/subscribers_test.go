package service

import (
	"context"
	"errors"
	"testing"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func sampleTransfer(direction domain.EntryDirection) domain.TransactionCompleted {
	return domain.TransactionCompleted{
		EventMeta:            domain.NewEventMeta(testNow),
		To:                   domain.Recipient{UserID: uuid.New(), Email: "jane@example.com", FullName: "Jane Doe"},
		TransactionID:        uuid.New(),
		AccountID:            uuid.New(),
		AccountNumber:        "400012341234",
		RelatedAccountNumber: "400056785678",
		TransactionType:      domain.TransactionTypeTransfer,
		Direction:            direction,
		Amount:               domain.MustMoney("15.5", "USD"),
		BalanceAfter:         domain.MustMoney("84.5", "USD"),
		ReferenceNumber:      "TRF-1",
	}
}

func TestRenderEvent(t *testing.T) {
	tests := []struct {
		name  string
		evt   domain.Event
		title string
		body  string
	}{
		{
			"transfer out", sampleTransfer(domain.DirectionDebit), "Transfer completed",
			"Transfer of 15.50 USD debited from account ****1234 (to account ****5678). New balance: 84.50 USD.",
		},
		{
			"transfer in", sampleTransfer(domain.DirectionCredit), "Transfer completed",
			"Transfer of 15.50 USD credited to account ****1234 (from account ****5678). New balance: 84.50 USD.",
		},
		{
			"account opened",
			domain.AccountCreated{AccountNumber: "123456789012", AccountType: domain.AccountTypeMoneyMarket, Currency: "EUR"},
			"Account opened", "Your Money market account ****9012 in EUR is ready to use.",
		},
		{
			"bill paid",
			domain.BillPaymentCompleted{AccountNumber: "123456789012", Payee: "City Power",
				Amount: domain.MustMoney("20", "USD"), BalanceAfter: domain.MustMoney("5", "USD")},
			"Bill paid", "Paid 20.00 USD to City Power from account ****9012. New balance: 5.00 USD.",
		},
		{
			"payment failed",
			domain.PaymentFailed{AccountNumber: "123456789012", Amount: domain.MustMoney("80", "USD"), Reason: "card declined"},
			"Payment failed", "A payment of 80.00 USD from account ****9012 could not be completed: card declined.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := renderEvent(tt.evt)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestNotificationSubscriber(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockNotificationPublisher(ctrl)
	sub := NewNotificationSubscriber(publisher, newTestLogger())
	evt := sampleTransfer(domain.DirectionDebit)

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, n ports.Notification) (bool, error) {
		assert.Equal(t, evt.ID, n.ID)
		assert.Equal(t, evt.To.UserID, n.UserID)
		assert.Equal(t, domain.EventTransactionCompleted, n.EventType)
		assert.Equal(t, "Transfer completed", n.Title)
		assert.Equal(t, testNow, n.CreatedAt)
		return true, nil
	})
	require.NoError(t, sub.Handle(context.Background(), evt))

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(false, nil)
	require.NoError(t, sub.Handle(context.Background(), evt), "duplicates are not an error")

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))
	assert.Error(t, sub.Handle(context.Background(), evt))
}

func TestEmailSubscriber(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockEmailSender(ctrl)
	sub := NewEmailSubscriber(sender, newTestLogger())

	evt := sampleTransfer(domain.DirectionCredit)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, msg ports.EmailMessage) error {
		assert.Equal(t, "jane@example.com", msg.To)
		assert.Equal(t, "Transfer completed", msg.Subject)
		assert.Contains(t, msg.Body, "Hello Jane Doe,")
		assert.Contains(t, msg.Body, "****1234")
		assert.NotContains(t, msg.Body, "400012341234")
		return nil
	})
	require.NoError(t, sub.Handle(context.Background(), evt))

	evt.To.Email = ""
	require.NoError(t, sub.Handle(context.Background(), evt), "no address, nothing sent")
}

func TestLogEmailSender(t *testing.T) {
	assert.NoError(t, NewLogEmailSender(newTestLogger()).Send(context.Background(), ports.EmailMessage{To: "a@b.co"}))
}

func TestMetricsSubscriber(t *testing.T) {
	reg := prometheus.NewRegistry()
	sub, err := NewMetricsSubscriber(reg)
	require.NoError(t, err)

	evt := sampleTransfer(domain.DirectionDebit)
	require.NoError(t, sub.Handle(context.Background(), evt))
	require.NoError(t, sub.Handle(context.Background(), evt))
	require.NoError(t, sub.Handle(context.Background(), domain.AccountCreated{AccountNumber: "1", Currency: "USD"}))

	assert.Equal(t, 2.0, testutil.ToFloat64(sub.events.WithLabelValues(string(domain.EventTransactionCompleted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(sub.events.WithLabelValues(string(domain.EventAccountCreated))))
	assert.InDelta(t, 31.0, testutil.ToFloat64(sub.amounts.WithLabelValues(string(domain.EventTransactionCompleted), "USD")), 1e-9)

	_, err = NewMetricsSubscriber(reg)
	assert.Error(t, err, "metrics register once per registry")
}
