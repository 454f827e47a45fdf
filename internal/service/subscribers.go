package service

import (
	"context"
	"fmt"
	"strings"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// NotificationSubscriber turns events into in-app notifications.
type NotificationSubscriber struct {
	publisher ports.NotificationPublisher
	log       zerolog.Logger
}

func NewNotificationSubscriber(publisher ports.NotificationPublisher, log zerolog.Logger) *NotificationSubscriber {
	return &NotificationSubscriber{publisher: publisher, log: log}
}

func (s *NotificationSubscriber) Name() string { return "notification" }

func (s *NotificationSubscriber) Handle(ctx context.Context, evt domain.Event) error {
	to := evt.Recipient()
	title, body := renderEvent(evt)
	published, err := s.publisher.Publish(ctx, ports.Notification{
		ID:        evt.EventID(),
		UserID:    to.UserID,
		EventType: evt.Type(),
		Title:     title,
		Body:      body,
		CreatedAt: evt.Time(),
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	if !published {
		s.log.Debug().Str("event_id", evt.EventID().String()).Msg("notification already published")
	}
	return nil
}

// EmailSubscriber mails the event's recipient.
type EmailSubscriber struct {
	sender ports.EmailSender
	log    zerolog.Logger
}

func NewEmailSubscriber(sender ports.EmailSender, log zerolog.Logger) *EmailSubscriber {
	return &EmailSubscriber{sender: sender, log: log}
}

func (s *EmailSubscriber) Name() string { return "email" }

func (s *EmailSubscriber) Handle(ctx context.Context, evt domain.Event) error {
	to := evt.Recipient()
	if to.Email == "" {
		s.log.Debug().Str("event_id", evt.EventID().String()).Msg("no email address on event, skipping")
		return nil
	}

	title, body := renderEvent(evt)
	greeting := "Hello"
	if to.FullName != "" {
		greeting += " " + to.FullName
	}
	msg := ports.EmailMessage{
		To:      to.Email,
		Subject: title,
		Body:    fmt.Sprintf("%s,\n\n%s\n\nReference: %s\n", greeting, body, evt.EventID()),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// LogEmailSender is the default ports.EmailSender: it writes the message
// to the log instead of delivering it.
type LogEmailSender struct {
	log zerolog.Logger
}

func NewLogEmailSender(log zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{log: log}
}

func (s *LogEmailSender) Send(ctx context.Context, msg ports.EmailMessage) error {
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("body_bytes", len(msg.Body)).
		Msg("email sent")
	return nil
}

// MetricsSubscriber counts relayed events. Redelivered events are counted
// again.
type MetricsSubscriber struct {
	events  *prometheus.CounterVec
	amounts *prometheus.CounterVec
}

// NewMetricsSubscriber registers ledger_events_total and
// ledger_event_amount_total on reg.
func NewMetricsSubscriber(reg prometheus.Registerer) (*MetricsSubscriber, error) {
	s := &MetricsSubscriber{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_total",
			Help: "Domain events relayed from the outbox, by type.",
		}, []string{"type"}),
		amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_event_amount_total",
			Help: "Sum of event amounts relayed from the outbox, by type and currency.",
		}, []string{"type", "currency"}),
	}
	for _, c := range []prometheus.Collector{s.events, s.amounts} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register ledger metrics: %w", err)
		}
	}
	return s, nil
}

func (s *MetricsSubscriber) Name() string { return "metrics" }

func (s *MetricsSubscriber) Handle(ctx context.Context, evt domain.Event) error {
	s.events.WithLabelValues(string(evt.Type())).Inc()
	if amount, ok := eventAmount(evt); ok {
		s.amounts.WithLabelValues(string(evt.Type()), amount.Currency()).Add(amount.Amount().InexactFloat64())
	}
	return nil
}

func eventAmount(evt domain.Event) (domain.Money, bool) {
	switch e := evt.(type) {
	case domain.TransactionCompleted:
		return e.Amount, true
	case domain.BillPaymentCompleted:
		return e.Amount, true
	case domain.PaymentProcessed:
		return e.Amount, true
	case domain.PaymentRefunded:
		return e.Amount, true
	case domain.PaymentFailed:
		return e.Amount, true
	}
	return domain.Money{}, false
}

// renderEvent returns a short title and a one-paragraph body for evt.
func renderEvent(evt domain.Event) (title, body string) {
	switch e := evt.(type) {
	case domain.AccountCreated:
		return "Account opened", fmt.Sprintf("Your %s account %s in %s is ready to use.",
			humanize(string(e.AccountType)), maskAccount(e.AccountNumber), e.Currency)
	case domain.TransactionCompleted:
		verb := "credited to"
		if e.Direction == domain.DirectionDebit {
			verb = "debited from"
		}
		body = fmt.Sprintf("%s of %s %s account %s.", humanize(string(e.TransactionType)), e.Amount, verb, maskAccount(e.AccountNumber))
		if e.RelatedAccountNumber != "" {
			other := "to"
			if e.Direction == domain.DirectionCredit {
				other = "from"
			}
			body = strings.TrimSuffix(body, ".") + fmt.Sprintf(" (%s account %s).", other, maskAccount(e.RelatedAccountNumber))
		}
		return humanize(string(e.TransactionType)) + " completed", body + fmt.Sprintf(" New balance: %s.", e.BalanceAfter)
	case domain.BillPaymentCompleted:
		return "Bill paid", fmt.Sprintf("Paid %s to %s from account %s. New balance: %s.",
			e.Amount, e.Payee, maskAccount(e.AccountNumber), e.BalanceAfter)
	case domain.PaymentProcessed:
		return "Card payment processed", fmt.Sprintf("A card payment of %s was charged to account %s. %s",
			e.Amount, maskAccount(e.AccountNumber), e.Description)
	case domain.PaymentRefunded:
		return "Refund received", fmt.Sprintf("A refund of %s was credited to account %s. %s",
			e.Amount, maskAccount(e.AccountNumber), e.Description)
	case domain.PaymentFailed:
		return "Payment failed", fmt.Sprintf("A payment of %s from account %s could not be completed: %s.",
			e.Amount, maskAccount(e.AccountNumber), e.Reason)
	}
	return string(evt.Type()), ""
}

// maskAccount keeps the last four digits.
func maskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	return "****" + number[len(number)-4:]
}

// humanize turns "MONEY_MARKET" into "Money market".
func humanize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
