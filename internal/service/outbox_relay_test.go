package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"
	"retail-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingSubscriber struct {
	name string
	fail func(domain.Event) error

	mu   sync.Mutex
	seen map[uuid.UUID]int
}

func newRecordingSubscriber(name string) *recordingSubscriber {
	return &recordingSubscriber{name: name, seen: make(map[uuid.UUID]int)}
}

func (s *recordingSubscriber) Name() string { return s.name }

func (s *recordingSubscriber) Handle(ctx context.Context, evt domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[evt.EventID()]++
	if s.fail != nil {
		return s.fail(evt)
	}
	return nil
}

func (s *recordingSubscriber) count(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[id]
}

func depositN(t *testing.T, env *ledgerEnv, n int) []domain.OutboxMessage {
	t.Helper()
	owner := env.user(t, domain.RoleCustomer)
	acct := env.account(t, owner, domain.AccountTypeChecking, "0", "USD")
	for range n {
		require.NoError(t, env.inTx(func(tx pgx.Tx) error {
			_, err := env.ledger.Deposit(context.Background(), tx, owner, ports.DepositRequest{AccountID: acct.ID, Amount: dec("1")})
			return err
		}))
	}
	return env.pending(t)
}

func TestOutboxRelay_DeliversEachMessageOnce(t *testing.T) {
	env := newLedgerEnv(t)
	msgs := depositN(t, env, 3)
	first, second := newRecordingSubscriber("first"), newRecordingSubscriber("second")
	relay := NewOutboxRelay(env.outbox, []ports.EventSubscriber{first, second}, nil, RelayConfig{BatchSize: 10}, newTestLogger())

	stats, err := relay.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RelayStats{Fetched: 3, Published: 3}, stats)

	stats, err = relay.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Fetched)

	for _, m := range msgs {
		assert.Equal(t, 1, first.count(m.ID))
		assert.Equal(t, 1, second.count(m.ID))
	}
	assert.Equal(t, 3, env.outbox.Processed())
}

func TestOutboxRelay_PoisonMessageDoesNotBlockBatch(t *testing.T) {
	env := newLedgerEnv(t)
	msgs := depositN(t, env, 3)
	poison := msgs[1].ID

	flaky := newRecordingSubscriber("flaky")
	flaky.fail = func(evt domain.Event) error {
		if evt.EventID() == poison {
			return errors.New("smtp timeout")
		}
		return nil
	}
	steady := newRecordingSubscriber("steady")
	relay := NewOutboxRelay(env.outbox, []ports.EventSubscriber{flaky, steady}, nil, RelayConfig{}, newTestLogger())

	stats, err := relay.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Published)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, steady.count(poison), "other subscribers still see the failing event")

	left := env.pending(t)
	require.Len(t, left, 1)
	assert.Equal(t, poison, left[0].ID)
	assert.Equal(t, 1, left[0].Attempts)
	assert.Contains(t, *left[0].LastError, "flaky: smtp timeout")

	flaky.fail = nil
	stats, err = relay.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RelayStats{Fetched: 1, Published: 1}, stats)
	assert.Equal(t, 2, steady.count(poison), "delivery is at least once")
	assert.Empty(t, env.pending(t))
}

func TestOutboxRelay_FailingRowsDoNotStarveLaterPages(t *testing.T) {
	env := newLedgerEnv(t)
	msgs := depositN(t, env, 3)
	stuck := map[uuid.UUID]bool{msgs[0].ID: true, msgs[1].ID: true}

	sub := newRecordingSubscriber("sub")
	sub.fail = func(evt domain.Event) error {
		if stuck[evt.EventID()] {
			return errors.New("downstream rejected")
		}
		return nil
	}
	relay := NewOutboxRelay(env.outbox, []ports.EventSubscriber{sub}, nil, RelayConfig{BatchSize: 2}, newTestLogger())

	stats, err := relay.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RelayStats{Fetched: 3, Published: 1, Failed: 2}, stats)
	assert.Equal(t, 1, sub.count(msgs[2].ID))

	for range 3 {
		stats, err = relay.Publish(context.Background())
		require.NoError(t, err)
		assert.Equal(t, RelayStats{Fetched: 2, Failed: 2}, stats)
	}
	assert.Equal(t, 1, sub.count(msgs[2].ID), "delivered rows are not retried")
	assert.Equal(t, 4, sub.count(msgs[0].ID))
	assert.Len(t, env.pending(t), 2)
}

func TestOutboxRelay_PagesUntilDrained(t *testing.T) {
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutboxRepository(ctrl)
	relay := NewOutboxRelay(outbox, nil, nil, RelayConfig{BatchSize: 2}, newTestLogger())

	page := func(n int) []domain.OutboxMessage {
		out := make([]domain.OutboxMessage, n)
		for i := range out {
			m, err := domain.NewOutboxMessage(domain.PaymentFailed{EventMeta: domain.NewEventMeta(testNow), Reason: "declined"}, testNow)
			require.NoError(t, err)
			out[i] = *m
		}
		return out
	}
	first, second := page(2), page(1)

	gomock.InOrder(
		outbox.EXPECT().FetchUnprocessed(gomock.Any(), gomock.Nil(), 2).Return(first, nil),
		outbox.EXPECT().MarkProcessed(gomock.Any(), first[0].ID, gomock.Any()).Return(nil),
		outbox.EXPECT().MarkProcessed(gomock.Any(), first[1].ID, gomock.Any()).Return(nil),
		outbox.EXPECT().FetchUnprocessed(gomock.Any(), first[1].Cursor(), 2).Return(second, nil),
		outbox.EXPECT().MarkProcessed(gomock.Any(), second[0].ID, gomock.Any()).Return(nil),
	)

	stats, err := relay.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RelayStats{Fetched: 3, Published: 3}, stats)
}

func TestOutboxRelay_UndecodableMessage(t *testing.T) {
	env := newLedgerEnv(t)
	depositN(t, env, 1)
	require.NoError(t, env.inTx(func(tx pgx.Tx) error {
		return env.outbox.Create(context.Background(), tx, &domain.OutboxMessage{
			ID: uuid.New(), EventType: "card.issued", EventData: []byte(`{}`), CreatedAt: testNow.Add(-time.Hour),
		})
	}))

	sub := newRecordingSubscriber("sub")
	stats, err := NewOutboxRelay(env.outbox, []ports.EventSubscriber{sub}, nil, RelayConfig{}, newTestLogger()).
		Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RelayStats{Fetched: 2, Published: 1, Failed: 1}, stats)

	left := env.pending(t)
	require.Len(t, left, 1)
	assert.Contains(t, *left[0].LastError, "unknown event type")
}

func TestOutboxRelay_StopsBetweenMessagesWhenCancelled(t *testing.T) {
	env := newLedgerEnv(t)
	depositN(t, env, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := NewOutboxRelay(env.outbox, nil, nil, RelayConfig{}, newTestLogger()).Publish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 0, stats.Published)
	assert.Len(t, env.pending(t), 2)
}

func TestOutboxRelay_SkipsWhenAlreadyRunning(t *testing.T) {
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutboxRepository(ctrl)
	relay := NewOutboxRelay(outbox, nil, nil, RelayConfig{}, newTestLogger())

	relay.mu.Lock()
	stats, err := relay.Publish(context.Background())
	relay.mu.Unlock()

	require.NoError(t, err)
	assert.True(t, stats.Skipped)
}

func TestOutboxRelay_Lease(t *testing.T) {
	t.Run("held elsewhere", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		outbox := mocks.NewMockOutboxRepository(ctrl)
		lease := mocks.NewMockLeaseLock(ctrl)
		relay := NewOutboxRelay(outbox, nil, lease, RelayConfig{LeaseTTL: 30 * time.Second}, newTestLogger())

		lease.EXPECT().Acquire(gomock.Any(), relayLeaseKey, relay.owner, 30*time.Second).Return(false, nil)

		stats, err := relay.Publish(context.Background())
		require.NoError(t, err)
		assert.True(t, stats.Skipped)
	})

	t.Run("lease error skips the run", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		outbox := mocks.NewMockOutboxRepository(ctrl)
		lease := mocks.NewMockLeaseLock(ctrl)
		relay := NewOutboxRelay(outbox, nil, lease, RelayConfig{}, newTestLogger())

		lease.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))

		_, err := relay.Publish(context.Background())
		assert.Error(t, err)
	})

	t.Run("acquired and released", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		outbox := mocks.NewMockOutboxRepository(ctrl)
		lease := mocks.NewMockLeaseLock(ctrl)
		relay := NewOutboxRelay(outbox, nil, lease, RelayConfig{BatchSize: 5}, newTestLogger())

		gomock.InOrder(
			lease.EXPECT().Acquire(gomock.Any(), relayLeaseKey, relay.owner, time.Minute).Return(true, nil),
			outbox.EXPECT().FetchUnprocessed(gomock.Any(), gomock.Nil(), 5).Return(nil, nil),
			lease.EXPECT().Release(gomock.Any(), relayLeaseKey, relay.owner).Return(nil),
		)

		require.NoError(t, relay.Run(context.Background()))
	})
}

func TestOutboxRelay_FetchFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutboxRepository(ctrl)
	outbox.EXPECT().FetchUnprocessed(gomock.Any(), gomock.Nil(), 100).Return(nil, errors.New("db down"))

	err := NewOutboxRelay(outbox, nil, nil, RelayConfig{}, newTestLogger()).Run(context.Background())
	assert.ErrorContains(t, err, "db down")
}
