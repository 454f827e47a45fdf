package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"retail-ledger/internal/core/domain"
	"retail-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const relayLeaseKey = "outbox-relay"

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	BatchSize int
	LeaseTTL  time.Duration
}

// RelayStats summarises one relay run.
type RelayStats struct {
	Fetched   int
	Published int
	Failed    int
	Skipped   bool // another run held the lock
}

// OutboxRelay drains committed outbox rows to the in-process subscribers.
// A row is marked processed only after every subscriber accepted it, so
// delivery is at least once.
type OutboxRelay struct {
	outbox      ports.OutboxRepository
	subscribers []ports.EventSubscriber
	lease       ports.LeaseLock
	cfg         RelayConfig
	owner       string

	mu    sync.Mutex
	clock func() time.Time
	log   zerolog.Logger
}

// NewOutboxRelay creates a relay. lease may be nil for single-instance
// deployments.
func NewOutboxRelay(
	outbox ports.OutboxRepository,
	subscribers []ports.EventSubscriber,
	lease ports.LeaseLock,
	cfg RelayConfig,
	log zerolog.Logger,
) *OutboxRelay {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = time.Minute
	}
	host, _ := os.Hostname()
	return &OutboxRelay{
		outbox:      outbox,
		subscribers: subscribers,
		lease:       lease,
		cfg:         cfg,
		owner:       fmt.Sprintf("%s/%s", host, uuid.NewString()),
		clock:       func() time.Time { return time.Now().UTC() },
		log:         log,
	}
}

func (r *OutboxRelay) Name() string { return "outbox-relay" }

// Run implements ports.ScheduledJob.
func (r *OutboxRelay) Run(ctx context.Context) error {
	_, err := r.Publish(ctx)
	return err
}

// Publish drains unprocessed messages page by page, oldest first. A
// failing message is recorded and left for the next run; it never stops
// the run. Cancelling ctx stops the run between messages.
func (r *OutboxRelay) Publish(ctx context.Context) (RelayStats, error) {
	var stats RelayStats

	if !r.mu.TryLock() {
		r.log.Debug().Msg("relay already running in this process, skipping")
		stats.Skipped = true
		return stats, nil
	}
	defer r.mu.Unlock()

	if r.lease != nil {
		ok, err := r.lease.Acquire(ctx, relayLeaseKey, r.owner, r.cfg.LeaseTTL)
		if err != nil {
			return stats, fmt.Errorf("acquire relay lease: %w", err)
		}
		if !ok {
			r.log.Debug().Msg("relay lease held by another instance, skipping")
			stats.Skipped = true
			return stats, nil
		}
		defer func() {
			if err := r.lease.Release(context.WithoutCancel(ctx), relayLeaseKey, r.owner); err != nil {
				r.log.Warn().Err(err).Msg("failed to release relay lease")
			}
		}()
	}

	// Pages advance past every row tried, so failing rows never hide the
	// ones queued behind them.
	var cursor *domain.OutboxCursor
	for page := 0; ; page++ {
		if page > 0 && ctx.Err() != nil {
			break
		}
		msgs, err := r.outbox.FetchUnprocessed(ctx, cursor, r.cfg.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("fetch outbox: %w", err)
		}
		stats.Fetched += len(msgs)

		for i := range msgs {
			if ctx.Err() != nil {
				r.log.Info().Int("remaining", len(msgs)-i).Msg("relay cancelled, leaving rest of batch")
				break
			}
			if r.deliver(context.WithoutCancel(ctx), &msgs[i]) {
				stats.Published++
			} else {
				stats.Failed++
			}
		}

		if len(msgs) < r.cfg.BatchSize {
			break
		}
		cursor = msgs[len(msgs)-1].Cursor()
	}

	if stats.Fetched > 0 {
		r.log.Info().
			Int("fetched", stats.Fetched).
			Int("published", stats.Published).
			Int("failed", stats.Failed).
			Msg("outbox batch relayed")
	}
	return stats, nil
}

func (r *OutboxRelay) deliver(ctx context.Context, msg *domain.OutboxMessage) bool {
	log := r.log.With().
		Str("message_id", msg.ID.String()).
		Str("event_type", string(msg.EventType)).
		Int("attempts", msg.Attempts).
		Logger()

	evt, err := msg.Event()
	if err == nil {
		err = r.dispatch(ctx, evt)
	}
	if err != nil {
		log.Error().Err(err).Msg("outbox message delivery failed")
		if rerr := r.outbox.RecordFailure(ctx, msg.ID, err.Error()); rerr != nil {
			log.Error().Err(rerr).Msg("failed to record outbox failure")
		}
		return false
	}

	if err := r.outbox.MarkProcessed(ctx, msg.ID, r.clock()); err != nil {
		// Subscribers already ran; the row is redelivered next run.
		log.Error().Err(err).Msg("failed to mark outbox message processed")
		return false
	}
	return true
}

// dispatch hands evt to every subscriber, even after one fails.
func (r *OutboxRelay) dispatch(ctx context.Context, evt domain.Event) error {
	var errs []error
	for _, sub := range r.subscribers {
		if err := sub.Handle(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sub.Name(), err))
		}
	}
	return errors.Join(errs...)
}
