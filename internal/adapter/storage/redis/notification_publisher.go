package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retail-ledger/internal/core/ports"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	inboxSize      = 100
	sentMarkerTTL  = 7 * 24 * time.Hour
	channelPrefix  = "notifications:"
	inboxKeyPrefix = "notifications:inbox:"
	sentKeyPrefix  = "notifications:sent:"
)

// NotificationPublisher implements ports.NotificationPublisher. Each
// notification is fanned out on a per-user channel and kept in a capped
// per-user inbox list.
type NotificationPublisher struct {
	client *goredis.Client
}

// NewNotificationPublisher creates a Redis-backed notification publisher.
func NewNotificationPublisher(client *goredis.Client) *NotificationPublisher {
	return &NotificationPublisher{client: client}
}

// Publish returns false without publishing when n.ID was seen before.
func (p *NotificationPublisher) Publish(ctx context.Context, n ports.Notification) (bool, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("marshal notification: %w", err)
	}

	fresh, err := p.client.SetNX(ctx, sentKeyPrefix+n.ID.String(), 1, sentMarkerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis notification dedupe: %w", err)
	}
	if !fresh {
		return false, nil
	}

	userID := n.UserID.String()
	_, err = p.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, inboxKeyPrefix+userID, payload)
		pipe.LTrim(ctx, inboxKeyPrefix+userID, 0, inboxSize-1)
		pipe.Publish(ctx, channelPrefix+userID, payload)
		return nil
	})
	if err != nil {
		// Clear the marker so the relay can retry the delivery.
		if delErr := p.client.Del(context.WithoutCancel(ctx), sentKeyPrefix+n.ID.String()).Err(); delErr != nil {
			err = errors.Join(err, fmt.Errorf("clear sent marker: %w", delErr))
		}
		return false, fmt.Errorf("redis notification publish: %w", err)
	}
	return true, nil
}

// Inbox implements ports.NotificationInbox. At most the last inboxSize
// notifications are kept.
func (p *NotificationPublisher) Inbox(ctx context.Context, userID uuid.UUID, limit int) ([]ports.Notification, error) {
	if limit <= 0 || limit > inboxSize {
		limit = inboxSize
	}
	raw, err := p.client.LRange(ctx, inboxKeyPrefix+userID.String(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis notification inbox: %w", err)
	}
	out := make([]ports.Notification, 0, len(raw))
	for _, item := range raw {
		var n ports.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
