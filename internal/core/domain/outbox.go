package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is an event persisted in the same unit of work as the state
// change that produced it. The relay delivers it at least once.
type OutboxMessage struct {
	ID          uuid.UUID  `json:"id"`
	EventType   EventType  `json:"event_type"`
	EventData   []byte     `json:"event_data"`
	CreatedAt   time.Time  `json:"created_at"`
	IsProcessed bool       `json:"is_processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error,omitempty"`
}

func NewOutboxMessage(evt Event, now time.Time) (*OutboxMessage, error) {
	eventType, data, err := EncodeEvent(evt)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:        evt.EventID(),
		EventType: eventType,
		EventData: data,
		CreatedAt: now,
	}, nil
}

// OutboxCursor is a keyset position in relay order (created_at, id).
type OutboxCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Cursor returns the position just past m.
func (m *OutboxMessage) Cursor() *OutboxCursor {
	return &OutboxCursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// Event decodes the payload back into its typed form.
func (m *OutboxMessage) Event() (Event, error) {
	return DecodeEvent(m.EventType, m.EventData)
}
