package postgres

import (
	"context"
	"fmt"
	"time"

	"retail-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OutboxRepo implements ports.OutboxRepository.
type OutboxRepo struct {
	pool Pool
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(pool Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Create stages a message inside the caller's transaction.
func (r *OutboxRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.OutboxMessage) error {
	query := `INSERT INTO outbox_messages (id, event_type, event_data, created_at, is_processed, attempts)
		VALUES ($1, $2, $3, $4, FALSE, 0)`

	if _, err := tx.Exec(ctx, query, m.ID, string(m.EventType), m.EventData, m.CreatedAt); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

const outboxColumns = `id, event_type, event_data, created_at, is_processed, processed_at, attempts, last_error`

// FetchUnprocessed pages through unprocessed messages by keyset on
// (created_at, id).
func (r *OutboxRepo) FetchUnprocessed(ctx context.Context, after *domain.OutboxCursor, limit int) ([]domain.OutboxMessage, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = r.pool.Query(ctx, `SELECT `+outboxColumns+`
			FROM outbox_messages WHERE NOT is_processed ORDER BY created_at, id LIMIT $1`, limit)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+outboxColumns+`
			FROM outbox_messages WHERE NOT is_processed AND (created_at, id) > ($1, $2)
			ORDER BY created_at, id LIMIT $3`, after.CreatedAt, after.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch outbox messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.EventType, &m.EventData, &m.CreatedAt,
			&m.IsProcessed, &m.ProcessedAt, &m.Attempts, &m.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return msgs, nil
}

func (r *OutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_messages SET is_processed = TRUE, processed_at = $1, last_error = NULL WHERE id = $2`,
		processedAt, id)
	if err != nil {
		return fmt.Errorf("mark outbox message processed: %w", err)
	}
	return nil
}

// RecordFailure leaves the message unprocessed so the next run retries it.
func (r *OutboxRepo) RecordFailure(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_messages SET attempts = attempts + 1, last_error = $1 WHERE id = $2`,
		reason, id)
	if err != nil {
		return fmt.Errorf("record outbox failure: %w", err)
	}
	return nil
}
