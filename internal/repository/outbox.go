package repository

import (
	"context"
	"fmt"
	"time"
)

const (
	EventOrderCommitted  = "OrderCommitted"
	EventNotifyPurchaser = "NotifyPurchaser"
	EventNotifyOwner     = "NotifyOwner"
)

// MaxOutboxAttempts bounds retries of a poisoned event.
const MaxOutboxAttempts = 10

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, attempts, created_at
         FROM outbox_events
         WHERE processed_at IS NULL AND attempts < $2
         ORDER BY id LIMIT $1`, limit, MaxOutboxAttempts)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.Attempts, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = NOW(), last_error = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

// MarkEventFailed counts a failed dispatch; the event stays in the queue
// until MaxOutboxAttempts is reached.
func (r *Repository) MarkEventFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}
