package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	pool querier
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return newOutboxRepository(pool)
}

func newOutboxRepository(pool querier) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Create creates a new outbox event, normally within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	_, err = conn(r.pool, tx).Exec(ctx, `
		INSERT INTO outbox_events (
			id, aggregate_id, aggregate_type, event_type, payload, created_at, published
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.AggregateID, event.AggregateType, event.EventType,
		payload, event.CreatedAt, event.Published,
	)

	return err
}

// GetUnpublished retrieves unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload, created_at, published_at, published
		FROM outbox_events
		WHERE published = false
		ORDER BY created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0, limit)
	for rows.Next() {
		var (
			event   domain.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&payload,
			&event.CreatedAt,
			&event.PublishedAt,
			&event.Published,
		); err != nil {
			return nil, err
		}

		if payload != nil {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, fmt.Errorf("decode payload of outbox event %s: %w", event.ID, err)
			}
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET published = true, published_at = $2 WHERE id = $1`,
		id, publishedAt,
	)
	return err
}

// DeletePublished deletes published events older than the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM outbox_events WHERE published = true AND published_at < $1`,
		before,
	)
	return err
}
