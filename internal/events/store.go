package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PGStore persists domain events to Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

// InsertDomainEvent appends one event row and returns it with its assigned
// identity and timestamp.
func (s *PGStore) InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (Event, error) {
	ev := Event{Topic: topic, AggregateID: aggregateID, Payload: payload}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, occurred_at`, topic, aggregateID, payload)
	if err := row.Scan(&ev.ID, &ev.OccurredAt); err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}

// LogNotifier writes emitted events to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify logs the event at info level.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID.String()).
		Int64("event_id", event.ID).
		Msg("domain event")
	return nil
}
