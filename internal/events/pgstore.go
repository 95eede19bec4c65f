package events

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore appends events to the domain_events table.
type PgStore struct {
	Pool *pgxpool.Pool
}

// Insert implements Store.
func (s PgStore) Insert(ctx context.Context, ev Event) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt,
	)
	return err
}
