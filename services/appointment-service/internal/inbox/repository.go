// Package inbox deduplicates consumed Kafka events by event id.
package inbox

import (
	"context"

	"github.com/md-rashed-zaman/docbook/libs/db"
)

type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

// Seen reports whether eventID was already recorded.
func (r *Repository) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM inbox_events WHERE event_id = $1)
	`, eventID).Scan(&seen)
	return seen, err
}

// Record stores eventID and reports whether it was seen for the first time.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.SQLState(err) == db.CodeUniqueViolation {
		return false, nil
	}
	return false, err
}
