package moderation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a persisted record of one moderation verdict, retained so
// moderators can review what was flagged and what rewrite was offered.
type Event struct {
	ID         string
	Username   string
	Message    string
	Toxicity   float64
	Flagged    bool
	Suggestion *string // nil when no suggestion was produced
}

// EventStore manages moderation events in PostgreSQL.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates an event store backed by the given database handle.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Record inserts a moderation event. An empty ID is filled with a fresh UUID.
// Persistence is best-effort from the gateway's point of view: callers log
// failures and keep serving.
func (s *EventStore) Record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	const query = `
		INSERT INTO chat_moderation (id, username, message, toxicity, flagged, suggestion)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Username,
		event.Message,
		event.Toxicity,
		event.Flagged,
		event.Suggestion,
	)
	if err != nil {
		return fmt.Errorf("moderation: insert event: %w", err)
	}
	return nil
}

// CountFlaggedRecent returns how many flagged events were recorded for a
// username within the given time window. This backs escalation policies
// (e.g. repeated flags within 24 hours warranting review).
func (s *EventStore) CountFlaggedRecent(ctx context.Context, username string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM chat_moderation
		WHERE username = $1
		  AND flagged
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, username, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("moderation: count flagged: %w", err)
	}
	return count, nil
}
