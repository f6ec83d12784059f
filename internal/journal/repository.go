package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/dh2mqtt/internal/connection"
)

// Query limits for Recent.
const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Event is one recorded connection state change.
type Event struct {
	ID         int64
	From       string
	To         string
	Reason     string
	OccurredAt time.Time
}

// Repository defines the interface for journal operations.
type Repository interface {
	Record(ctx context.Context, tr connection.Transition) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// SQLiteRepository stores events in the connection_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new journal repository.
// The connection_events table must already exist (see migrations).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a transition. A zero At is stamped with the current time.
func (r *SQLiteRepository) Record(ctx context.Context, tr connection.Transition) error {
	at := tr.At
	if at.IsZero() {
		at = time.Now()
	}

	reason := ""
	if tr.Reason != nil {
		reason = tr.Reason.Error()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connection_events (from_state, to_state, reason, occurred_at)
		 VALUES (?, ?, ?, ?)`,
		tr.From.String(), tr.To.String(), reason,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting connection event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns the default page size.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, from_state, to_state, reason, occurred_at
		 FROM connection_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying connection events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var occurredAt string
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Reason, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning connection event: %w", err)
		}

		e.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing connection event timestamp %q: %w", occurredAt, err)
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection events: %w", err)
	}
	return events, nil
}
