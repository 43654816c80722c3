package credibility

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store manages the append-only credibility log in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Entry is one row of the credibility log: who, what, the delta applied,
// and the resulting score, plus the room or group the action happened in.
type Entry struct {
	ID        int64
	UserID    string
	Action    Action
	Delta     float64
	Score     float64 // score after the delta
	ContextID string  // room or group ID, empty when not applicable
	CreatedAt time.Time
}

// NewStore creates a credibility log store backed by the given database
// handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts a credibility log entry.
func (s *Store) Append(ctx context.Context, e *Entry) error {
	const query = `
		INSERT INTO credibility_logs (user_id, action, delta, score, context_id)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		e.UserID, string(e.Action), e.Delta, e.Score, e.ContextID)
	if err != nil {
		return fmt.Errorf("credibility: insert log: %w", err)
	}
	return nil
}

// History returns a user's most recent log entries, newest first.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	const query = `
		SELECT id, user_id, action, delta, score, context_id, created_at
		FROM credibility_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("credibility: history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &e.UserID, &action, &e.Delta, &e.Score, &e.ContextID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("credibility: scan: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountRecent returns the number of negative actions logged against a user
// within the given time window.
func (s *Store) CountRecent(ctx context.Context, userID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM credibility_logs
		WHERE user_id = $1
		  AND delta < 0
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("credibility: count recent: %w", err)
	}
	return count, nil
}
