// Package suspension provides matchmaking suspensions backed by Redis.
// Suspension records are stored as simple key-value pairs with TTL-based
// expiry:
//
//	Key:   susp:<user_id>
//	Value: <reason>
//	TTL:   suspension duration
package suspension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SuspPrefix is the Redis key prefix for suspension records.
	SuspPrefix = "susp:"

	// OffensesPrefix is the Redis key prefix for offense counters used by
	// the escalating suspension system.
	OffensesPrefix = "susp:offenses:"

	// Escalating suspension durations.
	Susp15Min  = 15 * time.Minute // 1st offense
	Susp1Hour  = 1 * time.Hour    // 2nd offense
	Susp24Hour = 24 * time.Hour   // 3rd+ offense

	// OffensesTTL is how long the offense counter lives in Redis. After 24h
	// without new offenses the counter resets to zero.
	OffensesTTL = 24 * time.Hour
)

// Store manages suspension records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new suspension store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IsSuspended checks if a user is currently barred from matchmaking.
// Returns (suspended, remainingSeconds, reason, error). Redis errors are
// returned so callers can decide how to handle them (the matcher fails
// open).
func (s *Store) IsSuspended(ctx context.Context, userID string) (bool, int, string, error) {
	key := SuspPrefix + userID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// The suspension exists but the TTL is unreadable. Report suspended
		// with 0 remaining rather than swallowing it.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}

	return true, remaining, reason, nil
}

// Suspend bars a user from matchmaking for the given duration. The
// suspension expires automatically.
func (s *Store) Suspend(ctx context.Context, userID string, duration time.Duration, reason string) error {
	return s.client.Set(ctx, SuspPrefix+userID, reason, duration).Err()
}

// Lift removes a user's suspension immediately.
func (s *Store) Lift(ctx context.Context, userID string) error {
	return s.client.Del(ctx, SuspPrefix+userID).Err()
}

// escalationDuration returns the suspension duration for a given offense
// count.
func escalationDuration(offenseCount int) time.Duration {
	switch {
	case offenseCount <= 1:
		return Susp15Min
	case offenseCount == 2:
		return Susp1Hour
	default:
		return Susp24Hour
	}
}

// OffenseCount returns the current offense counter for a user. Returns 0 if
// the key does not exist (no offenses recorded or the counter expired).
func (s *Store) OffenseCount(ctx context.Context, userID string) (int, error) {
	val, err := s.client.Get(ctx, OffensesPrefix+userID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Escalate increments the offense counter for a user and applies a
// suspension whose duration escalates with the number of offenses:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// The offense counter has a 24h TTL set on first increment, so the window
// does not slide and counters naturally expire without new activity.
//
// Returns the suspension duration that was applied.
func (s *Store) Escalate(ctx context.Context, userID string, reason string) (time.Duration, error) {
	key := OffensesPrefix + userID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("suspension: escalate incr: %w", err)
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, OffensesTTL).Err(); err != nil {
			return 0, fmt.Errorf("suspension: escalate expire: %w", err)
		}
	}

	duration := escalationDuration(int(count))
	if err := s.Suspend(ctx, userID, duration, reason); err != nil {
		return 0, fmt.Errorf("suspension: escalate suspend: %w", err)
	}

	return duration, nil
}
