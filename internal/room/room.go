// Package room manages waiting-room documents in Redis. A room is a
// transient grouping of users awaiting promotion into a dining group; its
// member list, capacity guard, and status transitions are all applied with
// Lua scripts so concurrent joins and sweeps cannot violate the room
// invariants.
package room

import "time"

// Status values for the room lifecycle.
const (
	StatusWaiting = "waiting"
	StatusMatched = "matched"
	StatusExpired = "expired"
)

// Room is a waiting-room document. Members live in a separate Redis list
// (join order preserved) and are loaded on demand.
type Room struct {
	ID         string
	Status     string
	Deadline   time.Time
	MinMembers int
	MaxMembers int
	CreatedAt  time.Time
	Members    []string
}

// Full reports whether the room has reached its member cap.
func (r *Room) Full() bool { return len(r.Members) >= r.MaxMembers }

// Promotable reports whether the room has enough members to become a group.
func (r *Room) Promotable() bool { return len(r.Members) >= r.MinMembers }

// Expired reports whether the room's deadline has passed at t.
func (r *Room) Expired(t time.Time) bool { return !t.Before(r.Deadline) }

// HasMember reports whether userID is in the member list.
func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}
