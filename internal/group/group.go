// Package group manages dining-group documents in Redis: the member set
// copied from a promoted room, the per-user restaurant votes, and the
// voting / confirmed / completed lifecycle. Vote tallies are always derived
// from the persisted vote map on read; no counter is maintained alongside
// it.
package group

import (
	"sort"
	"time"
)

// Status values for the group lifecycle.
const (
	StatusVoting    = "voting"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
)

// Group is a dining-group document.
type Group struct {
	ID             string
	RoomID         string
	Status         string
	Deadline       time.Time
	CreatedAt      time.Time
	Members        []string
	RestaurantID   string // set on confirmation
	RestaurantName string
}

// HasMember reports whether userID is in the member list.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Expired reports whether the voting deadline has passed at t.
func (g *Group) Expired(t time.Time) bool { return !t.Before(g.Deadline) }

// Tally maps restaurant IDs to their current vote counts.
type Tally map[string]int

// TallyVotes derives a tally from the persisted userID -> restaurantID vote
// map.
func TallyVotes(votes map[string]string) Tally {
	t := make(Tally, len(votes))
	for _, restaurantID := range votes {
		t[restaurantID]++
	}
	return t
}

// MajorityThreshold returns the vote count a restaurant needs to reach a
// majority in a group of memberCount users: ceil(memberCount / 2).
func MajorityThreshold(memberCount int) int {
	return (memberCount + 1) / 2
}

// Leader returns the restaurant with the most votes. Ties resolve to the
// lowest restaurant ID so the result never depends on map iteration order.
// Returns "" for an empty tally.
func (t Tally) Leader() string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	leader, best := "", 0
	for _, id := range ids {
		if t[id] > best {
			leader, best = id, t[id]
		}
	}
	return leader
}

// Majority reports whether any restaurant has reached the majority
// threshold for memberCount members, and which one. When several qualify in
// the same tally the highest count wins, then the lowest restaurant ID.
func (t Tally) Majority(memberCount int) (winner string, reached bool) {
	threshold := MajorityThreshold(memberCount)
	leader := t.Leader()
	if leader == "" || t[leader] < threshold {
		return "", false
	}
	return leader, true
}
