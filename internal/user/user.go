// Package user manages user documents in Redis: profile, dining
// preferences, credibility score, and the membership pointers that tie a
// user to at most one waiting room or one active group.
package user

import (
	"github.com/feastfriends/feastfriends/internal/geo"
)

// Status values for the user state machine.
const (
	StatusOffline       = "offline"
	StatusOnline        = "online"
	StatusInWaitingRoom = "in_waiting_room"
	StatusInGroup       = "in_group"
)

// DefaultCredibility is the score assigned to new users.
const DefaultCredibility = 100

// Preferences is the bundle read by the compatibility scorer.
type Preferences struct {
	Cuisines []string
	Budget   float64
	RadiusKm float64
}

// User is a user document. RoomID and GroupID are mutually exclusive: the
// store writes both fields in a single HSET so no document ever carries
// both.
type User struct {
	ID          string
	Name        string
	Email       string
	Cuisines    []string
	Budget      float64
	RadiusKm    float64
	Credibility float64
	Location    *geo.Point // nil when the user has no resolved location
	Status      string
	RoomID      string
	GroupID     string
	CreatedAt   int64
	LastActive  int64
}

// HasLocation reports whether the user has a resolved geographic point.
func (u *User) HasLocation() bool { return u.Location != nil }

// Unattached reports whether the user holds neither a room nor a group
// pointer.
func (u *User) Unattached() bool { return u.RoomID == "" && u.GroupID == "" }
