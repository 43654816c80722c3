// Package protocol defines the WebSocket message types and structures used
// for communication between the client and the gateway. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoinMatching      = "join_matching"
	TypeCancelMatching    = "cancel_matching"
	TypeLeaveRoom         = "leave_room"
	TypeRoomStatus        = "room_status"
	TypeGroupStatus       = "group_status"
	TypeVote              = "vote"
	TypeConfirmRestaurant = "confirm_restaurant"
	TypeLeaveGroup        = "leave_group"
	TypeCheckIn           = "check_in"
	TypeCompleteMeetup    = "complete_meetup"
	TypeSubmitReview      = "submit_review"
	TypeCredibilityStatus = "credibility_status"
	TypeSearchRestaurants = "search_restaurants"
	TypePing              = "ping"
)

// Server -> Client message types.
const (
	TypeConnected        = "connected"
	TypeRoomState        = "room_state"
	TypeGroupState       = "group_state"
	TypeCredibilityState = "credibility_state"
	TypeSearchResults    = "search_results"
	TypeRateLimited      = "rate_limited"
	TypeSuspended        = "suspended"
	TypeError            = "error"
	TypePong             = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinMatchingMsg is sent by the client to enter matchmaking. Preference
// fields are optional; when present they overwrite the stored preferences.
type JoinMatchingMsg struct {
	Type     string   `json:"type"`
	Cuisines []string `json:"cuisines,omitempty"`
	Budget   *float64 `json:"budget,omitempty"`
	RadiusKm *float64 `json:"radius_km,omitempty"`
}

// LeaveRoomMsg is sent by the client to exit their waiting room. RoomID is
// optional; cancel_matching decodes into the same struct without one and
// the server falls back to the user's current room.
type LeaveRoomMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
}

// RoomStatusMsg requests the current state of a waiting room.
type RoomStatusMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// GroupStatusMsg requests the current state of a dining group, including
// the vote tally.
type GroupStatusMsg struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

// VoteMsg casts (or replaces) the client's restaurant vote.
type VoteMsg struct {
	Type         string `json:"type"`
	GroupID      string `json:"group_id"`
	RestaurantID string `json:"restaurant_id"`
}

// ConfirmRestaurantMsg asks the server to lock in the current vote leader,
// provided a majority of members voted for it.
type ConfirmRestaurantMsg struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

// LeaveGroupMsg is sent by the client to leave a dining group early.
type LeaveGroupMsg struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

// CheckInMsg marks the sender as arrived at a confirmed meetup.
type CheckInMsg struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

// CompleteMeetupMsg marks a confirmed group's meetup as finished.
type CompleteMeetupMsg struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

// SubmitReviewMsg reviews a fellow diner after a meetup.
type SubmitReviewMsg struct {
	Type     string `json:"type"`
	GroupID  string `json:"group_id"`
	UserID   string `json:"user_id"` // the member being reviewed
	Positive bool   `json:"positive"`
}

// CredibilityStatusMsg requests the sender's credibility standing.
type CredibilityStatusMsg struct {
	Type string `json:"type"`
}

// SearchRestaurantsMsg searches the catalog around a point.
type SearchRestaurantsMsg struct {
	Type     string  `json:"type"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	RadiusKm float64 `json:"radius_km"`
	Cuisine  string  `json:"cuisine,omitempty"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ConnectedMsg is sent by the server once the connection is authenticated.
type ConnectedMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// RoomStateMsg is the server's snapshot of a waiting room.
type RoomStateMsg struct {
	Type        string   `json:"type"`
	RoomID      string   `json:"room_id"`
	Status      string   `json:"status"`
	Members     []string `json:"members"`
	MemberCount int      `json:"member_count"`
	MaxMembers  int      `json:"max_members"`
	Deadline    int64    `json:"deadline"` // unix ms
}

// GroupStateMsg is the server's snapshot of a dining group.
type GroupStateMsg struct {
	Type         string         `json:"type"`
	GroupID      string         `json:"group_id"`
	Status       string         `json:"status"`
	Members      []string       `json:"members"`
	Votes        map[string]int `json:"votes"`
	Deadline     int64          `json:"deadline"` // unix ms
	RestaurantID string         `json:"restaurant_id,omitempty"`
	Restaurant   string         `json:"restaurant,omitempty"`
}

// CredibilityEntry is one row of a user's credibility history.
type CredibilityEntry struct {
	Action    string  `json:"action"`
	Delta     float64 `json:"delta"`
	Score     float64 `json:"score"` // score after the delta
	ContextID string  `json:"context_id,omitempty"`
	CreatedAt int64   `json:"created_at"` // unix ms
}

// CredibilityStateMsg is the server's snapshot of the sender's credibility
// standing: the live score, recent history, and any active suspension.
type CredibilityStateMsg struct {
	Type            string             `json:"type"`
	Score           float64            `json:"score"`
	History         []CredibilityEntry `json:"history"`
	RecentNegatives int                `json:"recent_negatives"` // negative actions in the last 24h
	Suspended       bool               `json:"suspended"`
	SuspendedFor    int                `json:"suspended_for,omitempty"` // seconds remaining
	Offenses        int                `json:"offenses,omitempty"`      // offenses in the escalation window
}

// SearchResultsMsg carries restaurant search results.
type SearchResultsMsg struct {
	Type    string      `json:"type"`
	Results interface{} `json:"results"`
}

// RateLimitedMsg is sent by the server when the client has been
// rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	Action     string `json:"action"`
	RetryAfter int    `json:"retry_after"`
}

// SuspendedMsg is sent by the server when the client is barred from
// matchmaking.
type SuspendedMsg struct {
	Type     string `json:"type"`
	Duration int    `json:"duration"` // seconds remaining
	Reason   string `json:"reason"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoinMatching:
		var m JoinMatchingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveRoom, TypeCancelMatching:
		var m LeaveRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomStatus:
		var m RoomStatusMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGroupStatus:
		var m GroupStatusMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeVote:
		var m VoteMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeConfirmRestaurant:
		var m ConfirmRestaurantMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveGroup:
		var m LeaveGroupMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCheckIn:
		var m CheckInMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCompleteMeetup:
		var m CompleteMeetupMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSubmitReview:
		var m SubmitReviewMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCredibilityStatus:
		var m CredibilityStatusMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSearchRestaurants:
		var m SearchRestaurantsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The
// payload should be one of the server message structs; this function
// marshals it to JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the
	// "type" field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
