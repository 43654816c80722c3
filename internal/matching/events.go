package matching

import (
	"encoding/json"
	"log"
	"time"

	"github.com/feastfriends/feastfriends/internal/messaging"
)

// Event types fanned out to group and room members over
// user.events.<user_id>.
const (
	EventRoomUpdate         = "room_update"
	EventMemberJoined       = "member_joined"
	EventMemberLeft         = "member_left"
	EventGroupReady         = "group_ready"
	EventRoomExpired        = "room_expired"
	EventVoteUpdate         = "vote_update"
	EventRestaurantSelected = "restaurant_selected"
	EventGroupClosed        = "group_closed"
	EventMatchError         = "match_error"
)

// Event is the payload published to each affected member when room or group
// state changes. Fields are populated per event type; zero values are
// omitted on the wire.
type Event struct {
	Type            string         `json:"type"`
	RoomID          string         `json:"room_id,omitempty"`
	GroupID         string         `json:"group_id,omitempty"`
	UserID          string         `json:"user_id,omitempty"` // the joining/leaving member
	Members         []string       `json:"members,omitempty"`
	MemberCount     int            `json:"member_count,omitempty"`
	MaxMembers      int            `json:"max_members,omitempty"`
	Status          string         `json:"status,omitempty"`
	Deadline        int64          `json:"deadline,omitempty"` // unix ms
	Votes           map[string]int `json:"votes,omitempty"`
	Winner          string         `json:"winner,omitempty"` // the majority pick, when one exists
	MajorityReached bool           `json:"majority_reached,omitempty"`
	RestaurantID    string         `json:"restaurant_id,omitempty"`
	Restaurant      string         `json:"restaurant,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Ts              int64          `json:"ts"`
}

// Publisher fans events out to every affected member's subject.
type Publisher struct {
	nats *messaging.Client
}

// NewPublisher creates an event publisher over the given NATS client.
func NewPublisher(nats *messaging.Client) *Publisher {
	return &Publisher{nats: nats}
}

// Fanout publishes the event to each member's user.events subject. Publish
// failures are logged and skipped; event delivery is best effort. A
// publisher without a NATS client drops events silently, which lets the
// services run against the stores alone.
func (p *Publisher) Fanout(members []string, ev Event) {
	if p == nil || p.nats == nil {
		return
	}
	ev.Ts = time.Now().Unix()
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[events] marshal %s: %v", ev.Type, err)
		return
	}
	for _, userID := range members {
		if err := p.nats.PublishUserEvent(userID, data); err != nil {
			log.Printf("[events] publish %s to %s: %v", ev.Type, userID, err)
		}
	}
}
