package matching

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/feastfriends/feastfriends/internal/apperr"
	"github.com/feastfriends/feastfriends/internal/group"
	"github.com/feastfriends/feastfriends/internal/messaging"
	"github.com/feastfriends/feastfriends/internal/metrics"
	"github.com/feastfriends/feastfriends/internal/room"
	"github.com/feastfriends/feastfriends/internal/user"
)

// Config holds the matchmaking tunables.
type Config struct {
	RoomTTL          time.Duration // waiting-room lifetime from creation
	VotingTTL        time.Duration // group voting window from promotion
	MinMembers       int           // minimum members for promotion
	MaxMembers       int           // room capacity
	SweepInterval    time.Duration // lifecycle sweeper cadence
	LateCancelWindow time.Duration // leaving this close to the deadline is a late cancel
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RoomTTL:          2 * time.Minute,
		VotingTTL:        1 * time.Hour,
		MinMembers:       4,
		MaxMembers:       10,
		SweepInterval:    5 * time.Second,
		LateCancelWindow: 30 * time.Second,
	}
}

// JoinRequest is the NATS payload sent by the gateway when a user starts
// matchmaking. Preference fields are optional; when present they overwrite
// the stored preferences before matching, as the mobile client re-submits
// them on every search.
type JoinRequest struct {
	UserID   string   `json:"user_id"`
	Cuisines []string `json:"cuisines,omitempty"`
	Budget   *float64 `json:"budget,omitempty"`
	RadiusKm *float64 `json:"radius_km,omitempty"`
}

// LeaveRequest is the NATS payload sent by the gateway when a user exits
// their waiting room. RoomID is optional; when empty the user's own room
// pointer is used, which is how cancel_matching arrives.
type LeaveRequest struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id,omitempty"`
}

// CredibilityRecorder records credibility-affecting actions. Implemented by
// the credibility service; narrow so tests can stub it.
type CredibilityRecorder interface {
	LateCancel(ctx context.Context, userID, roomID string) error
}

// SuspensionChecker reports whether a user is currently barred from
// matchmaking.
type SuspensionChecker interface {
	IsSuspended(ctx context.Context, userID string) (bool, int, string, error)
}

// RestaurantNamer resolves a restaurant ID to its display name, used when
// the sweeper auto-confirms the vote leader at the voting deadline.
type RestaurantNamer interface {
	Name(ctx context.Context, restaurantID string) (string, error)
}

// Service is the matchmaking service: it owns room selection, join/leave
// orchestration, and promotion.
type Service struct {
	cfg         Config
	users       *user.Store
	rooms       *room.Store
	groups      *group.Store
	selector    *Selector
	events      *Publisher
	nats        *messaging.Client
	credibility CredibilityRecorder
	suspensions SuspensionChecker
	restaurants RestaurantNamer
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewService wires the matchmaking service. credibility, suspensions, and
// restaurants may be nil, in which case the corresponding lookups are
// skipped.
func NewService(cfg Config, users *user.Store, rooms *room.Store, groups *group.Store,
	nats *messaging.Client, credibility CredibilityRecorder, suspensions SuspensionChecker,
	restaurants RestaurantNamer) *Service {

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:         cfg,
		users:       users,
		rooms:       rooms,
		groups:      groups,
		selector:    NewSelector(rooms, users),
		events:      NewPublisher(nats),
		nats:        nats,
		credibility: credibility,
		suspensions: suspensions,
		restaurants: restaurants,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start subscribes to the join/leave subjects and starts the lifecycle
// sweeper.
func (s *Service) Start() error {
	if err := s.nats.SubscribeJoin(s.handleJoin); err != nil {
		return err
	}
	if err := s.nats.SubscribeLeave(s.handleLeave); err != nil {
		return err
	}

	go s.runSweeper()

	log.Println("[matcher] service started")
	return nil
}

// Stop gracefully shuts down the matching service.
func (s *Service) Stop() {
	s.cancel()
	log.Println("[matcher] service stopped")
}

func (s *Service) handleJoin(data []byte) {
	var req JoinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid join request: %v", err)
		return
	}

	roomID, err := s.Join(s.ctx, req)
	if err != nil {
		log.Printf("[matcher] join %s: %v", req.UserID, err)
		s.publishError(req.UserID, err)
		return
	}
	log.Printf("[matcher] user %s joined room %s", req.UserID, roomID)
}

func (s *Service) handleLeave(data []byte) {
	var req LeaveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid leave request: %v", err)
		return
	}

	if err := s.Leave(s.ctx, req); err != nil {
		log.Printf("[matcher] leave %s: %v", req.UserID, err)
		s.publishError(req.UserID, err)
		return
	}
	log.Printf("[matcher] user %s left room %s", req.UserID, req.RoomID)
}

// Join places a user into the best compatible waiting room, creating a new
// one when none qualifies, and promotes the room when the join fills it.
// Returns the room ID the user ended up in.
func (s *Service) Join(ctx context.Context, req JoinRequest) (string, error) {
	u, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", apperr.NotFound("user %s not found", req.UserID)
	}
	if !u.Unattached() {
		return "", apperr.Conflict("user %s is already in a room or group", req.UserID)
	}

	if s.suspensions != nil {
		suspended, remaining, reason, err := s.suspensions.IsSuspended(ctx, u.ID)
		if err != nil {
			log.Printf("[matcher] suspension check %s: %v (failing open)", u.ID, err)
		} else if suspended {
			return "", apperr.InvalidState("user %s is suspended for %ds: %s", u.ID, remaining, reason)
		}
	}

	if err := s.applyPreferences(ctx, u, req); err != nil {
		return "", err
	}

	r, err := s.selector.SelectRoom(ctx, u)
	if err != nil {
		return "", err
	}
	if r == nil {
		return s.createRoom(ctx, u)
	}

	code, err := s.rooms.Join(ctx, r.ID, u.ID)
	if err != nil {
		return "", err
	}

	switch code {
	case room.JoinDuplicate:
		return "", apperr.Conflict("user %s is already in room %s", u.ID, r.ID)
	case room.JoinNotFound, room.JoinNotWaiting, room.JoinFull:
		// The selected room filled or transitioned between scoring and the
		// guarded join. Fall back to a fresh room rather than retrying the
		// scan.
		return s.createRoom(ctx, u)
	}

	if err := s.users.SetRoom(ctx, u.ID, r.ID); err != nil {
		return "", err
	}

	members, err := s.rooms.Members(ctx, r.ID)
	if err != nil {
		members = append(r.Members, u.ID)
	}
	s.events.Fanout(members, Event{
		Type:        EventMemberJoined,
		RoomID:      r.ID,
		UserID:      u.ID,
		Members:     members,
		MemberCount: len(members),
		MaxMembers:  r.MaxMembers,
		Status:      room.StatusWaiting,
		Deadline:    r.Deadline.UnixMilli(),
	})

	metrics.JoinsTotal.Inc()

	if code == room.JoinPromote {
		if err := s.Promote(ctx, r.ID); err != nil {
			return "", err
		}
	}

	return r.ID, nil
}

// createRoom opens a fresh waiting room with the user as first member.
func (s *Service) createRoom(ctx context.Context, u *user.User) (string, error) {
	r := &room.Room{
		ID:         uuid.New().String(),
		Deadline:   time.Now().Add(s.cfg.RoomTTL),
		MinMembers: s.cfg.MinMembers,
		MaxMembers: s.cfg.MaxMembers,
	}
	if err := s.rooms.Create(ctx, r, u.ID); err != nil {
		return "", err
	}
	if err := s.users.SetRoom(ctx, u.ID, r.ID); err != nil {
		return "", err
	}

	s.events.Fanout([]string{u.ID}, Event{
		Type:        EventRoomUpdate,
		RoomID:      r.ID,
		Members:     []string{u.ID},
		MemberCount: 1,
		MaxMembers:  r.MaxMembers,
		Status:      room.StatusWaiting,
		Deadline:    r.Deadline.UnixMilli(),
	})

	metrics.JoinsTotal.Inc()
	metrics.RoomsCreatedTotal.Inc()
	log.Printf("[matcher] created room %s for user %s", r.ID, u.ID)
	return r.ID, nil
}

// Leave removes a user from their waiting room. The room is deleted by the
// store when it empties; no promotion check runs on departure. Leaving
// inside the late-cancel window costs credibility.
func (s *Service) Leave(ctx context.Context, req LeaveRequest) error {
	u, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return err
	}
	if u == nil {
		return apperr.NotFound("user %s not found", req.UserID)
	}

	roomID := req.RoomID
	if roomID == "" {
		roomID = u.RoomID
	}
	if roomID == "" {
		return nil // nothing to leave
	}

	r, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if r == nil {
		// Room already gone (expired or promoted); drop the pointer only
		// when it still references this room. A group pointer or a pointer
		// at another room is left alone.
		if u.RoomID == roomID {
			return s.users.ClearMembership(ctx, u.ID)
		}
		return nil
	}

	remaining, err := s.rooms.Leave(ctx, roomID, u.ID)
	if err != nil {
		return err
	}
	if remaining < 0 {
		// Not a member. Clear the pointer only if it stale-references this
		// room; a stale leave for an old room must never wipe a live group
		// pointer.
		if u.RoomID == roomID {
			return s.users.ClearMembership(ctx, u.ID)
		}
		return nil
	}
	if u.RoomID == roomID {
		if err := s.users.ClearMembership(ctx, u.ID); err != nil {
			return err
		}
	}

	if s.credibility != nil && r.Status == room.StatusWaiting &&
		time.Until(r.Deadline) < s.cfg.LateCancelWindow {
		if err := s.credibility.LateCancel(ctx, u.ID, r.ID); err != nil {
			log.Printf("[matcher] late cancel penalty %s: %v", u.ID, err)
		}
	}

	if remaining > 0 {
		members, err := s.rooms.Members(ctx, roomID)
		if err == nil {
			s.events.Fanout(members, Event{
				Type:        EventMemberLeft,
				RoomID:      roomID,
				UserID:      u.ID,
				Members:     members,
				MemberCount: remaining,
				MaxMembers:  r.MaxMembers,
				Status:      r.Status,
				Deadline:    r.Deadline.UnixMilli(),
			})
		}
	}
	return nil
}

// Promote transitions a waiting room into a voting group: the room becomes
// matched, a group is created with the room's members and a fresh voting
// deadline, and every member's pointer moves from room to group.
//
// The waiting->matched transition is conditional, so concurrent promotion
// attempts (a filling join racing the sweeper) collapse into one. Member
// pointer updates are sequential per-entity writes; the sweeper's
// reconciliation pass repairs any member left behind by a partial failure.
func (s *Service) Promote(ctx context.Context, roomID string) error {
	r, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if r == nil {
		return apperr.NotFound("room %s not found", roomID)
	}
	if r.Status != room.StatusWaiting {
		return apperr.InvalidState("room %s is %s, not waiting", roomID, r.Status)
	}
	if !r.Promotable() {
		return apperr.InvalidState("room %s has %d members, needs %d", roomID, len(r.Members), r.MinMembers)
	}

	ok, err := s.rooms.Transition(ctx, roomID, room.StatusWaiting, room.StatusMatched)
	if err != nil {
		return err
	}
	if !ok {
		return nil // another path promoted or expired it first
	}

	g := &group.Group{
		ID:       uuid.New().String(),
		RoomID:   roomID,
		Deadline: time.Now().Add(s.cfg.VotingTTL),
	}
	if err := s.groups.Create(ctx, g, r.Members); err != nil {
		return err
	}

	for _, m := range r.Members {
		if err := s.users.SetGroup(ctx, m, g.ID); err != nil {
			log.Printf("[matcher] promote %s: move pointer for %s: %v (reconciler will repair)", roomID, m, err)
		}
	}

	s.events.Fanout(r.Members, Event{
		Type:        EventGroupReady,
		RoomID:      roomID,
		GroupID:     g.ID,
		Members:     r.Members,
		MemberCount: len(r.Members),
		Status:      group.StatusVoting,
		Deadline:    g.Deadline.UnixMilli(),
	})

	metrics.PromotionsTotal.Inc()
	log.Printf("[matcher] promoted room %s to group %s (%d members)", roomID, g.ID, len(r.Members))
	return nil
}

func (s *Service) publishError(userID string, err error) {
	var reason string
	var e *apperr.Error
	if errors.As(err, &e) {
		reason = e.Message
	} else {
		reason = "internal error"
	}
	s.events.Fanout([]string{userID}, Event{
		Type:   EventMatchError,
		Reason: reason,
	})
}

func (s *Service) applyPreferences(ctx context.Context, u *user.User, req JoinRequest) error {
	if req.Cuisines == nil && req.Budget == nil && req.RadiusKm == nil {
		return nil
	}
	if req.Cuisines != nil {
		u.Cuisines = req.Cuisines
	}
	if req.Budget != nil {
		u.Budget = *req.Budget
	}
	if req.RadiusKm != nil {
		u.RadiusKm = *req.RadiusKm
	}
	return s.users.UpdatePreferences(ctx, u.ID, user.Preferences{
		Cuisines: u.Cuisines,
		Budget:   u.Budget,
		RadiusKm: u.RadiusKm,
	})
}
