package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feastfriends/feastfriends/internal/apperr"
	"github.com/feastfriends/feastfriends/internal/group"
	"github.com/feastfriends/feastfriends/internal/room"
	"github.com/feastfriends/feastfriends/internal/user"
)

// newMatchService returns a matching service over Redis DB 15, flushed,
// with no event transport. Tests that call this helper require a running
// Redis on localhost:6379.
func newMatchService(t *testing.T, cfg Config) (*Service, *user.Store, *room.Store, *group.Store) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	users := user.NewStore(client)
	rooms := room.NewStore(client)
	groups := group.NewStore(client)
	svc := NewService(cfg, users, rooms, groups, nil, nil, nil, nil)
	return svc, users, rooms, groups
}

func TestPromote_BelowMinimumFails(t *testing.T) {
	svc, users, rooms, _ := newMatchService(t, DefaultConfig())
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		if err := users.Create(ctx, &user.User{ID: id}); err != nil {
			t.Fatalf("create user %s: %v", id, err)
		}
	}
	r := &room.Room{
		ID:         "r1",
		Deadline:   time.Now().Add(2 * time.Minute),
		MinMembers: 3,
		MaxMembers: 5,
	}
	if err := rooms.Create(ctx, r, "u1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := rooms.Join(ctx, "r1", "u2"); err != nil {
		t.Fatalf("join: %v", err)
	}

	err := svc.Promote(ctx, "r1")
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("promoting a 2-member room with min 3 error = %v, want InvalidState", err)
	}

	got, _ := rooms.Get(ctx, "r1")
	if got.Status != room.StatusWaiting {
		t.Errorf("room status = %q after failed promotion, want waiting", got.Status)
	}
}

func TestJoin_FillingRoomPromotes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinMembers = 2
	cfg.MaxMembers = 2
	svc, users, rooms, groups := newMatchService(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		if err := users.Create(ctx, &user.User{ID: id}); err != nil {
			t.Fatalf("create user %s: %v", id, err)
		}
	}

	roomID, err := svc.Join(ctx, JoinRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("first Join() error: %v", err)
	}

	before := time.Now()
	if _, err := svc.Join(ctx, JoinRequest{UserID: "u2"}); err != nil {
		t.Fatalf("filling Join() error: %v", err)
	}

	// Both members now point at the same group, never the room.
	u1, _ := users.Get(ctx, "u1")
	u2, _ := users.Get(ctx, "u2")
	if u1.GroupID == "" || u1.GroupID != u2.GroupID {
		t.Fatalf("group pointers = %q / %q, want both set and equal", u1.GroupID, u2.GroupID)
	}
	if u1.RoomID != "" || u2.RoomID != "" {
		t.Errorf("room pointers = %q / %q, want cleared", u1.RoomID, u2.RoomID)
	}

	r, _ := rooms.Get(ctx, roomID)
	if r == nil || r.Status != room.StatusMatched {
		t.Errorf("room = %+v, want status matched", r)
	}

	g, err := groups.Get(ctx, u1.GroupID)
	if err != nil || g == nil {
		t.Fatalf("group %s not found: %v", u1.GroupID, err)
	}
	if g.Status != group.StatusVoting {
		t.Errorf("group status = %q, want voting", g.Status)
	}
	wantDeadline := before.Add(cfg.VotingTTL)
	if diff := g.Deadline.Sub(wantDeadline); diff < -10*time.Second || diff > 10*time.Second {
		t.Errorf("voting deadline = %s, want about %s after promotion", g.Deadline, cfg.VotingTTL)
	}
}

func TestSweep_ExpiresUnderfilledRoom(t *testing.T) {
	svc, users, rooms, _ := newMatchService(t, DefaultConfig())
	ctx := context.Background()

	members := []string{"u1", "u2", "u3"}
	for _, id := range members {
		if err := users.Create(ctx, &user.User{ID: id}); err != nil {
			t.Fatalf("create user %s: %v", id, err)
		}
	}
	r := &room.Room{
		ID:         "r1",
		Deadline:   time.Now().Add(-time.Second),
		MinMembers: 4,
		MaxMembers: 10,
	}
	if err := rooms.Create(ctx, r, "u1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, id := range members[1:] {
		if _, err := rooms.Join(ctx, "r1", id); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	for _, id := range members {
		if err := users.SetRoom(ctx, id, "r1"); err != nil {
			t.Fatalf("set pointer %s: %v", id, err)
		}
	}

	svc.Sweep(ctx)

	if got, _ := rooms.Get(ctx, "r1"); got != nil {
		t.Errorf("expired room still exists: %+v", got)
	}
	for _, id := range members {
		u, _ := users.Get(ctx, id)
		if !u.Unattached() {
			t.Errorf("%s still attached after expiry: room=%q group=%q", id, u.RoomID, u.GroupID)
		}
	}
}

func TestSweep_DoubleSweepPromotesOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinMembers = 2
	svc, users, rooms, groups := newMatchService(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		if err := users.Create(ctx, &user.User{ID: id}); err != nil {
			t.Fatalf("create user %s: %v", id, err)
		}
	}
	r := &room.Room{
		ID:         "r1",
		Deadline:   time.Now().Add(-time.Second),
		MinMembers: 2,
		MaxMembers: 10,
	}
	if err := rooms.Create(ctx, r, "u1"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := rooms.Join(ctx, "r1", "u2"); err != nil {
		t.Fatalf("join: %v", err)
	}
	for _, id := range []string{"u1", "u2"} {
		if err := users.SetRoom(ctx, id, "r1"); err != nil {
			t.Fatalf("set pointer %s: %v", id, err)
		}
	}

	svc.Sweep(ctx)
	svc.Sweep(ctx)

	ids, err := groups.VotingIDs(ctx)
	if err != nil {
		t.Fatalf("VotingIDs() error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("voting groups after double sweep = %d, want exactly 1", len(ids))
	}

	u1, _ := users.Get(ctx, "u1")
	if u1.GroupID != ids[0] {
		t.Errorf("u1 group pointer = %q, want %q", u1.GroupID, ids[0])
	}
}

func TestLeave_StaleRoomKeepsGroupPointer(t *testing.T) {
	svc, users, rooms, _ := newMatchService(t, DefaultConfig())
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		if err := users.Create(ctx, &user.User{ID: id}); err != nil {
			t.Fatalf("create user %s: %v", id, err)
		}
	}
	if err := users.SetGroup(ctx, "u1", "g9"); err != nil {
		t.Fatalf("set group pointer: %v", err)
	}
	r := &room.Room{
		ID:         "other",
		Deadline:   time.Now().Add(2 * time.Minute),
		MinMembers: 2,
		MaxMembers: 10,
	}
	if err := rooms.Create(ctx, r, "u2"); err != nil {
		t.Fatalf("create room: %v", err)
	}

	// Stale leave for a room the user is not in.
	if err := svc.Leave(ctx, LeaveRequest{UserID: "u1", RoomID: "other"}); err != nil {
		t.Fatalf("Leave() error: %v", err)
	}
	u1, _ := users.Get(ctx, "u1")
	if u1.GroupID != "g9" {
		t.Errorf("group pointer = %q after stale leave, want g9", u1.GroupID)
	}

	// Same for a room that no longer exists.
	if err := svc.Leave(ctx, LeaveRequest{UserID: "u1", RoomID: "ghost"}); err != nil {
		t.Fatalf("Leave() error: %v", err)
	}
	u1, _ = users.Get(ctx, "u1")
	if u1.GroupID != "g9" {
		t.Errorf("group pointer = %q after leaving a deleted room, want g9", u1.GroupID)
	}
}
