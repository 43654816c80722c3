package matching

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feastfriends/feastfriends/internal/room"
	"github.com/feastfriends/feastfriends/internal/user"
)

// newTestStores returns user and room stores on Redis DB 15, flushed.
// Tests that call this helper require a running Redis on localhost:6379.
func newTestStores(t *testing.T) (*user.Store, *room.Store) {
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
	return user.NewStore(client), room.NewStore(client)
}

func seedUser(t *testing.T, users *user.Store, id string, cuisines []string, budget float64) {
	t.Helper()
	err := users.Create(context.Background(), &user.User{
		ID:       id,
		Cuisines: cuisines,
		Budget:   budget,
		RadiusKm: 5,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func seedRoom(t *testing.T, rooms *room.Store, id string, memberIDs []string) {
	t.Helper()
	ctx := context.Background()
	r := &room.Room{
		ID:         id,
		Deadline:   time.Now().Add(2 * time.Minute),
		MinMembers: 2,
		MaxMembers: 6,
	}
	if err := rooms.Create(ctx, r, memberIDs[0]); err != nil {
		t.Fatalf("seed room %s: %v", id, err)
	}
	for _, m := range memberIDs[1:] {
		if _, err := rooms.Join(ctx, id, m); err != nil {
			t.Fatalf("seed room %s member %s: %v", id, m, err)
		}
	}
}

func TestSelectRoom_PicksHighestScore(t *testing.T) {
	users, rooms := newTestStores(t)
	sel := NewSelector(rooms, users)
	ctx := context.Background()

	// Thai lovers in room a, mismatched tastes in room b.
	seedUser(t, users, "a1", []string{"thai"}, 30)
	seedUser(t, users, "a2", []string{"thai"}, 32)
	seedUser(t, users, "b1", []string{"french"}, 200)
	seedRoom(t, rooms, "room-a", []string{"a1", "a2"})
	seedRoom(t, rooms, "room-b", []string{"b1"})

	candidate := &user.User{ID: "cand", Cuisines: []string{"thai"}, Budget: 31, RadiusKm: 5}

	best, err := sel.SelectRoom(ctx, candidate)
	if err != nil {
		t.Fatalf("SelectRoom() error: %v", err)
	}
	if best == nil || best.ID != "room-a" {
		t.Fatalf("SelectRoom picked %v, want room-a", best)
	}
}

func TestSelectRoom_TieGoesToLowestRoomID(t *testing.T) {
	users, rooms := newTestStores(t)
	sel := NewSelector(rooms, users)

	// Identical members in both rooms: identical scores.
	for i := 1; i <= 2; i++ {
		id := fmt.Sprintf("u%d", i)
		seedUser(t, users, id, []string{"sushi"}, 40)
	}
	seedRoom(t, rooms, "room-b", []string{"u1"})
	seedRoom(t, rooms, "room-a", []string{"u2"})

	candidate := &user.User{ID: "cand", Cuisines: []string{"sushi"}, Budget: 40, RadiusKm: 5}

	best, err := sel.SelectRoom(context.Background(), candidate)
	if err != nil {
		t.Fatalf("SelectRoom() error: %v", err)
	}
	if best == nil || best.ID != "room-a" {
		t.Fatalf("tie should resolve to the lowest room ID, got %v", best)
	}
}

func TestSelectRoom_SkipsIneligibleRooms(t *testing.T) {
	users, rooms := newTestStores(t)
	sel := NewSelector(rooms, users)
	ctx := context.Background()

	seedUser(t, users, "m1", []string{"thai"}, 30)
	seedRoom(t, rooms, "room-a", []string{"m1"})

	// Candidate already in the only room: nothing to offer.
	member := &user.User{ID: "m1", Cuisines: []string{"thai"}, Budget: 30, RadiusKm: 5}
	best, err := sel.SelectRoom(ctx, member)
	if err != nil {
		t.Fatalf("SelectRoom() error: %v", err)
	}
	if best != nil {
		t.Errorf("member's own room should be skipped, got %v", best.ID)
	}

	// Matched rooms are not offered either.
	if _, err := rooms.Transition(ctx, "room-a", room.StatusWaiting, room.StatusMatched); err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	stranger := &user.User{ID: "cand", Cuisines: []string{"thai"}, Budget: 30, RadiusKm: 5}
	best, err = sel.SelectRoom(ctx, stranger)
	if err != nil {
		t.Fatalf("SelectRoom() error: %v", err)
	}
	if best != nil {
		t.Errorf("matched room should be skipped, got %v", best.ID)
	}
}

func TestSelectRoom_NoRooms(t *testing.T) {
	users, rooms := newTestStores(t)
	sel := NewSelector(rooms, users)

	candidate := &user.User{ID: "cand", Cuisines: []string{"thai"}, Budget: 30, RadiusKm: 5}
	best, err := sel.SelectRoom(context.Background(), candidate)
	if err != nil {
		t.Fatalf("SelectRoom() error: %v", err)
	}
	if best != nil {
		t.Errorf("no rooms should mean nil, got %v", best.ID)
	}
}
