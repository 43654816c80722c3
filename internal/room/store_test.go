package room

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Store on Redis DB 15 and flushes it. Tests that
// call this helper require a running Redis on localhost:6379.
func newTestStore(t *testing.T) *Store {
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
	return NewStore(client)
}

func testRoom(id string, max int) *Room {
	return &Room{
		ID:         id,
		Deadline:   time.Now().Add(2 * time.Minute),
		MinMembers: 2,
		MaxMembers: max,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRoom("r1", 4), "alice"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	r, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if r == nil {
		t.Fatal("Get() returned nil for existing room")
	}
	if r.Status != StatusWaiting {
		t.Errorf("status = %q, want waiting", r.Status)
	}
	if len(r.Members) != 1 || r.Members[0] != "alice" {
		t.Errorf("members = %v, want [alice]", r.Members)
	}
	if r.MaxMembers != 4 {
		t.Errorf("max_members = %d, want 4", r.MaxMembers)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("Get(missing) error: %v", err)
	}
	if missing != nil {
		t.Error("Get(missing) should return nil")
	}
}

func TestJoin_CapacityGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRoom("r1", 3), "alice"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	code, err := store.Join(ctx, "r1", "bob")
	if err != nil || code != JoinOK {
		t.Fatalf("Join(bob) = (%d, %v), want (JoinOK, nil)", code, err)
	}

	// Third member fills the room: the script reports promote-worthy.
	code, err = store.Join(ctx, "r1", "carol")
	if err != nil || code != JoinPromote {
		t.Fatalf("Join(carol) = (%d, %v), want (JoinPromote, nil)", code, err)
	}

	code, err = store.Join(ctx, "r1", "dave")
	if err != nil || code != JoinFull {
		t.Fatalf("Join(dave) = (%d, %v), want (JoinFull, nil)", code, err)
	}

	members, _ := store.Members(ctx, "r1")
	if len(members) != 3 {
		t.Errorf("member count = %d, want 3", len(members))
	}
}

func TestJoin_DuplicateAndMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRoom("r1", 4), "alice"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if code, _ := store.Join(ctx, "r1", "alice"); code != JoinDuplicate {
		t.Errorf("duplicate join = %d, want JoinDuplicate", code)
	}
	if code, _ := store.Join(ctx, "ghost", "alice"); code != JoinNotFound {
		t.Errorf("missing room join = %d, want JoinNotFound", code)
	}
}

func TestJoin_NotWaiting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRoom("r1", 4), "alice"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := store.Transition(ctx, "r1", StatusWaiting, StatusMatched); err != nil {
		t.Fatalf("Transition() error: %v", err)
	}

	if code, _ := store.Join(ctx, "r1", "bob"); code != JoinNotWaiting {
		t.Errorf("join matched room = %d, want JoinNotWaiting", code)
	}
}

func TestLeave_DeletesEmptyRoom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRoom("r1", 4), "alice"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := store.Join(ctx, "r1", "bob"); err != nil {
		t.Fatalf("Join() error: %v", err)
	}

	remaining, err := store.Leave(ctx, "r1", "alice")
	if err != nil || remaining != 1 {
		t.Fatalf("Leave(alice) = (%d, %v), want (1, nil)", remaining, err)
	}

	// Not a member anymore.
	if remaining, _ := store.Leave(ctx, "r1", "alice"); remaining != -1 {
		t.Errorf("Leave(alice) again = %d, want -1", remaining)
	}

	remaining, err = store.Leave(ctx, "r1", "bob")
	if err != nil || remaining != 0 {
		t.Fatalf("Leave(bob) = (%d, %v), want (0, nil)", remaining, err)
	}

	r, _ := store.Get(ctx, "r1")
	if r != nil {
		t.Error("room should be deleted when the last member leaves")
	}
	ids, _ := store.WaitingIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("waiting index should be empty, got %v", ids)
	}
}

func TestTransition_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRoom("r1", 4), "alice"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	ok, err := store.Transition(ctx, "r1", StatusWaiting, StatusMatched)
	if err != nil || !ok {
		t.Fatalf("first Transition = (%v, %v), want (true, nil)", ok, err)
	}

	// Second attempt must not re-apply.
	ok, err = store.Transition(ctx, "r1", StatusWaiting, StatusMatched)
	if err != nil || ok {
		t.Fatalf("second Transition = (%v, %v), want (false, nil)", ok, err)
	}

	ids, _ := store.WaitingIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("matched room should leave the waiting index, got %v", ids)
	}
}

func TestDueIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	past := testRoom("past", 4)
	past.Deadline = time.Now().Add(-time.Minute)
	future := testRoom("future", 4)

	if err := store.Create(ctx, past, "alice"); err != nil {
		t.Fatalf("Create(past) error: %v", err)
	}
	if err := store.Create(ctx, future, "bob"); err != nil {
		t.Fatalf("Create(future) error: %v", err)
	}

	due, err := store.DueIDs(ctx, time.Now())
	if err != nil {
		t.Fatalf("DueIDs() error: %v", err)
	}
	if len(due) != 1 || due[0] != "past" {
		t.Errorf("DueIDs = %v, want [past]", due)
	}
}
