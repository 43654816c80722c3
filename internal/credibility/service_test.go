package credibility

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feastfriends/feastfriends/internal/user"
)

type suspenderStub struct {
	escalated []string
	lifted    []string
}

func (s *suspenderStub) Escalate(ctx context.Context, userID, reason string) (time.Duration, error) {
	s.escalated = append(s.escalated, userID)
	return 15 * time.Minute, nil
}

func (s *suspenderStub) Lift(ctx context.Context, userID string) error {
	s.lifted = append(s.lifted, userID)
	return nil
}

// newTestUsers returns a user store over Redis DB 15, flushed. Tests that
// call this helper require a running Redis on localhost:6379.
func newTestUsers(t *testing.T) *user.Store {
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
	return user.NewStore(client)
}

func TestRecord_SuspendsBelowThresholdAndLiftsOnRecovery(t *testing.T) {
	users := newTestUsers(t)
	susp := &suspenderStub{}
	svc := NewService(users, nil, susp)
	ctx := context.Background()

	if err := users.Create(ctx, &user.User{ID: "alice"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := users.SetCredibility(ctx, "alice", 35); err != nil {
		t.Fatalf("set score: %v", err)
	}

	// 35 - 10 = 25, under the floor of 30.
	if err := svc.LateCancel(ctx, "alice", "r1"); err != nil {
		t.Fatalf("LateCancel() error: %v", err)
	}
	if len(susp.escalated) != 1 || susp.escalated[0] != "alice" {
		t.Fatalf("escalated = %v, want [alice]", susp.escalated)
	}
	u, _ := users.Get(ctx, "alice")
	if u.Credibility != 25 {
		t.Errorf("score = %v, want 25", u.Credibility)
	}

	// 25 + 5 = 30, back at the floor, which lifts the suspension.
	if err := svc.Completed(ctx, "alice", "g1"); err != nil {
		t.Fatalf("Completed() error: %v", err)
	}
	if len(susp.lifted) != 1 || susp.lifted[0] != "alice" {
		t.Errorf("lifted = %v, want [alice]", susp.lifted)
	}
	if len(susp.escalated) != 1 {
		t.Errorf("escalated = %v, want no further escalation", susp.escalated)
	}
}

func TestRecord_NegativeDeltaNeverLifts(t *testing.T) {
	users := newTestUsers(t)
	susp := &suspenderStub{}
	svc := NewService(users, nil, susp)
	ctx := context.Background()

	if err := users.Create(ctx, &user.User{ID: "bob"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	// 100 - 5 = 95, well above the floor and a negative delta.
	if err := svc.LeftEarly(ctx, "bob", "g1"); err != nil {
		t.Fatalf("LeftEarly() error: %v", err)
	}
	if len(susp.escalated) != 0 || len(susp.lifted) != 0 {
		t.Errorf("escalated = %v lifted = %v, want neither", susp.escalated, susp.lifted)
	}
}
