package credibility

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/feastfriends/feastfriends/internal/user"
)

// Suspender applies escalating matchmaking suspensions. Implemented by the
// suspension store.
type Suspender interface {
	Escalate(ctx context.Context, userID, reason string) (time.Duration, error)
	Lift(ctx context.Context, userID string) error
}

// Service applies credibility actions: it updates the live score in Redis,
// appends to the PostgreSQL log, and suspends users whose score falls below
// the threshold.
type Service struct {
	users       *user.Store
	log         *Store
	suspensions Suspender
}

// NewService wires the credibility service. suspensions may be nil, in
// which case low scores are logged but not acted on.
func NewService(users *user.Store, logStore *Store, suspensions Suspender) *Service {
	return &Service{users: users, log: logStore, suspensions: suspensions}
}

// Record applies an action to a user's credibility score. contextID is the
// room or group the action happened in, empty when not applicable.
func (s *Service) Record(ctx context.Context, userID string, action Action, contextID string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("credibility: user %s not found", userID)
	}

	delta, err := Delta(action)
	if err != nil {
		return err
	}
	score := Clamp(u.Credibility + delta)

	if err := s.users.SetCredibility(ctx, userID, score); err != nil {
		return err
	}

	if s.log != nil {
		err := s.log.Append(ctx, &Entry{
			UserID:    userID,
			Action:    action,
			Delta:     delta,
			Score:     score,
			ContextID: contextID,
		})
		if err != nil {
			// The live score already moved; losing one audit row is better
			// than failing the whole action.
			log.Printf("[credibility] append log %s: %v", userID, err)
		}
	}

	log.Printf("[credibility] %s: %s %+.0f -> %.0f", userID, action, delta, score)

	if s.suspensions != nil {
		if score < SuspendBelow {
			duration, err := s.suspensions.Escalate(ctx, userID, "credibility below threshold")
			if err != nil {
				log.Printf("[credibility] suspend %s: %v", userID, err)
			} else {
				log.Printf("[credibility] suspended %s for %s (score %.0f)", userID, duration, score)
			}
		} else if delta > 0 {
			// Every active suspension came from a sub-threshold score, so a
			// score back at or above the floor lifts it early.
			if err := s.suspensions.Lift(ctx, userID); err != nil {
				log.Printf("[credibility] lift %s: %v", userID, err)
			}
		}
	}

	return nil
}

// LateCancel records a late waiting-room cancellation.
func (s *Service) LateCancel(ctx context.Context, userID, roomID string) error {
	return s.Record(ctx, userID, ActionLateCancel, roomID)
}

// NoShow records a missed confirmed meetup.
func (s *Service) NoShow(ctx context.Context, userID, groupID string) error {
	return s.Record(ctx, userID, ActionNoShow, groupID)
}

// LeftEarly records leaving a dining group before it settled.
func (s *Service) LeftEarly(ctx context.Context, userID, groupID string) error {
	return s.Record(ctx, userID, ActionLeftGroupEarly, groupID)
}

// Completed records a finished meetup.
func (s *Service) Completed(ctx context.Context, userID, groupID string) error {
	return s.Record(ctx, userID, ActionCompletedMeal, groupID)
}

// Review records a positive or negative peer review after a meetup.
func (s *Service) Review(ctx context.Context, userID, groupID string, positive bool) error {
	action := ActionNegativeReview
	if positive {
		action = ActionPositiveReview
	}
	return s.Record(ctx, userID, action, groupID)
}
