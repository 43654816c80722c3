package matching

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/feastfriends/feastfriends/internal/metrics"
	"github.com/feastfriends/feastfriends/internal/room"
	"github.com/feastfriends/feastfriends/internal/user"
)

// Selector picks the best open waiting room for a user, or reports that a
// new room should be created.
type Selector struct {
	rooms *room.Store
	users *user.Store
}

// NewSelector creates a Selector over the given stores.
func NewSelector(rooms *room.Store, users *user.Store) *Selector {
	return &Selector{rooms: rooms, users: users}
}

// SelectRoom scores every eligible waiting room for the user and returns
// the best one, or nil when no room qualifies and the caller should create
// one. Eligible means: status waiting, deadline in the future, the user not
// already a member, and below max capacity.
//
// Candidates are scanned in ascending room-ID order with a strict
// greater-than comparison, so equal scores deterministically resolve to the
// lowest room ID. The scan is O(rooms x members); room counts are expected
// to stay small.
func (sel *Selector) SelectRoom(ctx context.Context, u *user.User) (*room.Room, error) {
	ids, err := sel.rooms.WaitingIDs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	now := time.Now()

	var (
		best      *room.Room
		bestScore float64
	)

	for _, id := range ids {
		r, err := sel.rooms.Get(ctx, id)
		if err != nil {
			log.Printf("[matcher] selector: load room %s: %v", id, err)
			continue
		}
		if r == nil || r.Status != room.StatusWaiting {
			continue // stale index entry, sweeper will clear it
		}
		if !now.Before(r.Deadline) || r.Full() || r.HasMember(u.ID) {
			continue
		}

		members, err := sel.users.GetMany(ctx, r.Members)
		if err != nil {
			log.Printf("[matcher] selector: load members of %s: %v", id, err)
			continue
		}

		score := Score(u, members)
		if best == nil || score > bestScore {
			best, bestScore = r, score
		}
	}

	if best != nil {
		metrics.MatchScore.Observe(bestScore)
		log.Printf("[matcher] selected room %s for user %s (score=%.1f)", best.ID, u.ID, bestScore)
	}
	return best, nil
}
