package matching

import (
	"context"
	"log"
	"time"

	"github.com/feastfriends/feastfriends/internal/group"
	"github.com/feastfriends/feastfriends/internal/metrics"
	"github.com/feastfriends/feastfriends/internal/room"
)

// runSweeper drives the lifecycle timer: rooms whose deadline passed are
// promoted or expired, voting groups whose deadline passed are confirmed or
// disbanded, and member pointers orphaned by a partial promotion are
// repaired.
func (s *Service) runSweeper() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Println("[matcher] sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(s.ctx)
		}
	}
}

// Sweep runs one full pass: due rooms, due groups, then reconciliation.
// Exported so tests can drive the sweeper without the ticker.
func (s *Service) Sweep(ctx context.Context) {
	start := time.Now()

	s.sweepRooms(ctx)
	s.sweepGroups(ctx)
	s.reconcile(ctx)
	s.updateGauges(ctx)

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
}

// sweepRooms settles every waiting room whose deadline has passed: rooms at
// or above the minimum size promote, the rest expire and release their
// members.
func (s *Service) sweepRooms(ctx context.Context) {
	ids, err := s.rooms.DueIDs(ctx, time.Now())
	if err != nil {
		log.Printf("[matcher] sweep: list due rooms: %v", err)
		return
	}

	for _, id := range ids {
		r, err := s.rooms.Get(ctx, id)
		if err != nil {
			log.Printf("[matcher] sweep: load room %s: %v", id, err)
			continue
		}
		if r == nil || r.Status != room.StatusWaiting {
			// Hash gone or already transitioned; drop the stale index entry.
			if err := s.rooms.Unindex(ctx, id); err != nil {
				log.Printf("[matcher] sweep: unindex room %s: %v", id, err)
			}
			continue
		}

		if r.Promotable() {
			if err := s.Promote(ctx, id); err != nil {
				log.Printf("[matcher] sweep: promote room %s: %v", id, err)
			}
			continue
		}

		s.expireRoom(ctx, r)
	}
}

// expireRoom dissolves an under-filled room at its deadline. Expiry carries
// no credibility penalty; the room simply did not fill.
func (s *Service) expireRoom(ctx context.Context, r *room.Room) {
	ok, err := s.rooms.Transition(ctx, r.ID, room.StatusWaiting, room.StatusExpired)
	if err != nil {
		log.Printf("[matcher] sweep: expire room %s: %v", r.ID, err)
		return
	}
	if !ok {
		return // promoted or expired by a concurrent pass
	}

	for _, m := range r.Members {
		if err := s.users.ClearMembership(ctx, m); err != nil {
			log.Printf("[matcher] sweep: release %s from room %s: %v", m, r.ID, err)
		}
	}

	s.events.Fanout(r.Members, Event{
		Type:   EventRoomExpired,
		RoomID: r.ID,
		Status: room.StatusExpired,
		Reason: "not enough members before the deadline",
	})

	if err := s.rooms.Delete(ctx, r.ID); err != nil {
		log.Printf("[matcher] sweep: delete room %s: %v", r.ID, err)
	}

	metrics.RoomsExpiredTotal.Inc()
	log.Printf("[matcher] expired room %s (%d members)", r.ID, len(r.Members))
}

// sweepGroups settles every voting group whose deadline has passed: with at
// least one vote the current leader is confirmed, otherwise the group
// disbands without a restaurant.
func (s *Service) sweepGroups(ctx context.Context) {
	ids, err := s.groups.DueIDs(ctx, time.Now())
	if err != nil {
		log.Printf("[matcher] sweep: list due groups: %v", err)
		return
	}

	for _, id := range ids {
		g, err := s.groups.Get(ctx, id)
		if err != nil {
			log.Printf("[matcher] sweep: load group %s: %v", id, err)
			continue
		}
		if g == nil || g.Status != group.StatusVoting {
			continue
		}

		votes, err := s.groups.Votes(ctx, id)
		if err != nil {
			log.Printf("[matcher] sweep: load votes for %s: %v", id, err)
			continue
		}

		if len(votes) == 0 {
			s.disbandGroup(ctx, g, "voting closed with no votes")
			continue
		}

		winner := group.TallyVotes(votes).Leader()
		if err := s.confirmGroup(ctx, g, winner); err != nil {
			log.Printf("[matcher] sweep: confirm group %s: %v", id, err)
		}
	}
}

// confirmGroup locks in the winning restaurant at the voting deadline. The
// voting->confirmed transition is conditional so an explicit member
// confirmation racing the sweeper settles the group exactly once.
func (s *Service) confirmGroup(ctx context.Context, g *group.Group, restaurantID string) error {
	ok, err := s.groups.Transition(ctx, g.ID, group.StatusVoting, group.StatusConfirmed)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var name string
	if s.restaurants != nil {
		name, err = s.restaurants.Name(ctx, restaurantID)
		if err != nil {
			log.Printf("[matcher] sweep: restaurant name %s: %v", restaurantID, err)
		}
	}
	if err := s.groups.SetRestaurant(ctx, g.ID, restaurantID, name); err != nil {
		return err
	}

	s.events.Fanout(g.Members, Event{
		Type:         EventRestaurantSelected,
		GroupID:      g.ID,
		Status:       group.StatusConfirmed,
		RestaurantID: restaurantID,
		Restaurant:   name,
	})

	metrics.ConfirmationsTotal.Inc()
	log.Printf("[matcher] confirmed group %s at restaurant %s", g.ID, restaurantID)
	return nil
}

// disbandGroup closes a group that failed to pick a restaurant, releasing
// every member back to matchmaking.
func (s *Service) disbandGroup(ctx context.Context, g *group.Group, reason string) {
	ok, err := s.groups.Transition(ctx, g.ID, group.StatusVoting, group.StatusCompleted)
	if err != nil {
		log.Printf("[matcher] sweep: disband group %s: %v", g.ID, err)
		return
	}
	if !ok {
		return
	}

	for _, m := range g.Members {
		if err := s.users.ClearMembership(ctx, m); err != nil {
			log.Printf("[matcher] sweep: release %s from group %s: %v", m, g.ID, err)
		}
	}

	s.events.Fanout(g.Members, Event{
		Type:    EventGroupClosed,
		GroupID: g.ID,
		Reason:  reason,
	})

	if err := s.groups.Delete(ctx, g.ID); err != nil {
		log.Printf("[matcher] sweep: delete group %s: %v", g.ID, err)
	}

	log.Printf("[matcher] disbanded group %s: %s", g.ID, reason)
}

// reconcile repairs member pointers that a partial promotion left behind:
// every member of a voting group must point at that group, not at the
// matched room it came from.
func (s *Service) reconcile(ctx context.Context) {
	ids, err := s.groups.VotingIDs(ctx)
	if err != nil {
		log.Printf("[matcher] sweep: list voting groups: %v", err)
		return
	}

	for _, id := range ids {
		g, err := s.groups.Get(ctx, id)
		if err != nil || g == nil {
			continue
		}

		members, err := s.users.GetMany(ctx, g.Members)
		if err != nil {
			continue
		}
		for _, u := range members {
			if u == nil || u.GroupID == g.ID {
				continue
			}
			if err := s.users.SetGroup(ctx, u.ID, g.ID); err != nil {
				log.Printf("[matcher] sweep: repair pointer %s -> group %s: %v", u.ID, g.ID, err)
			} else {
				log.Printf("[matcher] sweep: repaired pointer %s -> group %s", u.ID, g.ID)
			}
		}
	}
}

func (s *Service) updateGauges(ctx context.Context) {
	if rooms, err := s.rooms.WaitingIDs(ctx); err == nil {
		metrics.WaitingRooms.Set(float64(len(rooms)))
	}
	if groups, err := s.groups.VotingIDs(ctx); err == nil {
		metrics.VotingGroups.Set(float64(len(groups)))
	}
}
