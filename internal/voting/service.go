// Package voting implements the member-facing group operations: casting
// restaurant votes, confirming the majority winner, leaving a group, and
// completing a meetup.
package voting

import (
	"context"
	"log"

	"github.com/feastfriends/feastfriends/internal/apperr"
	"github.com/feastfriends/feastfriends/internal/group"
	"github.com/feastfriends/feastfriends/internal/matching"
	"github.com/feastfriends/feastfriends/internal/metrics"
	"github.com/feastfriends/feastfriends/internal/user"
)

// CredibilityRecorder records credibility-affecting group actions.
type CredibilityRecorder interface {
	LeftEarly(ctx context.Context, userID, groupID string) error
	Completed(ctx context.Context, userID, groupID string) error
	NoShow(ctx context.Context, userID, groupID string) error
}

// RestaurantNamer resolves a restaurant ID to its display name.
type RestaurantNamer interface {
	Name(ctx context.Context, restaurantID string) (string, error)
}

// Service handles group voting operations.
type Service struct {
	users       *user.Store
	groups      *group.Store
	events      *matching.Publisher
	restaurants RestaurantNamer
	credibility CredibilityRecorder
}

// NewService wires the voting service. restaurants and credibility may be
// nil, in which case name lookups and penalties are skipped.
func NewService(users *user.Store, groups *group.Store, events *matching.Publisher,
	restaurants RestaurantNamer, credibility CredibilityRecorder) *Service {

	return &Service{
		users:       users,
		groups:      groups,
		events:      events,
		restaurants: restaurants,
		credibility: credibility,
	}
}

// VoteResult reports the outcome of a cast vote: the updated tally and
// whether any restaurant has reached a majority. A majority is only
// reported, never acted on; confirmation stays a separate explicit
// operation.
type VoteResult struct {
	Tally           group.Tally
	Winner          string
	MajorityReached bool
}

// Vote casts (or replaces) a member's restaurant vote and fans the updated
// tally, with the majority state, out to the group.
func (s *Service) Vote(ctx context.Context, userID, groupID, restaurantID string) (*VoteResult, error) {
	code, err := s.groups.CastVote(ctx, groupID, userID, restaurantID)
	if err != nil {
		return nil, err
	}

	switch code {
	case group.VoteNotFound:
		metrics.VotesTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.NotFound("group %s not found", groupID)
	case group.VoteNotVoting:
		metrics.VotesTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.InvalidState("group %s is no longer voting", groupID)
	case group.VoteNotMember:
		metrics.VotesTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.Conflict("user %s is not a member of group %s", userID, groupID)
	}

	metrics.VotesTotal.WithLabelValues("cast").Inc()

	votes, err := s.groups.Votes(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.groups.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}

	tally := group.TallyVotes(votes)
	winner, reached := tally.Majority(len(members))

	s.events.Fanout(members, matching.Event{
		Type:            matching.EventVoteUpdate,
		GroupID:         groupID,
		UserID:          userID,
		Votes:           tally,
		Winner:          winner,
		MajorityReached: reached,
	})

	return &VoteResult{Tally: tally, Winner: winner, MajorityReached: reached}, nil
}

// Confirm locks in the current vote leader, provided a strict majority of
// members voted for it. Any member may confirm once the majority exists;
// the conditional transition makes a double confirm a no-op.
func (s *Service) Confirm(ctx context.Context, userID, groupID string) (string, error) {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return "", err
	}
	if g == nil {
		return "", apperr.NotFound("group %s not found", groupID)
	}
	if g.Status != group.StatusVoting {
		return "", apperr.InvalidState("group %s is %s, not voting", groupID, g.Status)
	}
	if !g.HasMember(userID) {
		return "", apperr.Conflict("user %s is not a member of group %s", userID, groupID)
	}

	votes, err := s.groups.Votes(ctx, groupID)
	if err != nil {
		return "", err
	}
	winner, reached := group.TallyVotes(votes).Majority(len(g.Members))
	if !reached {
		return "", apperr.InvalidState("group %s has no majority yet", groupID)
	}

	ok, err := s.groups.Transition(ctx, groupID, group.StatusVoting, group.StatusConfirmed)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.InvalidState("group %s was already settled", groupID)
	}

	var name string
	if s.restaurants != nil {
		name, err = s.restaurants.Name(ctx, winner)
		if err != nil {
			log.Printf("[voting] restaurant name %s: %v", winner, err)
		}
	}
	if err := s.groups.SetRestaurant(ctx, groupID, winner, name); err != nil {
		return "", err
	}

	s.events.Fanout(g.Members, matching.Event{
		Type:         matching.EventRestaurantSelected,
		GroupID:      groupID,
		Status:       group.StatusConfirmed,
		RestaurantID: winner,
		Restaurant:   name,
	})

	metrics.ConfirmationsTotal.Inc()
	log.Printf("[voting] group %s confirmed restaurant %s", groupID, winner)
	return winner, nil
}

// Leave removes a member from a group before it completes. The member's
// vote is withdrawn with them. Walking out on a group whose restaurant is
// already confirmed costs credibility; leaving during the voting phase does
// not. The group is deleted by the store when it empties.
func (s *Service) Leave(ctx context.Context, userID, groupID string) error {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return apperr.NotFound("group %s not found", groupID)
	}

	remaining, err := s.groups.RemoveMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if remaining < 0 {
		return apperr.Conflict("user %s is not a member of group %s", userID, groupID)
	}
	if err := s.users.ClearMembership(ctx, userID); err != nil {
		return err
	}

	if s.credibility != nil && g.Status == group.StatusConfirmed {
		if err := s.credibility.LeftEarly(ctx, userID, groupID); err != nil {
			log.Printf("[voting] left-early penalty %s: %v", userID, err)
		}
	}

	if remaining > 0 {
		members, err := s.groups.Members(ctx, groupID)
		if err == nil {
			s.events.Fanout(members, matching.Event{
				Type:        matching.EventMemberLeft,
				GroupID:     groupID,
				UserID:      userID,
				Members:     members,
				MemberCount: remaining,
				Status:      g.Status,
			})
		}
	}
	return nil
}

// CheckIn marks a member as arrived at a confirmed meetup. Arrivals feed
// the no-show accounting when the group completes.
func (s *Service) CheckIn(ctx context.Context, userID, groupID string) error {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return apperr.NotFound("group %s not found", groupID)
	}
	if g.Status != group.StatusConfirmed {
		return apperr.InvalidState("group %s is %s, not confirmed", groupID, g.Status)
	}
	if !g.HasMember(userID) {
		return apperr.Conflict("user %s is not a member of group %s", userID, groupID)
	}

	if err := s.groups.SetCheckIn(ctx, groupID, userID); err != nil {
		return err
	}
	log.Printf("[voting] user %s checked in to group %s", userID, groupID)
	return nil
}

// Complete marks a confirmed group's meetup as finished: members who showed
// up earn the completion credit, members who never checked in while others
// did are charged a no-show, and everyone is released back to matchmaking
// before the group is deleted. With no check-ins recorded at all, everyone
// keeps the credit.
func (s *Service) Complete(ctx context.Context, userID, groupID string) error {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return apperr.NotFound("group %s not found", groupID)
	}
	if g.Status != group.StatusConfirmed {
		return apperr.InvalidState("group %s is %s, not confirmed", groupID, g.Status)
	}
	if !g.HasMember(userID) {
		return apperr.Conflict("user %s is not a member of group %s", userID, groupID)
	}

	ok, err := s.groups.Transition(ctx, groupID, group.StatusConfirmed, group.StatusCompleted)
	if err != nil {
		return err
	}
	if !ok {
		return nil // another member completed it first
	}

	checkins, err := s.groups.CheckIns(ctx, groupID)
	if err != nil {
		log.Printf("[voting] load check-ins for %s: %v", groupID, err)
		checkins = nil
	}

	for _, m := range g.Members {
		if s.credibility != nil {
			if len(checkins) > 0 && checkins[m] == "" {
				if err := s.credibility.NoShow(ctx, m, groupID); err != nil {
					log.Printf("[voting] no-show penalty %s: %v", m, err)
				}
			} else if err := s.credibility.Completed(ctx, m, groupID); err != nil {
				log.Printf("[voting] completion credit %s: %v", m, err)
			}
		}
		if err := s.users.ClearMembership(ctx, m); err != nil {
			log.Printf("[voting] release %s from group %s: %v", m, groupID, err)
		}
	}

	s.events.Fanout(g.Members, matching.Event{
		Type:    matching.EventGroupClosed,
		GroupID: groupID,
		Reason:  "meetup completed",
	})

	if err := s.groups.Delete(ctx, groupID); err != nil {
		log.Printf("[voting] delete group %s: %v", groupID, err)
	}

	log.Printf("[voting] group %s completed (%d members)", groupID, len(g.Members))
	return nil
}
