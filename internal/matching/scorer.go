// Package matching implements the waiting-room matchmaking pipeline: the
// compatibility scorer, the room selector, join/leave orchestration driven
// by NATS requests, and the lifecycle sweeper that promotes or expires
// rooms and groups on a timer.
package matching

import (
	"github.com/feastfriends/feastfriends/internal/geo"
	"github.com/feastfriends/feastfriends/internal/user"
)

// Score weights for the room compatibility function.
const (
	cuisineWeight   = 2.0
	budgetWeight    = 3.0
	proximityWeight = 5.0

	// budgetTolerance is the fraction of the candidate's own budget within
	// which a member's budget counts as similar. Always relative to the
	// candidate, not the member.
	budgetTolerance = 0.3
)

// Score computes the compatibility between a candidate and a room's current
// members. Pure function: per member it awards +2 for each cuisine the two
// share (counted per member, not deduplicated across members), +3 when the
// budgets differ by less than 30% of the candidate's budget, and +5 when
// the great-circle distance is under both users' search radii. The room's
// mean member credibility is added once at the end.
//
// A member without a location contributes no proximity points but is not
// disqualifying. An empty member list scores 0; the selector never offers
// empty rooms, since a room emptied by departures is deleted outright.
func Score(candidate *user.User, members []*user.User) float64 {
	if len(members) == 0 {
		return 0
	}

	candidateCuisines := make(map[string]bool, len(candidate.Cuisines))
	for _, c := range candidate.Cuisines {
		candidateCuisines[c] = true
	}

	score := 0.0
	credibilitySum := 0.0

	for _, m := range members {
		for _, c := range m.Cuisines {
			if candidateCuisines[c] {
				score += cuisineWeight
			}
		}

		diff := candidate.Budget - m.Budget
		if diff < 0 {
			diff = -diff
		}
		if diff < budgetTolerance*candidate.Budget {
			score += budgetWeight
		}

		if candidate.HasLocation() && m.HasLocation() {
			limit := candidate.RadiusKm
			if m.RadiusKm < limit {
				limit = m.RadiusKm
			}
			if geo.HaversineKm(*candidate.Location, *m.Location) < limit {
				score += proximityWeight
			}
		}

		credibilitySum += m.Credibility
	}

	return score + credibilitySum/float64(len(members))
}
