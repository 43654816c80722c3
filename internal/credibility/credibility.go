// Package credibility tracks user reliability scores. Every score-affecting
// action applies a fixed delta, the running score is clamped to [0, 100],
// and each change is appended to a PostgreSQL audit log. Users whose score
// drops below the suspension threshold are barred from matchmaking with
// escalating durations.
package credibility

import "fmt"

// Score bounds and thresholds.
const (
	MinScore = 0.0
	MaxScore = 100.0

	// SuspendBelow is the score under which a user is automatically
	// suspended from matchmaking.
	SuspendBelow = 30.0
)

// Action is a credibility-affecting event type.
type Action string

// Recognised actions and their score deltas.
const (
	ActionNoShow         Action = "no_show"
	ActionLateCancel     Action = "late_cancel"
	ActionLeftGroupEarly Action = "left_group_early"
	ActionCompletedMeal  Action = "completed_meetup"
	ActionPositiveReview Action = "positive_review"
	ActionNegativeReview Action = "negative_review"
)

var deltas = map[Action]float64{
	ActionNoShow:         -15,
	ActionLateCancel:     -10,
	ActionLeftGroupEarly: -5,
	ActionCompletedMeal:  +5,
	ActionPositiveReview: +3,
	ActionNegativeReview: -8,
}

// Delta returns the score delta for an action, or an error for an
// unrecognised one.
func Delta(action Action) (float64, error) {
	d, ok := deltas[action]
	if !ok {
		return 0, fmt.Errorf("credibility: unknown action %q", action)
	}
	return d, nil
}

// Clamp bounds a score to [MinScore, MaxScore].
func Clamp(score float64) float64 {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Apply returns the new score after applying an action to the current one.
func Apply(current float64, action Action) (float64, error) {
	d, err := Delta(action)
	if err != nil {
		return current, err
	}
	return Clamp(current + d), nil
}
