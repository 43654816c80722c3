// Package metrics provides Prometheus instrumentation for the FeastFriends
// matchmaking backend. It exposes gauges for waiting-room and voting-group
// counts, counters for joins, promotions, expiries, and votes, and
// histograms for match scores and sweep latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feastfriends_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// WaitingRooms tracks the current number of open waiting rooms.
	WaitingRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feastfriends_waiting_rooms",
		Help: "Current number of open waiting rooms",
	})

	// VotingGroups tracks the current number of groups in the voting phase.
	VotingGroups = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feastfriends_voting_groups",
		Help: "Current number of dining groups in the voting phase",
	})

	// JoinsTotal counts matchmaking joins that landed a user in a room.
	JoinsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feastfriends_joins_total",
		Help: "Total number of successful matchmaking joins",
	})

	// RoomsCreatedTotal counts waiting rooms opened because no existing room
	// qualified.
	RoomsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feastfriends_rooms_created_total",
		Help: "Total number of waiting rooms created",
	})

	// PromotionsTotal counts rooms promoted into dining groups.
	PromotionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feastfriends_promotions_total",
		Help: "Total number of rooms promoted into dining groups",
	})

	// RoomsExpiredTotal counts rooms that hit their deadline under the
	// minimum member count and were dissolved.
	RoomsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feastfriends_rooms_expired_total",
		Help: "Total number of waiting rooms expired below minimum size",
	})

	// VotesTotal counts restaurant votes cast, labeled by outcome: "cast" or
	// "rejected".
	VotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feastfriends_votes_total",
		Help: "Total number of restaurant votes processed",
	}, []string{"outcome"}) // outcome = "cast", "rejected"

	// ConfirmationsTotal counts groups that confirmed a restaurant.
	ConfirmationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feastfriends_confirmations_total",
		Help: "Total number of groups that confirmed a restaurant",
	})

	// MatchScore records the compatibility score of accepted joins.
	MatchScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feastfriends_match_score",
		Help:    "Compatibility score of rooms selected for joining users",
		Buckets: []float64{50, 75, 90, 100, 110, 120, 135, 150, 175, 200},
	})

	// SweepDuration records how long each lifecycle sweep takes.
	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feastfriends_sweep_duration_seconds",
		Help:    "Duration of lifecycle sweeper passes in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		WaitingRooms,
		VotingGroups,
		JoinsTotal,
		RoomsCreatedTotal,
		PromotionsTotal,
		RoomsExpiredTotal,
		VotesTotal,
		ConfirmationsTotal,
		MatchScore,
		SweepDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
