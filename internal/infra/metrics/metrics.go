// Package metrics provides Prometheus metrics for the willpower engine:
// point grants, challenge transitions, buddy settlement, nudges, store
// conflicts and API rate limiting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Points ─────────────────────────────────────────────────────────────────

// PointsAwarded tracks willpower points granted by action.
var PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "points_awarded_total",
	Help:      "Total willpower points granted.",
}, []string{"action"})

// PointsReversed tracks points removed by challenge deletion.
var PointsReversed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "points_reversed_total",
	Help:      "Total willpower points removed by challenge deletion.",
})

// LevelUps counts level-up events.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "level_ups_total",
	Help:      "Total level-up events.",
})

// TierUps counts streak tier-up events.
var TierUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "tier_ups_total",
	Help:      "Total streak tier-up events.",
})

// ─── Challenges ─────────────────────────────────────────────────────────────

// ChallengeTransitions counts challenge state changes by type and new status.
var ChallengeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "challenge_transitions_total",
	Help:      "Challenge lifecycle transitions.",
}, []string{"type", "status"})

// MilestoneCheckIns counts milestone check-ins by outcome.
var MilestoneCheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "milestone_checkins_total",
	Help:      "Milestone check-ins.",
}, []string{"succeeded"})

// ─── Buddies ────────────────────────────────────────────────────────────────

// BuddyTransitions counts buddy challenge state changes.
var BuddyTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "buddy_transitions_total",
	Help:      "Buddy challenge lifecycle transitions.",
}, []string{"status"})

// DuoStreakIncrements counts duo streak increments.
var DuoStreakIncrements = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "duo_streak_increments_total",
	Help:      "Total duo streak increments.",
})

// Nudges counts nudge attempts by result (sent, already_nudged).
var Nudges = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "nudges_total",
	Help:      "Buddy nudge attempts.",
}, []string{"result"})

// ─── Infrastructure ─────────────────────────────────────────────────────────

// StoreConflicts counts optimistic-concurrency conflicts by collection.
var StoreConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "store_conflicts_total",
	Help:      "Optimistic write conflicts against the document store.",
}, []string{"collection"})

// RateLimited counts API requests rejected by the per-user rate limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "api_rate_limited_total",
	Help:      "API requests rejected by the rate limiter.",
})

// APILatency tracks API request duration by route pattern.
var APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "willpower",
	Name:      "api_request_duration_seconds",
	Help:      "API request duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
}, []string{"route", "method"})

// ObserveAward records one committed point grant.
func ObserveAward(action string, points int64, levelUp, tierUp bool) {
	PointsAwarded.WithLabelValues(action).Add(float64(points))
	if levelUp {
		LevelUps.Inc()
	}
	if tierUp {
		TierUps.Inc()
	}
}

// PushDeliveries counts push attempts by result (sent, failed, circuit_open).
var PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "willpower",
	Name:      "push_deliveries_total",
	Help:      "Push notification delivery attempts.",
}, []string{"result"})
