// Package metrics registers the Prometheus collectors of the quiz service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quiz"

var (
	// Submissions counts answer submissions by outcome
	// (correct, incorrect, replayed, invalid, rate_limited, not_found, conflict, error).
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answer_submissions_total",
		Help:      "Answer submissions by outcome.",
	}, []string{"outcome"})

	// CommitDuration observes the duration of the answer transaction.
	CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "answer_commit_duration_seconds",
		Help:      "Duration of the answer-submission transaction.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	// DecayEvents counts persisted inactivity decays.
	DecayEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decay_events_total",
		Help:      "Inactivity decays applied to progression state.",
	})

	// CacheLookups counts projection cache reads by view and result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Projection cache lookups by view and result.",
	}, []string{"view", "result"})

	// CacheErrors counts degraded fast-cache operations.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_errors_total",
		Help:      "Fast cache operations that failed and were degraded.",
	}, []string{"op"})

	// LeaderboardSubscribers tracks open leaderboard stream subscriptions.
	LeaderboardSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "leaderboard_subscribers",
		Help:      "Open leaderboard update subscriptions.",
	})
)
