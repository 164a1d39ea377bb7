// Package metrics exposes Prometheus instrumentation for the score engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts successfully applied score events by type.
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scored",
		Name:      "events_applied_total",
		Help:      "Score events applied, by event type.",
	}, []string{"event_type"})

	// ApplyConflicts counts optimistic-concurrency conflicts (including ones
	// later resolved by retry).
	ApplyConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scored",
		Name:      "apply_conflicts_total",
		Help:      "Snapshot version conflicts during event application.",
	})

	// RetriesExhausted counts applies surfaced to the caller after the retry
	// budget ran out.
	RetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scored",
		Name:      "apply_retries_exhausted_total",
		Help:      "Event applications abandoned after exhausting conflict retries.",
	})

	// UnknownEvents counts rejected applies for unregistered event types.
	UnknownEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scored",
		Name:      "unknown_event_types_total",
		Help:      "Apply requests rejected for unknown event type ids.",
	})

	// ApplyLatency tracks end-to-end apply duration in seconds.
	ApplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scored",
		Name:      "apply_duration_seconds",
		Help:      "Latency of ApplyEvent including conflict retries.",
		Buckets:   prometheus.DefBuckets,
	})

	// BadgePromotions counts tier promotions by new badge.
	BadgePromotions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scored",
		Name:      "badge_promotions_total",
		Help:      "Badge tier promotions, by new tier.",
	}, []string{"badge"})
)
