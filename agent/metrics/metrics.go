package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_turns_processed_total",
			Help: "Total number of completed turns by acting agent and resulting status",
		},
		[]string{"agent", "status"},
	)

	TurnsNotFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loan_turns_not_found_total",
			Help: "Total number of turns addressed to an unknown application",
		},
	)

	IntentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_intent_transitions_total",
			Help: "Total number of status changes made by the intent router",
		},
		[]string{"rule", "from", "to"},
	)

	SlotsFilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_slots_filled_total",
			Help: "Total number of fields filled from free text",
		},
		[]string{"slot"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loan_handler_duration_seconds",
			Help:    "Duration of handler calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	HandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_handler_failures_total",
			Help: "Total number of failed or timed out handler calls",
		},
		[]string{"agent", "reason"},
	)

	UpdateKeysDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_update_keys_dropped_total",
			Help: "Total number of data update keys that were not applied",
		},
		[]string{"source"},
	)

	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_turn_sink_failures_total",
			Help: "Total number of turn records a sink failed to accept",
		},
		[]string{"sink"},
	)

	ActiveTurns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loan_turns_active",
			Help: "Number of turns currently in flight",
		},
	)

	LockEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loan_turn_lock_entries",
			Help: "Applications with a held or awaited turn lock",
		},
	)
)
