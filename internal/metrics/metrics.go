// Package metrics holds the Prometheus collectors of the budget service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "budgets"

var (
	// TransitionsTotal counts status transitions by entity, action and outcome.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "transitions_total",
			Help:      "Total number of status transitions attempted",
		},
		[]string{"entity", "to", "outcome"},
	)

	// ConflictsTotal counts optimistic-concurrency conflicts.
	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "conflicts_total",
			Help:      "Total number of conditional updates that lost a race",
		},
		[]string{"entity"},
	)

	// SimulationsTotal counts simulation runs by outcome.
	SimulationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Total number of forecast simulations",
		},
		[]string{"outcome"},
	)

	// AuthorizationsTotal counts payout authorizations by decision.
	AuthorizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "authorizations_total",
			Help:      "Total number of payout authorization decisions",
		},
		[]string{"allowed", "reason"},
	)

	// SpendRefreshDuration observes ledger aggregation latency.
	SpendRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "spend",
			Name:      "refresh_duration_seconds",
			Help:      "Spend refresh duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	// SnapshotsTotal counts snapshot writes by destination and outcome.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "snapshots_total",
			Help:      "Total number of JSONL snapshot writes",
		},
		[]string{"destination", "outcome"},
	)

	// EventsPublishedTotal counts bus publishes of committed audit events.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of audit events handed to the event bus",
		},
		[]string{"action", "outcome"},
	)

	// RequestDuration observes API request latency by transport and method.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport", "method", "code"},
	)
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// ObserveTransition records one transition attempt.
func ObserveTransition(entity, to, outcome string) {
	TransitionsTotal.WithLabelValues(entity, to, outcome).Inc()
}

// ObserveAuthorization records one payout decision.
func ObserveAuthorization(allowed bool, reason string) {
	AuthorizationsTotal.WithLabelValues(strconv.FormatBool(allowed), reason).Inc()
}

// ObserveEventPublish records one publish of an audit event.
func ObserveEventPublish(action string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	EventsPublishedTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveRequest records the latency of one API call.
func ObserveRequest(transport, method, code string, start time.Time) {
	RequestDuration.WithLabelValues(transport, method, code).Observe(time.Since(start).Seconds())
}
