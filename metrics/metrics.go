// Package metrics exposes Prometheus instrumentation for the approval
// engine and notification dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aid",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Decision attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aid",
		Subsystem: "notify",
		Name:      "delivery_failures_total",
		Help:      "Notification deliveries that failed, by channel.",
	}, []string{"channel"})
)

// DecisionRecorded counts one decision attempt. Outcome is "ok" or an error
// kind ("not_found", "invalid_state", "no_budget", "insufficient_funds",
// "conflict", "error").
func DecisionRecorded(kind, outcome string) {
	decisionsTotal.WithLabelValues(kind, outcome).Inc()
}

// NotificationFailed counts one failed channel delivery.
func NotificationFailed(channel string) {
	notificationFailures.WithLabelValues(channel).Inc()
}
