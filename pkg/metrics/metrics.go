package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_transitions_total",
			Help: "Queue entry operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	queueExpiries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_expiries_total",
			Help: "Ready entries cancelled because their deadline passed",
		},
	)

	queueExtensions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_extensions_total",
			Help: "Grace extension requests by result",
		},
		[]string{"result"},
	)

	kitchenAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchen_alerts_total",
			Help: "Kitchen due-time alerts emitted by phase",
		},
		[]string{"phase"},
	)

	countdownsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "countdowns_active",
			Help: "Ready entries currently tracked by the countdown engine",
		},
	)

	lateAlarmsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kitchen_late_alarms_active",
			Help: "Continuous late-order alarms currently running",
		},
	)
)

// TrackTransition records a queue operation and its outcome
func TrackTransition(op, outcome string) {
	queueTransitions.WithLabelValues(op, outcome).Inc()
}

// TrackExpiry records an expired ready entry
func TrackExpiry() {
	queueExpiries.Inc()
}

// TrackExtension records a grace extension request
func TrackExtension(result string) {
	queueExtensions.WithLabelValues(result).Inc()
}

// TrackKitchenAlert records an alert emission
func TrackKitchenAlert(phase string) {
	kitchenAlerts.WithLabelValues(phase).Inc()
}

// SetCountdownsActive reports the number of tracked countdowns
func SetCountdownsActive(n int) {
	countdownsActive.Set(float64(n))
}

// LateAlarmStarted increments the running late-alarm gauge
func LateAlarmStarted() {
	lateAlarmsActive.Inc()
}

// LateAlarmStopped decrements the running late-alarm gauge
func LateAlarmStopped() {
	lateAlarmsActive.Dec()
}
