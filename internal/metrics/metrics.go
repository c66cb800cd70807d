// Package metrics exposes Prometheus instrumentation for submissions,
// remote calls and cleanup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// transitions counts persisted submission state transitions.
	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labexec_submission_transitions_total",
			Help: "Submission state transitions by source and target state",
		},
		[]string{"from", "to"},
	)

	// remoteCalls counts calls against the remote execution manager.
	remoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labexec_remote_calls_total",
			Help: "Remote execution manager calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	// polls counts status polls by resolved canonical state.
	polls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labexec_status_polls_total",
			Help: "Workflow status polls by canonical state (or unavailable)",
		},
		[]string{"state"},
	)

	// cleanups counts cleanup attempts by outcome.
	cleanups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labexec_cleanups_total",
			Help: "Remote resource cleanup attempts by outcome",
		},
		[]string{"outcome"},
	)

	// inFlight tracks operations currently dispatched by the scheduler.
	inFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labexec_scheduler_in_flight",
			Help: "Submission operations currently in flight",
		},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordTransition increments the transition counter.
func RecordTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

// ObserveRemoteCall records the outcome of one remote call.
func ObserveRemoteCall(op string, err error) {
	remoteCalls.WithLabelValues(op, outcome(err)).Inc()
}

// RecordPoll records a status poll. An empty state means the status was
// unavailable.
func RecordPoll(state string) {
	if state == "" {
		state = "unavailable"
	}
	polls.WithLabelValues(state).Inc()
}

// RecordCleanup records a cleanup attempt.
func RecordCleanup(err error) {
	cleanups.WithLabelValues(outcome(err)).Inc()
}

// SetInFlight sets the in-flight gauge.
func SetInFlight(n int) {
	inFlight.Set(float64(n))
}
