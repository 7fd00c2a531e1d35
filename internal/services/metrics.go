// Package services – Prometheus instrumentation
//
// Domain-level counters for the intake and turn pipeline. HTTP-level metrics
// live in the middleware package; the counters here track what happened to
// messages after they crossed the transport boundary.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// intakeMessages counts inbound webhook messages by intake outcome
	// (buffered, duplicate, ignored).
	intakeMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_messages_total",
			Help: "Inbound messages by intake outcome.",
		},
		[]string{"outcome"},
	)

	// turnFlushes counts debounce flushes by result (dispatched, failed, empty).
	turnFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_flushes_total",
			Help: "Debounce flushes by result.",
		},
		[]string{"result"},
	)

	// modelFailures counts turns that fell back to the apology reply because
	// the model call failed after retries.
	modelFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "model_failures_total",
			Help: "Model completions that failed after retries.",
		},
	)

	// dispatchFailures counts outbound replies the relay never accepted.
	dispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_failures_total",
			Help: "Outbound replies that could not be delivered.",
		},
	)

	// briefingsCompleted counts interviews that produced a full structured lead.
	briefingsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "briefings_completed_total",
			Help: "Interviews that yielded a completed briefing.",
		},
	)
)

func init() {
	prometheus.MustRegister(intakeMessages, turnFlushes, modelFailures, dispatchFailures, briefingsCompleted)
}
