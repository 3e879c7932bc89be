// Package metrics declares the Prometheus collectors exported at /metrics: per-session
// request/restart counters and gauges, and Namespace Merger rebuild counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RequestsInFlight tracks requests currently awaiting a response from one upstream session.
var RequestsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "atrax",
	Name:      "requests_in_flight",
	Help:      "Requests currently awaiting a response from an upstream session.",
}, []string{"session"})

// RequestsTotal tracks completed downstream-originated requests by session and outcome.
var RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "atrax",
	Name:      "requests_total",
	Help:      "Total requests forwarded to an upstream session, by outcome.",
}, []string{"session", "outcome"})

// SessionState reports the current lifecycle state of each upstream session as a gauge with
// value 1 for the active state and 0 for the rest, one series per (session, state) pair.
var SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "atrax",
	Name:      "session_state",
	Help:      "1 if the session is currently in this state, 0 otherwise.",
}, []string{"session", "state"})

// RestartsTotal tracks supervised restart attempts per session.
var RestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "atrax",
	Name:      "restarts_total",
	Help:      "Total supervised restart attempts, by session.",
}, []string{"session"})

// MergerRebuildsTotal tracks Namespace Merger rebuilds triggered by session lifecycle events.
var MergerRebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "atrax",
	Name:      "merger_rebuilds_total",
	Help:      "Total Namespace Merger rebuilds.",
})

// SetSessionState zeroes every other known state for session and sets the active one to 1,
// so a dashboard query for session_state{state="ready"} == 1 reflects only sessions actually
// in that state.
func SetSessionState(session, active string, allStates []string) {
	for _, state := range allStates {
		value := 0.0
		if state == active {
			value = 1.0
		}
		SessionState.WithLabelValues(session, state).Set(value)
	}
}
