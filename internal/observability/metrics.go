// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeMiss    = "miss"
	OutcomeError   = "error"
)

// Package-level counters so the session engine and registry can record
// without holding a Server.
var (
	authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeep_auth_attempts_total",
			Help: "Authentication attempts by resolution strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)
	sessionSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeep_session_saves_total",
			Help: "Session save attempts by outcome",
		},
		[]string{"outcome"},
	)
	sessionDestroys = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeep_session_destroys_total",
			Help: "Sessions destroyed",
		},
	)
	sessionRotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeep_session_rotations_total",
			Help: "Sibling sessions re-saved after an identity update",
		},
	)
	lockouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeep_lockouts_total",
			Help: "Logins rejected because the account is locked out",
		},
	)
)

// RecordAuthAttempt counts one strategy attempt.
func RecordAuthAttempt(strategy, outcome string) {
	authAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordSessionSave counts one session save.
func RecordSessionSave(outcome string) {
	sessionSaves.WithLabelValues(outcome).Inc()
}

// RecordSessionDestroy counts one destroyed session.
func RecordSessionDestroy() {
	sessionDestroys.Inc()
}

// RecordSessionRotation counts one sibling session re-saved by the registry.
func RecordSessionRotation() {
	sessionRotations.Inc()
}

// RecordLockout counts one login rejected by the lockout gate.
func RecordLockout() {
	lockouts.Inc()
}

// Metrics contains the HTTP-facing metrics owned by a Server.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
}

// NewMetrics creates the HTTP metrics and registers them, together with the
// package-level auth counters, on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeep_http_requests_total",
				Help: "HTTP requests by route and status class",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(authAttempts, sessionSaves, sessionDestroys, sessionRotations, lockouts)

	return m
}
