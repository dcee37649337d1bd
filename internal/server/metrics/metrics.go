// Package metrics exposes Prometheus counters for authentication outcomes.
// Token failures are categorised here for observability even though they
// collapse to a single unauthorized response at the boundary.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "libraryauth"

// Metrics groups the service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	tokenValidations *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	logins           *prometheus.CounterVec
	registrations    *prometheus.CounterVec
	passwordChanges  *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "Token and session cookie validations by surface and result.",
		}, []string{"surface", "result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_decisions_total",
			Help:      "Authorization gate decisions by surface and outcome.",
		}, []string{"surface", "decision"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		passwordChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_changes_total",
			Help:      "Password change attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.tokenValidations, m.decisions, m.logins, m.registrations, m.passwordChanges)
	return m
}

func (m *Metrics) TokenValidation(surface, result string) {
	if m == nil {
		return
	}
	m.tokenValidations.WithLabelValues(surface, result).Inc()
}

func (m *Metrics) Decision(surface, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(surface, decision).Inc()
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PasswordChange(outcome string) {
	if m == nil {
		return
	}
	m.passwordChanges.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
