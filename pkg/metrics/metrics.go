// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carebridge.
//
// carebridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for the
// authentication surface: logins, registrations, passkey ceremonies,
// PIN verifications, rate-limit rejections, and HTTP traffic.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all carebridge metrics.
	Namespace = "carebridge"

	// Label names
	LabelMethod     = "method"
	LabelStatusCode = "status_code"
	LabelOutcome    = "outcome"
	LabelCeremony   = "ceremony"
	LabelClass      = "class"

	// Outcome values
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	// Ceremony names
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Rate-limit classes
	ClassLogin    = "login"
	ClassRegister = "register"
	ClassAPI      = "api"
)

var (
	// LoginsTotal counts password login attempts by outcome.
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "logins_total",
			Help:      "Total number of password login attempts by outcome",
		},
		[]string{LabelOutcome},
	)

	// RegistrationsTotal counts account registrations by outcome.
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "registrations_total",
			Help:      "Total number of account registrations by outcome",
		},
		[]string{LabelOutcome},
	)

	// PasskeyCeremoniesTotal counts finished passkey ceremonies by kind
	// and outcome.
	PasskeyCeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "passkey_ceremonies_total",
			Help:      "Total number of finished passkey ceremonies by kind and outcome",
		},
		[]string{LabelCeremony, LabelOutcome},
	)

	// PinVerificationsTotal counts emergency-info PIN checks by outcome.
	PinVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pin_verifications_total",
			Help:      "Total number of emergency-info PIN verifications by outcome",
		},
		[]string{LabelOutcome},
	)

	// RateLimitRejectionsTotal counts requests rejected by the rate
	// limiter, by limit class.
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
		[]string{LabelClass},
	)

	// HTTPRequestsTotal counts HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelMethod},
	)

	// ActiveSessions gauges the number of live authenticated sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_sessions",
			Help:      "Number of live authenticated sessions",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// Enable turns metrics collection on.
func Enable() { enabled.Store(true) }

// Disable turns metrics collection off. Collectors stay registered but
// record helpers become no-ops.
func Disable() { enabled.Store(false) }

// IsEnabled reports whether metrics collection is enabled.
func IsEnabled() bool { return enabled.Load() }

// RecordLogin records a password login attempt.
func RecordLogin(success bool) {
	if !enabled.Load() {
		return
	}
	LoginsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordRegistration records an account registration attempt.
func RecordRegistration(success bool) {
	if !enabled.Load() {
		return
	}
	RegistrationsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordPasskeyCeremony records a finished passkey ceremony.
func RecordPasskeyCeremony(ceremony string, success bool) {
	if !enabled.Load() {
		return
	}
	PasskeyCeremoniesTotal.WithLabelValues(ceremony, outcome(success)).Inc()
}

// RecordPinVerification records an emergency-info PIN check.
func RecordPinVerification(success bool) {
	if !enabled.Load() {
		return
	}
	PinVerificationsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordRateLimitRejection records a request rejected by the limiter.
func RecordRateLimitRejection(class string) {
	if !enabled.Load() {
		return
	}
	RateLimitRejectionsTotal.WithLabelValues(class).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration in seconds.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

func outcome(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
