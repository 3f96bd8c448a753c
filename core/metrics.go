package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts gate decisions by outcome.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formgate_decisions_total",
			Help: "Access decisions taken by the gate",
		},
		[]string{"decision"},
	)

	// LoginsTotal counts login submissions by result.
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formgate_logins_total",
			Help: "Login submissions",
		},
		[]string{"result"}, // "success", "invalid_credentials", "rate_limited", "error"
	)

	LogoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formgate_logouts_total",
			Help: "Logout requests",
		},
	)

	SessionsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formgate_sessions_swept_total",
			Help: "Expired sessions removed by the sweeper",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
