package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crabiner_auth_refresh_total",
		Help: "Refresh attempts by outcome.",
	}, []string{"outcome"})
	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crabiner_auth_refresh_duration_seconds",
		Help:    "Time spent serving a refresh.",
		Buckets: prometheus.DefBuckets,
	})
	gatewayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crabiner_auth_gateway_total",
		Help: "Gateway decisions by mode and outcome.",
	}, []string{"mode", "outcome"})
	logoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crabiner_auth_logout_total",
		Help: "Logouts by whether a usable credential was revoked.",
	}, []string{"revoked"})
	issuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crabiner_auth_sessions_issued_total",
		Help: "Sessions started for externally authenticated identities.",
	})
)
