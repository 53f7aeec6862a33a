package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	guardDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blogweb_route_guard_decisions_total",
			Help: "Total number of route guard decisions by path class and action.",
		},
		[]string{"class", "action"},
	)

	sessionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blogweb_session_checks_total",
			Help: "Total number of session-check requests by outcome.",
		},
		[]string{"outcome"},
	)
)
