package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_console", Name: "assignments_total", Help: "Total assignments created"})
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch_console", Name: "assignment_transitions_total", Help: "Assignment state transitions"},
		[]string{"to"},
	)
	RefreshTicks    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_console", Name: "refresh_ticks_total", Help: "Refresh scheduler ticks"})
	RefreshFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_console", Name: "refresh_failures_total", Help: "Refresh ticks that failed to reach the data feed"})
	StoreErrors     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_console", Name: "store_errors_total", Help: "Assignment audit store write errors"})
	DriverBeacons   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_console", Name: "driver_beacons_total", Help: "Driver location beacons received"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch_console", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatch_console",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
