package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flock",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Inbound routing outcomes, labelled by the branch that handled the
	// message (admin_command, operated, suspended, flow, pattern, oracle,
	// fallback).
	RoutedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "server",
			Name:      "routed_messages_total",
			Help:      "Inbound messages routed, by handling branch",
		},
		[]string{"branch"},
	)

	// Claim attempts that lost the conditional update race.
	ClaimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "server",
			Name:      "claim_conflicts_total",
			Help:      "Claim attempts rejected because another operator owns the conversation",
		},
	)

	// Handoffs released by the inactivity sweep.
	ReaperReleasesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "server",
			Name:      "reaper_releases_total",
			Help:      "Stale handoffs released by the inactivity sweep",
		},
	)

	// Flows abandoned past their expiry.
	ExpiredFlowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "server",
			Name:      "expired_flows_total",
			Help:      "In-progress flows cleared by the expiry sweep",
		},
	)

	// Connected live viewers.
	LiveViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "flock",
			Subsystem: "server",
			Name:      "live_viewers",
			Help:      "Currently connected websocket viewers",
		},
	)

	// Gateway delivery outcomes.
	GatewayDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "server",
			Name:      "gateway_deliveries_total",
			Help:      "Outbound gateway deliveries by status",
		},
		[]string{"status"},
	)
)
