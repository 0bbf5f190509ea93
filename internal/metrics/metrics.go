// Package metrics defines the Prometheus collectors exported by the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	Polls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_polls_total",
			Help: "Total polls by outcome",
		},
		[]string{"result"}, // "messages", "pending", "closed", "empty"
	)

	RepliesEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_replies_enqueued_total",
			Help: "Total reply items enqueued",
		},
		[]string{"kind"},
	)

	RepliesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_replies_delivered_total",
			Help: "Total reply items delivered to pollers",
		},
	)

	RepliesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_replies_dropped_total",
			Help: "Replies dropped because the session was closed",
		},
	)

	RepliesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_replies_expired_total",
			Help: "Reply items removed by the retention purge",
		},
	)

	SessionsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_closed_total",
			Help: "Sessions auto-closed for inactivity",
		},
	)

	SessionsReopened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_reopened_total",
			Help: "Closed sessions reopened by user activity",
		},
	)

	SessionsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_sessions_tracked",
			Help: "Sessions currently held in memory",
		},
	)

	CloseNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_close_notifications_total",
			Help: "Outbound close notifications by outcome",
		},
		[]string{"result"}, // "ok", "error"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"method"},
	)
)
