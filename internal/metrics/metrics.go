package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Chat metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rishta_messages_sent_total",
			Help: "Messages confirmed by the backend",
		},
	)

	MessagesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rishta_messages_failed_total",
			Help: "Sends that ended in the failed state",
		},
	)

	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rishta_messages_received_total",
			Help: "Messages delivered by the socket",
		},
	)

	DuplicatesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rishta_duplicates_suppressed_total",
			Help: "Timeline insertions skipped because the server id was already shown",
		},
		[]string{"path"}, // "ack", "receive", "history"
	)

	StaleDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rishta_stale_updates_dropped_total",
			Help: "Updates dropped because they belong to a conversation no longer open",
		},
		[]string{"kind"}, // "ack", "history"
	)

	// Connection metrics
	SocketReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rishta_socket_reconnects_total",
			Help: "Realtime socket reconnect attempts",
		},
	)

	SocketEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rishta_socket_events_total",
			Help: "Realtime socket events by direction and name",
		},
		[]string{"direction", "event"},
	)

	// REST metrics
	RESTRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rishta_rest_request_duration_seconds",
			Help:    "Backend REST request duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	PreviewsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rishta_preview_handles_live",
			Help: "Attachment preview handles not yet revoked",
		},
	)
)
