package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batepapo_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batepapo_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Presence metrics
	ParticipantsJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batepapo_participants_joined_total",
			Help: "Total successful joins",
		},
	)

	ParticipantsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batepapo_participants_evicted_total",
			Help: "Total participants removed for inactivity",
		},
	)

	ParticipantsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batepapo_participants_active",
			Help: "Participants present after the last sweep",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batepapo_sweep_duration_seconds",
			Help:    "Duration of one sweep pass",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	SweepFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batepapo_sweep_failures_total",
			Help: "Evictions that failed and were skipped",
		},
	)

	// Message metrics
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batepapo_messages_posted_total",
			Help: "Total messages appended to the log",
		},
		[]string{"type"}, // "message", "private_message" or "status"
	)

	MessagesEdited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batepapo_messages_edited_total",
			Help: "Total messages edited",
		},
	)

	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batepapo_messages_deleted_total",
			Help: "Total messages deleted",
		},
	)

	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batepapo_search_queries_total",
			Help: "Total search queries",
		},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batepapo_stream_clients",
			Help: "Connected websocket clients",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batepapo_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batepapo_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	StoreUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batepapo_store_unavailable_total",
			Help: "Requests answered 503 because the store failed",
		},
	)
)
