package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrooms_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentrooms_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentrooms_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrooms_messages_posted_total",
			Help: "Total messages persisted",
		},
		[]string{"author"}, // "user" or "agent"
	)

	ReadReceipts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentrooms_read_receipts_total",
			Help: "Total read receipts applied",
		},
	)

	// Push transport metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentrooms_ws_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	BroadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrooms_broadcast_events_total",
			Help: "Events delivered to connection queues",
		},
		[]string{"event"},
	)

	BroadcastDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrooms_broadcast_dropped_total",
			Help: "Events dropped because a connection queue was full",
		},
		[]string{"event"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrooms_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"scope"}, // "read_receipts" or an HTTP endpoint
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrooms_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Agent metrics
	AgentGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrooms_agent_generations_total",
			Help: "Agent text generations by outcome",
		},
		[]string{"outcome"}, // "ok", "timeout", "error"
	)

	AgentGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentrooms_agent_generation_duration_seconds",
			Help:    "Agent text generation latency",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentrooms_store_latency_seconds",
			Help:    "Store gateway operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"op"},
	)
)
