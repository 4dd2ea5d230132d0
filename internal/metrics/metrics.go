package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "globalchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "globalchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "globalchat_messages_posted_total",
			Help: "Total messages posted",
		},
	)

	MessagesTruncated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "globalchat_messages_truncated_total",
			Help: "Messages dropped because the history cap was exceeded",
		},
	)

	ChatClears = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "globalchat_chat_clears_total",
			Help: "Total chat clear requests",
		},
	)

	HeartbeatsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "globalchat_heartbeats_total",
			Help: "Total heartbeats received",
		},
	)

	HeartbeatsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "globalchat_heartbeats_expired_total",
			Help: "Heartbeats removed by the sweeper",
		},
	)

	ActiveUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "globalchat_active_users",
			Help: "Distinct usernames with a live heartbeat",
		},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "globalchat_validation_failures_total",
			Help: "Requests rejected with 400",
		},
		[]string{"endpoint"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "globalchat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"method"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "globalchat_redis_latency_seconds",
			Help:    "Redis rate limiter latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
