package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntentionsQueued = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "intentions_queued_total", Help: "Intentions accepted from clients"})
	QueueDepth       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "intention_queue_depth", Help: "Intentions waiting in the delay queue"})
	MatchAttempts    = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "match_attempts_total", Help: "Match attempts by outcome"},
		[]string{"outcome"},
	)
	MatchLatency  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_dispatch", Name: "match_latency_seconds", Help: "Time to process one intention"})
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "orders_created_total", Help: "Orders committed"})

	IdentityErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "identity_lookup_errors_total", Help: "Failed identity lookups by kind"},
		[]string{"kind"},
	)
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "identity_breaker_state", Help: "0 closed, 1 half-open, 2 open"})

	PositionReports = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "position_reports_total", Help: "Driver position reports by result"},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

const (
	OutcomeMatched  = "matched"
	OutcomeRequeued = "requeued"
	OutcomeFailed   = "failed"
	OutcomeDropped  = "dropped"
)
