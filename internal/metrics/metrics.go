package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Events mirrors every Recorder increment so it can be scraped.
	Events = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "league_tracker_events_total",
			Help: "Best-effort counters for upstream calls, retries and jobs",
		},
		[]string{"metric", "tags"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "league_tracker_upstream_request_duration_seconds",
			Help:    "Duration of single upstream HTTP attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method_group", "outcome"},
	)

	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "league_tracker_rate_limit_wait_seconds",
			Help:    "Time spent waiting for shared quota before a call",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method_group"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "league_tracker_circuit_breaker_state",
			Help: "Circuit breaker state per method group (0=closed, 1=half-open, 2=open)",
		},
		[]string{"method_group"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "league_tracker_queue_depth",
			Help: "Jobs waiting or in flight",
		},
		[]string{"queue", "state"},
	)
)
