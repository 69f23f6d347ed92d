package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// UpstreamLatency times calls to external collaborators (market context,
	// order book, scorer, telegram).
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "smcscan",
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Latency of calls to external collaborators",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smcscan",
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Failed calls by collaborator and reason",
		},
		[]string{"service", "reason"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "smcscan",
			Subsystem: "upstream",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"service"},
	)

	// APILatency times the scanner's own endpoints.
	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "smcscan",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of scanner API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smcscan",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by scanner API endpoint",
		},
		[]string{"endpoint"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(UpstreamLatency, UpstreamErrors, BreakerState, APILatency, APIErrors)
	})
}
