package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SMCScan/internal/domain/models"
)

const namespace = "smcscan"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scans        *prometheus.CounterVec
	gateRejects  *prometheus.CounterVec
	setups       *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	outcomeR     prometheus.Histogram
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New registers the recorder on the default registry. Call it once per process.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		scans: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Scans evaluated, by symbol and result",
			},
			[]string{"symbol", "result"},
		),
		gateRejects: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_rejections_total",
				Help:      "Scans stopped by each gating stage",
			},
			[]string{"stage"},
		),
		setups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "setups_emitted_total",
				Help:      "Trade setups emitted",
			},
			[]string{"symbol", "direction"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replay_outcomes_total",
				Help:      "Replay results by terminal state",
			},
			[]string{"state"},
		),
		outcomeR: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "replay_realized_r",
				Help:      "Realized R multiple per replayed setup",
				Buckets:   []float64{-1, -0.5, 0, 0.5, 0.75, 1, 1.5, 2, 2.25, 3},
			},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total number of messages sent to backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordScan counts a scan; result is "setup", "rejected" or "error".
func (r *Recorder) RecordScan(symbol, result string) {
	r.scans.WithLabelValues(symbol, result).Inc()
}

func (r *Recorder) RecordGateReject(stage string) {
	r.gateRejects.WithLabelValues(stage).Inc()
}

func (r *Recorder) RecordSetup(symbol string, dir models.Direction) {
	r.setups.WithLabelValues(symbol, string(dir)).Inc()
}

func (r *Recorder) RecordOutcome(phase models.Phase, realized float64) {
	r.outcomes.WithLabelValues(string(phase)).Inc()
	r.outcomeR.Observe(realized)
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordScan(string, string) {}
func (Nop) RecordGateReject(string) {}
func (Nop) RecordSetup(string, models.Direction) {}
func (Nop) RecordOutcome(models.Phase, float64) {}
func (Nop) RecordMessageSent(string, string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64) {}
