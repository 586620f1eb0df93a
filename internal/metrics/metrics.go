// Package metrics holds the prometheus collectors for the write path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Write outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeNoop      = "noop"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// WriteMetrics tracks the write serializer. A nil *WriteMetrics is valid
// and records nothing.
type WriteMetrics struct {
	writes    *prometheus.CounterVec
	queueWait prometheus.Histogram
	duration  prometheus.Histogram
	depth     prometheus.Gauge
}

// NewWriteMetrics registers the collectors with reg.
func NewWriteMetrics(reg prometheus.Registerer) *WriteMetrics {
	factory := promauto.With(reg)
	return &WriteMetrics{
		writes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buybuy_writes_total",
				Help: "Total number of write submissions by outcome",
			},
			[]string{"outcome"},
		),
		queueWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "buybuy_write_queue_wait_seconds",
				Help:    "Time a write waited in the queue before it started",
				Buckets: prometheus.DefBuckets,
			},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "buybuy_write_duration_seconds",
				Help:    "Time spent running and committing a write",
				Buckets: prometheus.DefBuckets,
			},
		),
		depth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buybuy_write_queue_depth",
				Help: "Number of writes waiting in the queue",
			},
		),
	}
}

func (m *WriteMetrics) Enqueued() {
	if m == nil {
		return
	}
	m.depth.Inc()
}

// Dequeued records that a job left the queue after waiting for wait.
func (m *WriteMetrics) Dequeued(wait time.Duration) {
	if m == nil {
		return
	}
	m.depth.Dec()
	m.queueWait.Observe(wait.Seconds())
}

func (m *WriteMetrics) Finished(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(outcome).Inc()
	if outcome != OutcomeRejected {
		m.duration.Observe(took.Seconds())
	}
}

// Writes returns the counter for the given outcome.
func (m *WriteMetrics) Writes(outcome string) prometheus.Counter {
	return m.writes.WithLabelValues(outcome)
}

// Depth returns the queue depth gauge.
func (m *WriteMetrics) Depth() prometheus.Gauge {
	return m.depth
}
