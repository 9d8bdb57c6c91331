// Package metric defines the pipeline's Prometheus metrics and their
// registry. Adapter errors never propagate to callers; they surface here
// and in logs instead.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all pipeline-level metrics
type Metrics struct {
	MessagesTotal    *prometheus.CounterVec
	SinkWrites       *prometheus.CounterVec
	RejectedTotal    *prometheus.CounterVec
	BatchFlushSize   prometheus.Histogram
	BatchesDropped   prometheus.Counter
	OperationSeconds *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
	ReadFallbacks    prometheus.Counter
	ConsumerState    prometheus.Gauge
	BrokerConnected  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatflux",
				Subsystem: "messages",
				Name:      "total",
				Help:      "Total number of chat events ingested",
			},
			[]string{"kind"},
		),

		SinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatflux",
				Subsystem: "fanout",
				Name:      "sink_writes_total",
				Help:      "Fan-out sink write outcomes",
			},
			[]string{"sink", "status"},
		),

		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatflux",
				Subsystem: "messages",
				Name:      "rejected_total",
				Help:      "Events rejected at ingestion before any sink write",
			},
			[]string{"reason"},
		),

		BatchFlushSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "chatflux",
				Subsystem: "consumer",
				Name:      "batch_flush_size",
				Help:      "Number of events per store flush",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
			},
		),

		BatchesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "chatflux",
				Subsystem: "consumer",
				Name:      "batches_dropped_total",
				Help:      "Batches dropped after exhausting flush retries",
			},
		),

		OperationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chatflux",
				Subsystem: "adapter",
				Name:      "operation_duration_seconds",
				Help:      "Adapter operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"adapter", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chatflux",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and class",
			},
			[]string{"component", "class"},
		),

		ReadFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "chatflux",
				Subsystem: "reader",
				Name:      "store_fallbacks_total",
				Help:      "Reads served by the store after a cache miss or error",
			},
		),

		ConsumerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "chatflux",
				Subsystem: "consumer",
				Name:      "state",
				Help:      "Consumer state (0=idle, 1=accumulating, 2=flushing, 3=draining, 4=stopped)",
			},
		),

		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "chatflux",
				Subsystem: "broker",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

// RecordMessage increments the ingested event counter
func (m *Metrics) RecordMessage(kind string) {
	m.MessagesTotal.WithLabelValues(kind).Inc()
}

// RecordSinkWrite records one fan-out sink outcome
func (m *Metrics) RecordSinkWrite(sink string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.SinkWrites.WithLabelValues(sink, status).Inc()
}

// RecordRejected increments the ingestion rejection counter
func (m *Metrics) RecordRejected(reason string) {
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

// RecordFlush observes one store flush
func (m *Metrics) RecordFlush(size int) {
	m.BatchFlushSize.Observe(float64(size))
}

// RecordBatchDropped increments the dropped batch counter
func (m *Metrics) RecordBatchDropped() {
	m.BatchesDropped.Inc()
}

// RecordOperation records an adapter operation duration
func (m *Metrics) RecordOperation(adapter, operation string, duration time.Duration) {
	m.OperationSeconds.WithLabelValues(adapter, operation).Observe(duration.Seconds())
}

// RecordError increments the error counter
func (m *Metrics) RecordError(component, class string) {
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordReadFallback increments the store fallback counter
func (m *Metrics) RecordReadFallback() {
	m.ReadFallbacks.Inc()
}

// RecordConsumerState updates the consumer state gauge
func (m *Metrics) RecordConsumerState(state int) {
	m.ConsumerState.Set(float64(state))
}

// RecordBrokerStatus updates the broker connection gauge
func (m *Metrics) RecordBrokerStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.BrokerConnected.Set(value)
}
