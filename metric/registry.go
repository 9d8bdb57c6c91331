package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the Prometheus registry and the pipeline metric set.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
}

// NewRegistry creates a registry with the pipeline metrics and Go runtime
// collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()

	reg.MustRegister(
		metrics.MessagesTotal,
		metrics.SinkWrites,
		metrics.RejectedTotal,
		metrics.BatchFlushSize,
		metrics.BatchesDropped,
		metrics.OperationSeconds,
		metrics.ErrorsTotal,
		metrics.ReadFallbacks,
		metrics.ConsumerState,
		metrics.BrokerConnected,
	)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		prometheusRegistry: reg,
		Metrics:            metrics,
	}
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler returns the exposition HTTP handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}
