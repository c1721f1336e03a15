// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// latencyBuckets cover sub-second cache hits through worst-case
// three-provider fallback walks.
var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}

type Registry struct {
	reg *prometheus.Registry

	RequestsTotal  *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	FallbacksTotal *prometheus.CounterVec
	CostTotal      *prometheus.CounterVec
	LatencySeconds *prometheus.HistogramVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_gateway_requests_total",
			Help: "Total requests served by the gateway",
		}, []string{"api_key_id", "provider", "status"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_gateway_errors_total",
			Help: "Upstream provider errors by taxonomy kind",
		}, []string{"api_key_id", "provider", "error_type"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_gateway_fallbacks_total",
			Help: "Fallback transitions from the primary provider",
		}, []string{"api_key_id", "from_provider", "to_provider"}),
		CostTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_gateway_cost_total",
			Help: "Accumulated USD cost",
		}, []string{"api_key_id", "provider", "model"}),
		LatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_gateway_latency_seconds",
			Help:    "End-to-end request latency in seconds",
			Buckets: latencyBuckets,
		}, []string{"api_key_id", "provider"}),
	}
	reg.MustRegister(m.RequestsTotal, m.ErrorsTotal, m.FallbacksTotal, m.CostTotal, m.LatencySeconds)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry for tests.
func (m *Registry) Gather() ([]*dto.MetricFamily, error) {
	return m.reg.Gather()
}
