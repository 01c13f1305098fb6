package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes gateway metrics.
type Metrics interface {
	RecordRequest(providerID string, status int)
	RecordRateLimited(scope string)
	ObserveUpstreamLatency(providerID string, d time.Duration)
	HTTPHandler() http.Handler
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) RecordRequest(providerID string, status int)               {}
func (m *NoopMetrics) RecordRateLimited(scope string)                            {}
func (m *NoopMetrics) ObserveUpstreamLatency(providerID string, d time.Duration) {}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// PrometheusMetrics implements Metrics on a private Prometheus registry.
type PrometheusMetrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers the gateway collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_gateway",
			Name:      "requests_total",
			Help:      "Forwarded requests by provider and response status.",
		}, []string{"provider", "status"}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_gateway",
			Name:      "rate_limited_total",
			Help:      "Admissions rejected by the rate limiter, by scope.",
		}, []string{"scope"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chat_gateway",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of outbound provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),
	}

	registry.MustRegister(m.requestsTotal, m.rateLimitedTotal, m.upstreamLatency)
	return m
}

func (m *PrometheusMetrics) RecordRequest(providerID string, status int) {
	m.requestsTotal.WithLabelValues(providerID, strconv.Itoa(status)).Inc()
}

func (m *PrometheusMetrics) RecordRateLimited(scope string) {
	m.rateLimitedTotal.WithLabelValues(scope).Inc()
}

func (m *PrometheusMetrics) ObserveUpstreamLatency(providerID string, d time.Duration) {
	m.upstreamLatency.WithLabelValues(providerID).Observe(d.Seconds())
}

func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
