package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector exports engine metrics through its own registry.
type PrometheusCollector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	attemptsTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	registry        *prometheus.Registry
}

// NewPrometheusCollector creates a collector with a fresh registry.
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formwork_requests_total",
				Help: "Structured-output requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formwork_request_duration_seconds",
				Help:    "Wall time of structured-output requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"operation"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formwork_provider_attempts_total",
				Help: "Provider invocations, including retries",
			},
			[]string{"operation", "provider"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formwork_errors_total",
				Help: "Failed attempts by error kind",
			},
			[]string{"operation", "kind"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formwork_cache_lookups_total",
				Help: "Session cache lookups by result",
			},
			[]string{"result"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formwork_tokens_total",
				Help: "Tokens consumed by fresh provider results",
			},
			[]string{"provider"},
		),
		registry: registry,
	}

	registry.MustRegister(c.requestsTotal, c.requestDuration, c.attemptsTotal,
		c.errorsTotal, c.cacheLookups, c.tokensTotal)
	return c
}

func (c *PrometheusCollector) RecordRequest(ctx context.Context, operation, outcome string, d time.Duration) {
	c.requestsTotal.WithLabelValues(operation, outcome).Inc()
	c.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordAttempt(ctx context.Context, operation, provider string) {
	c.attemptsTotal.WithLabelValues(operation, provider).Inc()
}

func (c *PrometheusCollector) RecordError(ctx context.Context, operation, kind string) {
	c.errorsTotal.WithLabelValues(operation, kind).Inc()
}

func (c *PrometheusCollector) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *PrometheusCollector) AddTokens(ctx context.Context, provider string, tokens int) {
	if tokens > 0 {
		c.tokensTotal.WithLabelValues(provider).Add(float64(tokens))
	}
}

// Registry returns the registry for HTTP exposure.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
