// Package metrics exposes Prometheus metrics for the HTTP service and the
// ingestion pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "svs"

// Metrics holds the collectors of one service instance. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ingestions      *prometheus.CounterVec
	pages           *prometheus.CounterVec
	externalCalls   *prometheus.HistogramVec
}

// New creates a registry with the service collectors plus the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"method", "route"},
	)
	m.ingestions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "File ingestions by result",
		},
		[]string{"result"},
	)
	m.pages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Parsed pages by embedding outcome",
		},
		[]string{"outcome"},
	)
	m.externalCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Latency of calls to the parser, embedder and vector database",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "result"},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.ingestions,
		m.pages,
		m.externalCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterStoreGauge exposes the number of registered stores.
func (m *Metrics) RegisterStoreGauge(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vector_stores",
			Help:      "Number of registered vector stores",
		},
		func() float64 { return float64(count()) },
	))
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIngestion counts one ingestion attempt by result.
func (m *Metrics) ObserveIngestion(result string) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(result).Inc()
}

// ObservePages counts embedded and skipped pages of one ingestion.
func (m *Metrics) ObservePages(embedded, skipped int) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues("embedded").Add(float64(embedded))
	m.pages.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveExternal records the latency of one outbound call.
func (m *Metrics) ObserveExternal(service string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.externalCalls.WithLabelValues(service, result).Observe(time.Since(start).Seconds())
}
