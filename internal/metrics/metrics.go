package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	ThemingRequests *prometheus.CounterVec
	ThemeCount      prometheus.Histogram

	ConcernsCreated prometheus.Counter
	ConcernsDeleted prometheus.Counter
}

// NewCollector creates and registers every metric under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ThemingRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "theming_requests_total",
				Help:      "Theming requests by outcome",
			},
			[]string{"outcome"},
		),
		ThemeCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "theming_themes",
				Help:      "Number of themes per successful theming request",
				Buckets:   []float64{1, 3, 5, 8, 12, 15, 20},
			},
		),
		ConcernsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "concerns_created_total",
				Help:      "Total number of concerns created",
			},
		),
		ConcernsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "concerns_deleted_total",
				Help:      "Total number of concerns deleted",
			},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.ThemingRequests,
		c.ThemeCount,
		c.ConcernsCreated,
		c.ConcernsDeleted,
		prometheus.NewGoCollector(),
	)
	return c
}

// Registry exposes the private registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveTheming records a theming outcome and, on success, the theme count.
func (c *Collector) ObserveTheming(outcome string, themes int) {
	c.ThemingRequests.WithLabelValues(outcome).Inc()
	if themes > 0 {
		c.ThemeCount.Observe(float64(themes))
	}
}
