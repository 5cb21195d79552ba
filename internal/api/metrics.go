package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/hybridrag/internal/search"
)

// Metrics holds the Prometheus collectors for searches and HTTP requests.
// It implements search.Observer so the retriever reports into it directly.
type Metrics struct {
	registry *prometheus.Registry

	searchLatency prometheus.Histogram
	searchResults prometheus.Histogram
	searches      prometheus.Counter
	degraded      prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

var _ search.Observer = (*Metrics)(nil)

// NewMetrics creates collectors on a private registry. Go runtime and
// process collectors are included.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hybridrag_search_duration_seconds",
			Help:    "Latency of hybrid searches.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hybridrag_search_results",
			Help:    "Number of passages returned per search.",
			Buckets: []float64{0, 1, 3, 5, 10, 20, 50},
		}),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hybridrag_searches_total",
			Help: "Total searches served.",
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hybridrag_search_degraded_total",
			Help: "Searches answered lexical-only because the vector signal failed.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hybridrag_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hybridrag_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.searchLatency,
		m.searchResults,
		m.searches,
		m.degraded,
		m.httpRequests,
		m.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveSearch records one completed search.
func (m *Metrics) ObserveSearch(elapsed time.Duration, results int, degraded bool) {
	m.searches.Inc()
	m.searchLatency.Observe(elapsed.Seconds())
	m.searchResults.Observe(float64(results))
	if degraded {
		m.degraded.Inc()
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
