// Package metrics defines the Prometheus collectors used by the indexer, the
// query path and the HTTP layer, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service. A nil *Metrics
// is valid everywhere it is accepted and records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	CrawlDuration        prometheus.Histogram
	IndexRebuildsTotal   *prometheus.CounterVec
	IndexDocuments       prometheus.Gauge
	IndexTerms           prometheus.Gauge
	IndexGeneration      prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
	AnalyticsEventsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. Passing nil
// registers with the process-wide default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of matching documents per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents read and indexed across all crawls.",
			},
		),
		CrawlDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawl_duration_seconds",
				Help:    "Time taken by a full crawl of the document root.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),
		IndexRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rebuilds_total",
				Help: "Total index rebuilds by status.",
			},
			[]string{"status"},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Number of documents in the live index.",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Number of distinct terms in the live index.",
			},
		),
		IndexGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_generation",
				Help: "Generation of the live index; incremented on every successful swap.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		AnalyticsEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_total",
				Help: "Analytics events by outcome (published, failed, dropped, consumed).",
			},
			[]string{"outcome"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.CrawlDuration,
		m.IndexRebuildsTotal,
		m.IndexDocuments,
		m.IndexTerms,
		m.IndexGeneration,
		m.CircuitBreakerState,
		m.AnalyticsEventsTotal,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler returns the Prometheus scrape HTTP handler for the registry the
// collectors were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveCrawl records one completed crawl.
func (m *Metrics) ObserveCrawl(docs int, seconds float64) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Add(float64(docs))
	m.CrawlDuration.Observe(seconds)
}

// ObserveRebuild records the outcome of an index rebuild. On success the
// index gauges are set to the new engine's sizes.
func (m *Metrics) ObserveRebuild(status string, docs, terms int, generation uint64) {
	if m == nil {
		return
	}
	m.IndexRebuildsTotal.WithLabelValues(status).Inc()
	if status != "success" {
		return
	}
	m.IndexDocuments.Set(float64(docs))
	m.IndexTerms.Set(float64(terms))
	m.IndexGeneration.Set(float64(generation))
}

// ObserveSearch records one executed query.
func (m *Metrics) ObserveSearch(resultType, cacheStatus string, hits int, seconds float64) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(seconds)
	m.SearchResultsCount.Observe(float64(hits))
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

// SetBreakerState publishes a circuit breaker transition.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	}
}

func (m *Metrics) AnalyticsEvents(outcome string, n int) {
	if m != nil && n > 0 {
		m.AnalyticsEventsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// TrackHTTP marks a request in flight and returns the function that
// records its outcome.
func (m *Metrics) TrackHTTP(method string) func(route string, status int) {
	if m == nil {
		return func(string, int) {}
	}
	start := time.Now()
	m.HTTPRequestsInFlight.Inc()
	return func(route string, status int) {
		m.HTTPRequestsInFlight.Dec()
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
