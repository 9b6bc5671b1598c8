// Package metrics exposes Prometheus instrumentation for the gateway:
// connection counts, translation cache hit/miss, and query latency.
// Grounded on the teacher pack's db-bouncer Collector pattern (own
// registry, safe to construct repeatedly).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every Prometheus metric the gateway reports.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive    prometheus.Gauge
	connectionsTotal     prometheus.Counter
	translationCacheHits prometheus.Counter
	translationCacheMiss prometheus.Counter
	translationDuration  prometheus.Histogram
	queryDuration        *prometheus.HistogramVec
	queryErrors          *prometheus.CounterVec
	cancelRequests       prometheus.Counter
}

// New creates and registers all gateway metrics on a fresh registry.
// Safe to call multiple times (e.g. in tests) — each call creates an
// independent registry that doesn't conflict with others.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iris_pgwire_connections_active",
			Help: "Number of currently connected PostgreSQL wire clients",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iris_pgwire_connections_total",
			Help: "Total PostgreSQL wire connections accepted",
		}),
		translationCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iris_pgwire_translation_cache_hits_total",
			Help: "SQL translation cache hits",
		}),
		translationCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iris_pgwire_translation_cache_misses_total",
			Help: "SQL translation cache misses",
		}),
		translationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "iris_pgwire_translation_duration_seconds",
			Help:    "Time spent translating PostgreSQL SQL to IRIS dialect",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iris_pgwire_query_duration_seconds",
			Help:    "Time spent executing a translated query against IRIS",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"outcome"}),
		queryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_pgwire_query_errors_total",
			Help: "Query errors by SQLSTATE",
		}, []string{"sqlstate"}),
		cancelRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iris_pgwire_cancel_requests_total",
			Help: "Cancellation sub-protocol requests received",
		}),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsTotal,
		c.translationCacheHits,
		c.translationCacheMiss,
		c.translationDuration,
		c.queryDuration,
		c.queryErrors,
		c.cancelRequests,
	)

	return c
}

// ConnectionOpened records a new accepted connection.
func (c *Collector) ConnectionOpened() {
	c.connectionsActive.Inc()
	c.connectionsTotal.Inc()
}

// ConnectionClosed records a connection going away.
func (c *Collector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// TranslationCacheHit records an LRU hit.
func (c *Collector) TranslationCacheHit() { c.translationCacheHits.Inc() }

// TranslationCacheMiss records an LRU miss.
func (c *Collector) TranslationCacheMiss() { c.translationCacheMiss.Inc() }

// TranslationDuration records time spent in the SQL translator.
func (c *Collector) TranslationDuration(d time.Duration) {
	c.translationDuration.Observe(d.Seconds())
}

// QueryDuration records time spent executing against the IRIS backend.
func (c *Collector) QueryDuration(outcome string, d time.Duration) {
	c.queryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// QueryError records a failed query by SQLSTATE.
func (c *Collector) QueryError(sqlstate string) {
	c.queryErrors.WithLabelValues(sqlstate).Inc()
}

// CancelRequest records an inbound cancellation sub-protocol request.
func (c *Collector) CancelRequest() { c.cancelRequests.Inc() }
