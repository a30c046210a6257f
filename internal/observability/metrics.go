// Package observability wires Prometheus instrumentation. A single Metrics
// struct is created at startup, registered once, and handed to the services
// that record into it.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every instrument the services record into.
type Metrics struct {
	IngestRuns         *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	ZonesProcessed     prometheus.Counter
	ObservationsStored *prometheus.CounterVec
	ExtractionFailures prometheus.Counter
	UpstreamFallbacks  prometheus.Counter
	CacheHits          *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewMetrics builds and registers all instruments under the namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion passes by outcome.",
		}, []string{"outcome"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of one full ingestion pass.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ZonesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zones_processed_total",
			Help:      "Zones with at least one stored observation.",
		}),
		ObservationsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_stored_total",
			Help:      "Observations accepted, by storage tier.",
		}, []string{"store"}),
		ExtractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Coordinates that yielded no observation.",
		}),
		UpstreamFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fallbacks_total",
			Help:      "Ingestion passes that used the alternate model run.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by key family and result.",
		}, []string{"family", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.IngestRuns,
		m.IngestDuration,
		m.ZonesProcessed,
		m.ObservationsStored,
		m.ExtractionFailures,
		m.UpstreamFallbacks,
		m.CacheHits,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}
