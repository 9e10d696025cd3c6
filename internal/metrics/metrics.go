// Package metrics holds the Prometheus metrics for the airflow-health
// service: cache behavior, upstream fetches, and the refresh loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "airflow_health"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions prometheus.Counter
	CacheEntries   prometheus.Gauge

	// Aggregation metrics
	FallbackServes  prometheus.Counter
	UpstreamErrors  prometheus.Counter
	FetchDuration   prometheus.Histogram
	SingleflightHit prometheus.Counter

	// Refresh loop metrics
	RefreshTicks *prometheus.CounterVec
	ReportsSent  *prometheus.CounterVec
}

// New creates and registers all service metrics. A nil registerer uses
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total cache hits by tier",
			},
			[]string{"tier"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total cache misses by tier",
			},
			[]string{"tier"},
		),
		CacheEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total entries removed by the eviction sweep",
			},
		),
		CacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Current number of live cache entries",
			},
		),
		FallbackServes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_serves_total",
				Help:      "Responses served from the fallback tier after an upstream failure",
			},
		),
		UpstreamErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Failed aggregation fetches against the Airflow API",
			},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of full fetch-and-aggregate cycles",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		SingleflightHit: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "singleflight_shared_total",
				Help:      "Aggregation requests that shared an in-flight fetch",
			},
		),
		RefreshTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_ticks_total",
				Help:      "Background refresh ticks by outcome",
			},
			[]string{"outcome"},
		),
		ReportsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_sent_total",
				Help:      "Scheduled Slack reports by outcome",
			},
			[]string{"outcome"},
		),
	}
}
