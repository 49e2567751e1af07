// Package metrics exposes the Prometheus counters and histograms the edge
// proxy records: cache hit/miss rates per tier, request durations, and
// capacity-check outcomes. CacheErrors and OriginFetchDuration are
// registered, but nothing in the proxy records into them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodedge_cache_hits_total",
			Help: "Total number of cache hits by backend mode",
		},
		[]string{"mode"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodedge_cache_misses_total",
			Help: "Total number of cache misses by backend mode",
		},
		[]string{"mode"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodedge_cache_errors_total",
			Help: "Total number of cache backend errors by backend mode",
		},
		[]string{"mode"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vodedge_request_duration_seconds",
			Help:    "Duration of edge proxy requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	OriginFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vodedge_origin_fetch_duration_seconds",
			Help:    "Duration of origin fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	CapacityCheckResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodedge_capacity_check_actions_total",
			Help: "Total number of capacity-check cycles by tier and action taken",
		},
		[]string{"tier", "action"}, // action: "noop", "migrated", "evicted"
	)

	CacheItemsMigrated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vodedge_cache_items_migrated_total",
			Help: "Total number of items migrated from L1 to L2 by the capacity manager",
		},
	)

	CacheItemsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodedge_cache_items_evicted_total",
			Help: "Total number of items evicted by the capacity manager",
		},
		[]string{"tier"},
	)

	CacheFallbackActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vodedge_cache_fallback_active",
			Help: "1 if the cache manager fell back to the memory backend, else 0",
		},
	)
)

// RecordCacheResult increments the hit/miss counter for mode depending on whether item was found.
func RecordCacheResult(mode string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(mode).Inc()
	} else {
		CacheMisses.WithLabelValues(mode).Inc()
	}
}

// RecordRequest records one completed HTTP request's duration and outcome.
func RecordRequest(method, status string, duration time.Duration) {
	RequestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}

// RecordOriginFetch records one completed origin fetch's duration and outcome.
func RecordOriginFetch(status string, duration time.Duration) {
	OriginFetchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordMigration records items migrated from L1 to L2 during a capacity check.
func RecordMigration(count int) {
	if count == 0 {
		CapacityCheckResults.WithLabelValues("l1", "noop").Inc()
		return
	}
	CapacityCheckResults.WithLabelValues("l1", "migrated").Inc()
	CacheItemsMigrated.Add(float64(count))
}

// RecordEviction records items evicted from tier during a capacity check.
func RecordEviction(tier string, count int) {
	if count == 0 {
		CapacityCheckResults.WithLabelValues(tier, "noop").Inc()
		return
	}
	CapacityCheckResults.WithLabelValues(tier, "evicted").Inc()
	CacheItemsEvicted.WithLabelValues(tier).Add(float64(count))
}

// SetFallbackActive reflects the cache manager's current fallback state.
func SetFallbackActive(active bool) {
	if active {
		CacheFallbackActive.Set(1)
	} else {
		CacheFallbackActive.Set(0)
	}
}
