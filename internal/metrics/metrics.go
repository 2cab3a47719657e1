// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

// Package metrics exposes Prometheus collectors for the cache, coordinator,
// orchestrator, and background sync scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache store metrics, labeled by store instance (general, user, analytics).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxcache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"store"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxcache_misses_total",
			Help: "Total number of cache misses (absent, expired, or version mismatch)",
		},
		[]string{"store"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxcache_evictions_total",
			Help: "Total number of entries removed (delete, tag invalidation, purge)",
		},
		[]string{"store"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "praxcache_entries",
			Help: "Current number of entries per store",
		},
		[]string{"store"},
	)

	// Request coordinator metrics.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "praxcache_fetch_duration_seconds",
			Help:    "Duration of upstream fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"}, // "success", "error"
	)

	DedupedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxcache_deduped_requests_total",
			Help: "Requests coalesced onto an already in-flight fetch",
		},
	)

	BatchFlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "praxcache_batch_flush_size",
			Help:    "Number of waiters settled per micro-batch flush",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "praxcache_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Orchestrator metrics.
	BackgroundRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxcache_background_refreshes_total",
			Help: "Background stale-while-revalidate refreshes triggered",
		},
	)

	StaleServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxcache_stale_served_total",
			Help: "Reads answered with a stale value (including error fallbacks)",
		},
	)

	// Background sync scheduler metrics.
	SyncTaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxcache_sync_task_runs_total",
			Help: "Background sync task executions",
		},
		[]string{"kind", "priority"},
	)

	SyncTaskErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxcache_sync_task_errors_total",
			Help: "Background sync task executions that surfaced an error",
		},
		[]string{"kind", "priority"},
	)

	SyncTasksRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "praxcache_sync_tasks_registered",
			Help: "Currently registered background sync tasks",
		},
	)
)

// ObserveFetch records one upstream fetch with its duration and outcome.
func ObserveFetch(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	FetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
