// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package orchestrator

import (
	"time"

	"github.com/mtierney/praxcache/internal/coordinator"
)

// Priority classifies a query for background sync scheduling. It affects
// scheduling eligibility only; the coordinator's batching is unaware of it.
type Priority string

// Query priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Default read policy applied when Options leaves the fields zero.
const (
	DefaultStaleTime = 5 * time.Minute
	DefaultCacheTime = 15 * time.Minute
)

// Options is the per-query read policy. The zero values of the Disable*
// booleans give the defaults: background refresh, focus refetch, and
// reconnect refetch are all on.
type Options struct {
	// Key addresses the value in the cache and upstream.
	Key string

	// Fetcher loads the value from the upstream data source.
	Fetcher coordinator.Fetcher

	// StaleTime is the age beyond which a hit is served but flagged
	// stale. Default 5m. Always at most CacheTime.
	StaleTime time.Duration

	// CacheTime is the entry TTL written on success. Default 15m;
	// raised to StaleTime when set lower.
	CacheTime time.Duration

	// Tags classify the entry for bulk invalidation and select the
	// store instance.
	Tags []string

	// Version is the expected payload schema version.
	Version string

	// Priority marks the query for the background sync scheduler.
	// Default medium.
	Priority Priority

	// Fallback is returned as Data on a failed fetch with no cached
	// value at all.
	Fallback any

	// DisableBackground turns off stale-while-revalidate refresh.
	DisableBackground bool

	// DisableFocusRefetch opts out of refetch on focus regained.
	DisableFocusRefetch bool

	// DisableReconnectRefetch opts out of refetch on reconnection.
	DisableReconnectRefetch bool
}

// normalized fills defaults and enforces StaleTime <= CacheTime.
func (o Options) normalized() Options {
	if o.StaleTime <= 0 {
		o.StaleTime = DefaultStaleTime
	}
	if o.CacheTime <= 0 {
		o.CacheTime = DefaultCacheTime
	}
	if o.CacheTime < o.StaleTime {
		o.CacheTime = o.StaleTime
	}
	if o.Priority == "" {
		o.Priority = PriorityMedium
	}
	return o
}

// Result is the consumer-visible state of a query at one instant.
//
// Data is always the best value available: fresh, then stale, then
// last-known-good, in that order. A fetch failure never clears it.
type Result struct {
	Data         any
	IsLoading    bool
	IsStale      bool
	IsBackground bool
	LastFetch    time.Time
	Err          error
}
