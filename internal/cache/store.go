// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package cache

import (
	"slices"
	"sync"
	"time"

	"github.com/mtierney/praxcache/internal/clock"
	"github.com/mtierney/praxcache/internal/metrics"
)

// Entry is a cached item with its expiry and invalidation metadata.
type Entry struct {
	Value    any
	StoredAt time.Time
	TTL      time.Duration
	Tags     []string
	Version  string
}

// ExpiresAt returns the instant the entry stops being a valid hit.
func (e Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt())
}

// Age returns the time elapsed since the entry was written.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// hasAnyTag reports whether the entry carries at least one of the given tags.
func (e Entry) hasAnyTag(tags []string) bool {
	for _, t := range tags {
		if slices.Contains(e.Tags, t) {
			return true
		}
	}
	return false
}

// SetOptions carries the per-write metadata for Store.Set.
type SetOptions struct {
	// TTL overrides the store default when positive.
	TTL time.Duration

	// Tags classify the entry for bulk invalidation.
	Tags []string

	// Version is the payload schema version. A Get with a different
	// expected version treats the entry as invalid.
	Version string
}

// Store is a thread-safe in-memory cache with TTL, tags, and versions.
//
// Expiry is checked lazily on read; expired entries stay resident until
// overwritten, deleted, invalidated by tag, or reclaimed by Purge. This is
// deliberate: the orchestrator degrades to the last-known-good value on
// fetch failure, expired or not.
type Store struct {
	name       string
	defaultTTL time.Duration
	clock      clock.Clock

	mu      sync.Mutex
	entries map[string]Entry

	stats storeStats
}

// NewStore creates a named store with the given default entry lifetime.
func NewStore(name string, defaultTTL time.Duration, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.System()
	}
	return &Store{
		name:       name,
		defaultTTL: defaultTTL,
		clock:      clk,
		entries:    make(map[string]Entry),
	}
}

// Name returns the store instance name (general, user, analytics).
func (s *Store) Name() string {
	return s.name
}

// DefaultTTL returns the lifetime applied when SetOptions.TTL is zero.
func (s *Store) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Get returns the stored value for key if it is present, unexpired, and
// (when expectedVersion is non-empty) written under the same version.
//
// A version mismatch invalidates the entry immediately: the stored shape
// can never satisfy the caller, so keeping it would only produce repeat
// misses and a stale fallback of the wrong shape.
func (s *Store) Get(key, expectedVersion string) (any, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && expectedVersion != "" && entry.Version != expectedVersion {
		delete(s.entries, key)
		s.mu.Unlock()
		s.recordMiss()
		s.recordEviction(1)
		return nil, false
	}
	s.mu.Unlock()

	if !ok {
		s.recordMiss()
		return nil, false
	}
	if entry.Expired(now) {
		// Lazy expiry: report a miss but keep the entry for fallback reads.
		s.recordMiss()
		return nil, false
	}

	s.recordHit()
	return entry.Value, true
}

// Peek returns the entry for key regardless of TTL. It is the fallback
// and staleness-classification path; it does not touch hit/miss counters.
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	return entry, ok
}

// Set writes the value for key, overwriting any existing entry.
func (s *Store) Set(key string, value any, opts SetOptions) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	s.entries[key] = Entry{
		Value:    value,
		StoredAt: s.clock.Now(),
		TTL:      ttl,
		Tags:     opts.Tags,
		Version:  opts.Version,
	}
	n := len(s.entries)
	s.mu.Unlock()

	metrics.CacheEntries.WithLabelValues(s.name).Set(float64(n))
}

// Delete removes one entry if present and reports whether it existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	n := len(s.entries)
	s.mu.Unlock()

	if ok {
		s.recordEviction(1)
	}
	metrics.CacheEntries.WithLabelValues(s.name).Set(float64(n))
	return ok
}

// InvalidateByTags removes every entry whose tag set intersects tags and
// returns the number removed. The sweep happens under the store mutex: a
// concurrent Get observes either the full pre-invalidation state or the
// full post-invalidation state, never a partial one.
func (s *Store) InvalidateByTags(tags []string) int {
	if len(tags) == 0 {
		return 0
	}

	s.mu.Lock()
	removed := 0
	for key, entry := range s.entries {
		if entry.hasAnyTag(tags) {
			delete(s.entries, key)
			removed++
		}
	}
	n := len(s.entries)
	s.mu.Unlock()

	s.recordEviction(int64(removed))
	metrics.CacheEntries.WithLabelValues(s.name).Set(float64(n))
	return removed
}

// Purge removes every expired entry and returns the number removed.
// There is no background sweep; this exists for the ops surface.
func (s *Store) Purge() int {
	now := s.clock.Now()

	s.mu.Lock()
	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	n := len(s.entries)
	s.mu.Unlock()

	s.recordEviction(int64(removed))
	metrics.CacheEntries.WithLabelValues(s.name).Set(float64(n))
	return removed
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	removed := len(s.entries)
	s.entries = make(map[string]Entry)
	s.mu.Unlock()

	s.recordEviction(int64(removed))
	metrics.CacheEntries.WithLabelValues(s.name).Set(0)
}

// Len returns the current number of resident entries, expired included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) recordHit() {
	s.stats.hit()
	metrics.CacheHits.WithLabelValues(s.name).Inc()
}

func (s *Store) recordMiss() {
	s.stats.miss()
	metrics.CacheMisses.WithLabelValues(s.name).Inc()
}

func (s *Store) recordEviction(n int64) {
	if n <= 0 {
		return
	}
	s.stats.evict(n)
	metrics.CacheEvictions.WithLabelValues(s.name).Add(float64(n))
}
