// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package cache

import "sync/atomic"

// Stats is a point-in-time snapshot of a store's counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Keys      int64 `json:"keys"`
}

// HitRate returns the hit percentage, or 0 when nothing has been read.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(s.Hits) / float64(total) * 100.0
}

type storeStats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func (s *storeStats) hit()          { s.hits.Add(1) }
func (s *storeStats) miss()         { s.misses.Add(1) }
func (s *storeStats) evict(n int64) { s.evictions.Add(n) }

// Stats returns a snapshot of the store's counters and current size.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:      s.stats.hits.Load(),
		Misses:    s.stats.misses.Load(),
		Evictions: s.stats.evictions.Load(),
		Keys:      int64(s.Len()),
	}
}
