// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package cache

import (
	"slices"
	"time"

	"github.com/mtierney/praxcache/internal/clock"
)

// Store instance names.
const (
	StoreGeneral   = "general"
	StoreUser      = "user"
	StoreAnalytics = "analytics"
)

// Tags that route an entry to the user-scoped or analytics store.
// Anything else lands in the general store.
var (
	userTags      = []string{"user", "session", "referrals", "visits"}
	analyticsTags = []string{"analytics", "insights", "reports"}
)

// Lifetimes holds the default TTL for each store instance.
type Lifetimes struct {
	General   time.Duration
	User      time.Duration
	Analytics time.Duration
}

// DefaultLifetimes returns the production defaults: general platform data
// lives longest, user-scoped data changes more often, analytics results
// are the most volatile.
func DefaultLifetimes() Lifetimes {
	return Lifetimes{
		General:   15 * time.Minute,
		User:      10 * time.Minute,
		Analytics: 5 * time.Minute,
	}
}

// Registry owns the three store instances and routes callers to one of
// them by the tags they request. One Registry exists per process (or per
// test); it is plain state with no background goroutines.
type Registry struct {
	general   *Store
	user      *Store
	analytics *Store
}

// NewRegistry creates the three stores with the given default lifetimes.
func NewRegistry(lifetimes Lifetimes, clk clock.Clock) *Registry {
	return &Registry{
		general:   NewStore(StoreGeneral, lifetimes.General, clk),
		user:      NewStore(StoreUser, lifetimes.User, clk),
		analytics: NewStore(StoreAnalytics, lifetimes.Analytics, clk),
	}
}

// ForTags selects the store instance for the given tag set. User-scoped
// tags win over analytics tags when both appear, matching the stores'
// sensitivity ordering.
func (r *Registry) ForTags(tags []string) *Store {
	for _, t := range tags {
		if slices.Contains(userTags, t) {
			return r.user
		}
	}
	for _, t := range tags {
		if slices.Contains(analyticsTags, t) {
			return r.analytics
		}
	}
	return r.general
}

// Store returns the instance with the given name, or nil.
func (r *Registry) Store(name string) *Store {
	switch name {
	case StoreGeneral:
		return r.general
	case StoreUser:
		return r.user
	case StoreAnalytics:
		return r.analytics
	default:
		return nil
	}
}

// All returns the store instances in a stable order.
func (r *Registry) All() []*Store {
	return []*Store{r.general, r.user, r.analytics}
}

// InvalidateByTags fans the invalidation out across every store and
// returns the total number of entries removed.
func (r *Registry) InvalidateByTags(tags []string) int {
	removed := 0
	for _, s := range r.All() {
		removed += s.InvalidateByTags(tags)
	}
	return removed
}

// Purge sweeps expired entries from every store.
func (r *Registry) Purge() int {
	removed := 0
	for _, s := range r.All() {
		removed += s.Purge()
	}
	return removed
}

// StatsByStore returns a snapshot of every store's counters keyed by name.
func (r *Registry) StatsByStore() map[string]Stats {
	out := make(map[string]Stats, 3)
	for _, s := range r.All() {
		out[s.Name()] = s.Stats()
	}
	return out
}
