// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package cache

import (
	"testing"
	"time"

	"github.com/mtierney/praxcache/internal/clock"
)

func newTestRegistry() *Registry {
	return NewRegistry(DefaultLifetimes(), clock.NewFake())
}

func TestRegistryForTags(t *testing.T) {
	r := newTestRegistry()

	tests := []struct {
		name string
		tags []string
		want string
	}{
		{name: "no tags routes to general", tags: nil, want: StoreGeneral},
		{name: "unknown tags route to general", tags: []string{"campaigns"}, want: StoreGeneral},
		{name: "user tag routes to user store", tags: []string{"user"}, want: StoreUser},
		{name: "referrals tag routes to user store", tags: []string{"referrals"}, want: StoreUser},
		{name: "analytics tag routes to analytics store", tags: []string{"analytics"}, want: StoreAnalytics},
		{name: "insights tag routes to analytics store", tags: []string{"insights"}, want: StoreAnalytics},
		{name: "user wins over analytics", tags: []string{"analytics", "user"}, want: StoreUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ForTags(tt.tags).Name(); got != tt.want {
				t.Errorf("ForTags(%v) = %s, want %s", tt.tags, got, tt.want)
			}
		})
	}
}

func TestRegistryLifetimes(t *testing.T) {
	r := newTestRegistry()

	if got := r.Store(StoreGeneral).DefaultTTL(); got != 15*time.Minute {
		t.Errorf("general TTL = %v", got)
	}
	if got := r.Store(StoreUser).DefaultTTL(); got != 10*time.Minute {
		t.Errorf("user TTL = %v", got)
	}
	if got := r.Store(StoreAnalytics).DefaultTTL(); got != 5*time.Minute {
		t.Errorf("analytics TTL = %v", got)
	}
	if r.Store("bogus") != nil {
		t.Error("expected nil for unknown store name")
	}
}

func TestRegistryInvalidateFanOut(t *testing.T) {
	r := newTestRegistry()

	r.Store(StoreGeneral).Set("campaigns", 1, SetOptions{Tags: []string{"marketing"}})
	r.Store(StoreUser).Set("sources_u1", 2, SetOptions{Tags: []string{"user", "marketing"}})
	r.Store(StoreAnalytics).Set("summary", 3, SetOptions{Tags: []string{"analytics"}})

	if removed := r.InvalidateByTags([]string{"marketing"}); removed != 2 {
		t.Errorf("expected 2 removals across stores, got %d", removed)
	}
	if _, ok := r.Store(StoreAnalytics).Get("summary", ""); !ok {
		t.Error("expected analytics entry to survive")
	}
}

func TestRegistryStatsByStore(t *testing.T) {
	r := newTestRegistry()

	r.Store(StoreUser).Set("sources_u1", 1, SetOptions{})
	r.Store(StoreUser).Get("sources_u1", "")

	stats := r.StatsByStore()
	if len(stats) != 3 {
		t.Fatalf("expected 3 store snapshots, got %d", len(stats))
	}
	if stats[StoreUser].Hits != 1 {
		t.Errorf("expected 1 user-store hit, got %d", stats[StoreUser].Hits)
	}
	if stats[StoreGeneral].Keys != 0 {
		t.Errorf("expected empty general store, got %d keys", stats[StoreGeneral].Keys)
	}
}
