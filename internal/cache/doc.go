// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

/*
Package cache provides the in-memory keyed store underneath the fetch
orchestrator: TTL expiry, tag-based bulk invalidation, and schema-version
checking on read.

# Overview

A Store maps a string key to an Entry carrying the value, its write time,
an explicit TTL, a set of classification tags, and a schema version:

  - Expiry is lazy. An expired entry answers Get as a miss but is retained
    so the orchestrator can serve it as a degraded fallback when a refresh
    fails. Purge is the only bulk reclaim.
  - The (key, version) pair is the sole authority for hit eligibility.
    Tags affect only bulk invalidation, never individual lookup.
  - InvalidateByTags removes every entry whose tag set intersects the
    given set, atomically with respect to concurrent Get calls.

# Store instances

Three Store instances partition data by domain and default lifetime:
general platform data (15m), user-scoped data (10m), and analytics data
(5m). A Registry selects the instance from the tags a caller requests.

# Usage Example

	reg := cache.NewRegistry(cache.DefaultLifetimes(), clock.System())
	store := reg.ForTags([]string{"user", "referrals"})
	store.Set("sources_u1", rows, cache.SetOptions{Tags: []string{"user"}})
	if v, ok := store.Get("sources_u1", ""); ok {
	    // cache hit
	}
*/
package cache
