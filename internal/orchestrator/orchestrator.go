// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

// Package orchestrator implements the per-key stale-while-revalidate
// state machine on top of the cache stores and the request coordinator.
//
// On every read it decides between three paths:
//
//   - fresh hit: return immediately
//   - stale hit: return the stale value flagged as such and schedule a
//     short-delay background refresh through the coordinator
//   - miss: perform a blocking, deduplicated, micro-batched fetch
//
// Fetch failures never escape as errors from the query surface; they are
// folded into Result.Err, and Data keeps the last-known-good value (even
// one past its TTL) whenever any exists.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtierney/praxcache/internal/cache"
	"github.com/mtierney/praxcache/internal/clock"
	"github.com/mtierney/praxcache/internal/connectivity"
	"github.com/mtierney/praxcache/internal/coordinator"
	"github.com/mtierney/praxcache/internal/logging"
	"github.com/mtierney/praxcache/internal/metrics"
)

// DefaultBackgroundDelay separates a stale read from the refresh it
// triggers, so the refresh never piles onto the read path itself.
const DefaultBackgroundDelay = 100 * time.Millisecond

// Config parameterizes an Orchestrator.
type Config struct {
	// BackgroundDelay is the lag between a stale read and its
	// background refresh. Default: DefaultBackgroundDelay.
	BackgroundDelay time.Duration
}

// Orchestrator coordinates cache reads, blocking fetches, background
// refreshes, and connectivity-driven revalidation for all queries.
type Orchestrator struct {
	stores  *cache.Registry
	co      *coordinator.Coordinator
	clock   clock.Clock
	bgDelay time.Duration
	log     zerolog.Logger

	mu        sync.Mutex
	queries   map[*Query]struct{}
	bgPending map[string]bool

	unsubscribe func()
}

// New creates an Orchestrator. observer may be nil when no ambient
// focus/reconnect signals exist (tests, batch jobs).
func New(cfg Config, stores *cache.Registry, co *coordinator.Coordinator, clk clock.Clock, observer connectivity.Observer) *Orchestrator {
	if clk == nil {
		clk = clock.System()
	}
	if cfg.BackgroundDelay <= 0 {
		cfg.BackgroundDelay = DefaultBackgroundDelay
	}

	o := &Orchestrator{
		stores:    stores,
		co:        co,
		clock:     clk,
		bgDelay:   cfg.BackgroundDelay,
		log:       logging.With().Str("component", "orchestrator").Logger(),
		queries:   make(map[*Query]struct{}),
		bgPending: make(map[string]bool),
	}
	if observer != nil {
		o.unsubscribe = observer.Subscribe(o.handleEvent)
	}
	return o
}

// Close unsubscribes from the connectivity observer. Queries already
// registered keep working; only ambient revalidation stops.
func (o *Orchestrator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
}

// Query registers a consumer for key-addressed data under the given read
// policy and returns its handle. Callers should Close the handle when
// they stop consuming.
func (o *Orchestrator) Query(opts Options) *Query {
	q := &Query{
		orch: o,
		opts: opts.normalized(),
	}
	o.mu.Lock()
	o.queries[q] = struct{}{}
	o.mu.Unlock()
	return q
}

// Fetch is the one-shot form of Query: register, fetch, close.
// The background sync scheduler drives its tasks through this path so
// scheduled results land in the same stores under the same dedup rules.
func (o *Orchestrator) Fetch(ctx context.Context, opts Options) Result {
	q := o.Query(opts)
	defer q.Close()
	return q.Fetch(ctx)
}

// InvalidateByTags removes every entry carrying one of the tags across
// all store instances.
func (o *Orchestrator) InvalidateByTags(tags []string) int {
	return o.stores.InvalidateByTags(tags)
}

// backgroundPending reports whether a background refresh is armed or
// running for key.
func (o *Orchestrator) backgroundPending(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bgPending[key]
}

// remove unregisters a closed query.
func (o *Orchestrator) remove(q *Query) {
	o.mu.Lock()
	delete(o.queries, q)
	o.mu.Unlock()
}

// handleEvent refetches every registered query whose data has gone stale
// by the time focus or connectivity returns. Each refetch re-enters the
// foreground path; the coordinator still collapses duplicates.
func (o *Orchestrator) handleEvent(ev connectivity.Event) {
	now := o.clock.Now()

	o.mu.Lock()
	due := make([]*Query, 0, len(o.queries))
	for q := range o.queries {
		if ev == connectivity.EventFocus && q.opts.DisableFocusRefetch {
			continue
		}
		if ev == connectivity.EventOnline && q.opts.DisableReconnectRefetch {
			continue
		}
		if now.Sub(q.lastFetch()) > q.opts.StaleTime {
			due = append(due, q)
		}
	}
	o.mu.Unlock()

	if len(due) == 0 {
		return
	}
	o.log.Debug().Str("event", ev.String()).Int("queries", len(due)).
		Msg("revalidating stale queries")

	for _, q := range due {
		go q.Refetch(context.Background(), false)
	}
}

// scheduleBackground arms a delayed refresh for the query's key unless
// one is already pending.
func (o *Orchestrator) scheduleBackground(q *Query) {
	key := q.opts.Key

	o.mu.Lock()
	if o.bgPending[key] {
		o.mu.Unlock()
		return
	}
	o.bgPending[key] = true
	o.mu.Unlock()

	metrics.BackgroundRefreshes.Inc()
	q.setBackground(true)

	o.clock.AfterFunc(o.bgDelay, func() {
		// The refresh blocks on the coordinator's batch window; run it
		// off the timer goroutine.
		go func() {
			defer func() {
				o.mu.Lock()
				delete(o.bgPending, key)
				o.mu.Unlock()
			}()
			q.complete(q.runFetch(context.Background()), false)
		}()
	})
}
