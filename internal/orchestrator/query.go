// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/mtierney/praxcache/internal/cache"
	"github.com/mtierney/praxcache/internal/metrics"
)

// Query is the handle a consumer holds for one key-addressed read policy,
// the Go rendition of a data-fetching hook: Fetch runs the decision path,
// Result exposes the latest consumer-visible state, Refetch and
// Invalidate are the explicit controls.
type Query struct {
	orch *Orchestrator
	opts Options

	mu   sync.Mutex
	last Result
}

// Options returns the normalized read policy of this query.
func (q *Query) Options() Options {
	return q.opts
}

// Fetch runs the orchestration decision for this query's key:
// fresh hit, stale hit plus background refresh, or blocking fetch.
func (q *Query) Fetch(ctx context.Context) Result {
	store := q.store()
	now := q.orch.clock.Now()

	if v, ok := store.Get(q.opts.Key, q.opts.Version); ok {
		entry, _ := store.Peek(q.opts.Key)
		stale := entry.Age(now) > q.opts.StaleTime

		q.setResult(Result{
			Data:      v,
			IsStale:   stale,
			LastFetch: entry.StoredAt,
		})
		if stale {
			metrics.StaleServed.Inc()
			if !q.opts.DisableBackground {
				// The consumer keeps the stale value uninterrupted
				// while the refresh happens behind it.
				q.orch.scheduleBackground(q)
			}
		}
		return q.Result()
	}

	q.setLoading()
	return q.complete(q.runFetch(ctx), true)
}

// Refetch performs a blocking fetch regardless of cache state. With
// force, the cached entry is invalidated first, guaranteeing exactly one
// new upstream call even when the entry was still fresh.
func (q *Query) Refetch(ctx context.Context, force bool) Result {
	if force {
		q.store().Delete(q.opts.Key)
	}
	q.setLoading()
	return q.complete(q.runFetch(ctx), true)
}

// Invalidate removes this query's cached entry.
func (q *Query) Invalidate() {
	q.store().Delete(q.opts.Key)
}

// Result returns the latest consumer-visible state.
func (q *Query) Result() Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last
}

// Close unregisters the query from ambient revalidation. An in-flight
// shared fetch is not aborted; other consumers may be awaiting it.
func (q *Query) Close() {
	q.orch.remove(q)
}

func (q *Query) store() *cache.Store {
	return q.orch.stores.ForTags(q.opts.Tags)
}

type fetchOutcome struct {
	val any
	err error
}

func (q *Query) runFetch(ctx context.Context) fetchOutcome {
	val, err := q.orch.co.Fetch(ctx, q.opts.Key, q.opts.Fetcher)
	return fetchOutcome{val: val, err: err}
}

// complete folds a settled fetch into the cache and the query state.
// Failures degrade instead of erasing: any retained value, expired or
// not, stays visible next to the error.
func (q *Query) complete(out fetchOutcome, foreground bool) Result {
	store := q.store()

	var res Result
	switch {
	case out.err == nil:
		store.Set(q.opts.Key, out.val, cache.SetOptions{
			TTL:     q.opts.CacheTime,
			Tags:    q.opts.Tags,
			Version: q.opts.Version,
		})
		entry, _ := store.Peek(q.opts.Key)
		res = Result{Data: out.val, LastFetch: entry.StoredAt}

	default:
		if entry, ok := store.Peek(q.opts.Key); ok {
			metrics.StaleServed.Inc()
			res = Result{
				Data:      entry.Value,
				IsStale:   true,
				Err:       out.err,
				LastFetch: entry.StoredAt,
			}
		} else {
			res = Result{Data: q.opts.Fallback, Err: out.err}
		}
		q.orch.log.Debug().Err(out.err).Str("key", q.opts.Key).
			Bool("foreground", foreground).Msg("fetch failed")
	}

	q.setResult(res)
	return res
}

// setLoading flips IsLoading while preserving the previous data so the
// consumer never flashes empty during a refetch.
func (q *Query) setLoading() {
	q.mu.Lock()
	q.last.IsLoading = true
	q.last.Err = nil
	q.mu.Unlock()
}

func (q *Query) setResult(res Result) {
	q.mu.Lock()
	q.last = res
	q.mu.Unlock()
}

func (q *Query) setBackground(on bool) {
	q.mu.Lock()
	q.last.IsBackground = on
	q.mu.Unlock()
}

// lastFetch returns when this query last completed a successful read,
// zero if never.
func (q *Query) lastFetch() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last.LastFetch
}
