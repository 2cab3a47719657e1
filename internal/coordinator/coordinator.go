// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

// Package coordinator ensures that for any key at most one upstream fetch
// is outstanding at a time, and merges near-simultaneous requests sharing
// a batch prefix into a single upstream call.
//
// Two mechanisms compose:
//
//   - Dedup: an in-flight map of key to shared call. A request arriving
//     while a fetch for the same key is outstanding waits on that call
//     instead of issuing a new one. The entry lives exactly as long as
//     the fetch; it is removed when the call settles, success or failure.
//   - Micro-batching: a new request is queued under its batch key and a
//     short timer is armed for that batch (once). When the timer fires,
//     the whole queue is flushed with exactly one fetcher invocation, and
//     every queued waiter receives that single outcome.
//
// The coordinator performs no retries. A failed upstream fetch rejects
// every waiter in its batch with the same error.
package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtierney/praxcache/internal/clock"
	"github.com/mtierney/praxcache/internal/logging"
	"github.com/mtierney/praxcache/internal/metrics"
)

// Fetcher loads a value from the upstream data source. The coordinator
// treats it as opaque; it only requires promise-like settle-once behavior,
// which a Go function call gives for free.
type Fetcher func(ctx context.Context) (any, error)

// BatchKeyFunc derives the micro-batch grouping key from a cache key.
// Keys mapping to the same batch key within one batch window share a
// single upstream call, so only interchangeable fetches may share one.
type BatchKeyFunc func(key string) string

// DefaultBatchKey groups keys by the prefix before the first underscore:
// "sources_u1" and "sources_u2" batch together, "visits_u1" does not.
func DefaultBatchKey(key string) string {
	if i := strings.Index(key, "_"); i >= 0 {
		return key[:i]
	}
	return key
}

// DefaultBatchWindow is the delay between the first queued request of a
// batch and its flush.
const DefaultBatchWindow = 50 * time.Millisecond

// Config parameterizes a Coordinator.
type Config struct {
	// BatchWindow is the micro-batch collection delay.
	// Default: DefaultBatchWindow.
	BatchWindow time.Duration

	// BatchKey derives the batch grouping key. Default: DefaultBatchKey.
	BatchKey BatchKeyFunc

	// Breaker optionally wraps upstream execution in a circuit breaker.
	// Nil disables the breaker.
	Breaker *BreakerConfig
}

// Coordinator deduplicates and micro-batches upstream fetches.
type Coordinator struct {
	clock    clock.Clock
	window   time.Duration
	batchKey BatchKeyFunc
	breaker  breakerFunc
	log      zerolog.Logger

	mu       sync.Mutex
	inflight map[string]*call
	batches  map[string]*batch
}

// call is the shared outcome of one upstream fetch. It settles exactly
// once; every deduplicated waiter blocks on done.
type call struct {
	done chan struct{}
	val  any
	err  error
}

func (c *call) settle(val any, err error) {
	c.val = val
	c.err = err
	close(c.done)
}

func (c *call) wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		// The caller stops consuming; the shared fetch is not aborted
		// because other waiters may still want its result.
		return nil, ctx.Err()
	}
}

// waiter ties a queued call back to its cache key so the in-flight entry
// can be cleared when the batch settles.
type waiter struct {
	key  string
	call *call
}

type batch struct {
	fetcher Fetcher
	waiters []waiter
}

// New creates a Coordinator with the given configuration.
func New(cfg Config, clk clock.Clock) *Coordinator {
	if clk == nil {
		clk = clock.System()
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = DefaultBatchWindow
	}
	if cfg.BatchKey == nil {
		cfg.BatchKey = DefaultBatchKey
	}
	return &Coordinator{
		clock:    clk,
		window:   cfg.BatchWindow,
		batchKey: cfg.BatchKey,
		breaker:  newBreaker(cfg.Breaker),
		log:      logging.With().Str("component", "coordinator").Logger(),
		inflight: make(map[string]*call),
		batches:  make(map[string]*batch),
	}
}

// Fetch returns the upstream value for key, deduplicating against any
// in-flight fetch for the same key and micro-batching with concurrent
// requests sharing its batch key.
//
// ctx only bounds this caller's wait. An abandoned wait does not cancel
// the shared fetch.
func (co *Coordinator) Fetch(ctx context.Context, key string, fetcher Fetcher) (any, error) {
	co.mu.Lock()

	if existing, ok := co.inflight[key]; ok {
		co.mu.Unlock()
		metrics.DedupedRequests.Inc()
		co.log.Trace().Str("key", key).Msg("deduplicated onto in-flight fetch")
		return existing.wait(ctx)
	}

	c := &call{done: make(chan struct{})}
	co.inflight[key] = c

	bk := co.batchKey(key)
	b, ok := co.batches[bk]
	if !ok {
		// First request of the window owns the batch and its fetcher.
		b = &batch{fetcher: fetcher}
		co.batches[bk] = b
		co.clock.AfterFunc(co.window, func() { co.flush(bk) })
	}
	b.waiters = append(b.waiters, waiter{key: key, call: c})

	co.mu.Unlock()
	return c.wait(ctx)
}

// flush executes one upstream fetch for the batch and settles every
// queued waiter with its single outcome.
func (co *Coordinator) flush(batchKey string) {
	co.mu.Lock()
	b := co.batches[batchKey]
	delete(co.batches, batchKey)
	co.mu.Unlock()

	if b == nil || len(b.waiters) == 0 {
		return
	}

	start := time.Now()
	val, err := co.breaker(func() (any, error) {
		return b.fetcher(context.Background())
	})
	metrics.ObserveFetch(start, err)
	metrics.BatchFlushSize.Observe(float64(len(b.waiters)))

	if err != nil {
		co.log.Debug().Err(err).Str("batch", batchKey).
			Int("waiters", len(b.waiters)).Msg("batch fetch failed")
	}

	// Clear the in-flight entries before settling so a request arriving
	// afterwards starts a fresh fetch instead of joining a settled one.
	co.mu.Lock()
	for _, w := range b.waiters {
		delete(co.inflight, w.key)
	}
	co.mu.Unlock()

	for _, w := range b.waiters {
		w.call.settle(val, err)
	}
}

// InFlight reports whether a fetch for key is currently outstanding.
func (co *Coordinator) InFlight(key string) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	_, ok := co.inflight[key]
	return ok
}

// queuedWaiters returns the current queue length for a batch key.
func (co *Coordinator) queuedWaiters(batchKey string) int {
	co.mu.Lock()
	defer co.mu.Unlock()
	if b, ok := co.batches[batchKey]; ok {
		return len(b.waiters)
	}
	return 0
}
