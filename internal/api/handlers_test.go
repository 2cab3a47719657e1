// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/mtierney/praxcache/internal/cache"
	"github.com/mtierney/praxcache/internal/clock"
	"github.com/mtierney/praxcache/internal/connectivity"
	"github.com/mtierney/praxcache/internal/coordinator"
	"github.com/mtierney/praxcache/internal/orchestrator"
	"github.com/mtierney/praxcache/internal/scheduler"
)

type fixture struct {
	clk    *clock.Fake
	stores *cache.Registry
	orch   *orchestrator.Orchestrator
	sched  *scheduler.Scheduler
	router http.Handler
}

func (f *fixture) advance(d time.Duration) {
	f.clk.Advance(d)
}

func newFixture(t *testing.T, builder scheduler.TaskBuilder) *fixture {
	t.Helper()

	clk := clock.NewFake()
	stores := cache.NewRegistry(cache.DefaultLifetimes(), clk)
	co := coordinator.New(coordinator.Config{}, clk)
	notifier := connectivity.NewNotifier()
	orch := orchestrator.New(orchestrator.Config{}, stores, co, clk, notifier)
	t.Cleanup(orch.Close)
	sched := scheduler.New(scheduler.Config{}, orch, clk, builder)

	handler := NewHandler(stores, orch, sched, notifier)
	return &fixture{
		clk:    clk,
		stores: stores,
		orch:   orch,
		sched:  sched,
		router: NewRouter(DefaultRouterConfig(), handler),
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("expected success envelope")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "praxcache") {
		t.Error("metrics output missing praxcache collectors")
	}
}

func TestCacheStats(t *testing.T) {
	f := newFixture(t, nil)
	f.stores.Store(cache.StoreGeneral).Set("referrals_abc", "v", cache.SetOptions{})

	rec := f.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	stats, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("stats payload has type %T", resp.Data)
	}
	for _, name := range []string{cache.StoreGeneral, cache.StoreUser, cache.StoreAnalytics} {
		if _, ok := stats[name]; !ok {
			t.Errorf("stats missing store %q", name)
		}
	}
}

func TestDeleteKey(t *testing.T) {
	f := newFixture(t, nil)
	f.stores.Store(cache.StoreUser).Set("visits_123", "v", cache.SetOptions{})

	rec := f.do(t, http.MethodDelete, "/api/v1/cache/keys/visits_123", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, ok := f.stores.Store(cache.StoreUser).Peek("visits_123"); ok {
		t.Error("key still cached after delete")
	}

	rec = f.do(t, http.MethodDelete, "/api/v1/cache/keys/visits_123", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestInvalidateByTags(t *testing.T) {
	f := newFixture(t, nil)
	f.stores.Store(cache.StoreUser).Set("referrals_1", "v", cache.SetOptions{Tags: []string{"referrals"}})
	f.stores.Store(cache.StoreUser).Set("visits_1", "v", cache.SetOptions{Tags: []string{"visits"}})

	rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", `{"tags":["referrals"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, ok := f.stores.Store(cache.StoreUser).Peek("referrals_1"); ok {
		t.Error("tagged entry survived invalidation")
	}
	if _, ok := f.stores.Store(cache.StoreUser).Peek("visits_1"); !ok {
		t.Error("untagged entry was removed")
	}
}

func TestInvalidateRejectsEmptyTags(t *testing.T) {
	f := newFixture(t, nil)
	for _, body := range []string{`{}`, `{"tags":[]}`, `not json`} {
		rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestPurge(t *testing.T) {
	f := newFixture(t, nil)
	store := f.stores.Store(cache.StoreGeneral)
	store.Set("short_1", "v", cache.SetOptions{TTL: time.Minute})

	// The fixture clock never moves, so nothing is expired yet.
	rec := f.do(t, http.MethodPost, "/api/v1/cache/purge", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	if data["removed"].(float64) != 0 {
		t.Errorf("removed = %v, want 0", data["removed"])
	}
}

func TestSyncTaskLifecycle(t *testing.T) {
	builder := func(sessionID string) []scheduler.Task {
		return []scheduler.Task{{
			ID:       "referrals-" + sessionID,
			Kind:     scheduler.KindFull,
			Interval: 5 * time.Minute,
			Options: orchestrator.Options{
				Key:      "referrals_" + sessionID,
				Priority: orchestrator.PriorityHigh,
				Tags:     []string{"referrals"},
				Fetcher: func(ctx context.Context) (any, error) {
					return "synced", nil
				},
			},
		}}
	}
	f := newFixture(t, builder)

	rec := f.do(t, http.MethodPost, "/api/v1/sync/sessions/sess1", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("setup status = %d, want 202", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/sync/tasks", "")
	resp := decodeResponse(t, rec)
	tasks := resp.Data.([]interface{})
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}

	rec = f.do(t, http.MethodDelete, "/api/v1/sync/sessions/sess1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", rec.Code)
	}
	if len(f.sched.Tasks()) != 0 {
		t.Error("tasks remain after session clear")
	}
}

func TestRunSyncTask(t *testing.T) {
	f := newFixture(t, nil)
	id := f.sched.Schedule(scheduler.Task{
		Kind:     scheduler.KindIncremental,
		Interval: time.Minute,
		Options: orchestrator.Options{
			Key:      "campaigns_all",
			Priority: orchestrator.PriorityLow,
			Fetcher: func(ctx context.Context) (any, error) {
				return []string{"spring-promo"}, nil
			},
		},
	})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- f.do(t, http.MethodPost, "/api/v1/sync/tasks/"+id+"/run", "")
	}()

	// The run blocks on the coordinator batch window; drive the clock
	// until the request completes.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case rec := <-done:
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
			}
			if _, ok := f.stores.Store(cache.StoreGeneral).Peek("campaigns_all"); !ok {
				t.Error("manual run did not warm the store")
			}
			return
		case <-deadline:
			t.Fatal("manual task run never completed")
		default:
			f.advance(coordinator.DefaultBatchWindow)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestNotifyConnectivity(t *testing.T) {
	f := newFixture(t, nil)

	for _, event := range []string{"focus", "online"} {
		rec := f.do(t, http.MethodPost, "/api/v1/connectivity/"+event, "")
		if rec.Code != http.StatusAccepted {
			t.Errorf("event %q: status = %d, want 202", event, rec.Code)
		}
	}

	rec := f.do(t, http.MethodPost, "/api/v1/connectivity/teleport", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown event status = %d, want 400", rec.Code)
	}
}

func TestRunSyncTaskUnknownID(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/v1/sync/tasks/nope/run", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
