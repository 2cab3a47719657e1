// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtierney/praxcache/internal/cache"
	"github.com/mtierney/praxcache/internal/clock"
	"github.com/mtierney/praxcache/internal/coordinator"
	"github.com/mtierney/praxcache/internal/orchestrator"
)

type fixture struct {
	clk    *clock.Fake
	stores *cache.Registry
	co     *coordinator.Coordinator
	orch   *orchestrator.Orchestrator
	sched  *Scheduler
}

func newFixture(builder TaskBuilder) *fixture {
	clk := clock.NewFake()
	stores := cache.NewRegistry(cache.DefaultLifetimes(), clk)
	co := coordinator.New(coordinator.Config{}, clk)
	orch := orchestrator.New(orchestrator.Config{}, stores, co, clk, nil)
	return &fixture{
		clk:    clk,
		stores: stores,
		co:     co,
		orch:   orch,
		sched:  New(Config{}, orch, clk, builder),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// runDueBlocking drives one scheduler pass to completion, advancing the
// fake clock past the coordinator batch window the fetches wait on.
func (f *fixture) runDueBlocking(t *testing.T, keys ...string) int {
	t.Helper()
	done := make(chan int, 1)
	go func() { done <- f.sched.runDue(context.Background()) }()
	for _, key := range keys {
		waitFor(t, func() bool { return f.co.InFlight(key) })
	}
	if len(keys) > 0 {
		f.clk.Advance(coordinator.DefaultBatchWindow)
	}
	return <-done
}

func highTask(id, key string, calls *atomic.Int32) Task {
	return Task{
		ID:       id,
		Kind:     KindFull,
		Interval: 5 * time.Minute,
		Options: orchestrator.Options{
			Key:      key,
			Priority: orchestrator.PriorityHigh,
			Fetcher: func(ctx context.Context) (any, error) {
				calls.Add(1)
				return "warm", nil
			},
		},
	}
}

func TestScheduleReplacesDuplicateID(t *testing.T) {
	f := newFixture(nil)
	var calls atomic.Int32

	f.sched.Schedule(highTask("t1", "sources_u1", &calls))
	f.sched.Schedule(highTask("t1", "visits_u1", &calls))

	tasks := f.sched.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected duplicate ID to replace, got %d tasks", len(tasks))
	}
	if tasks[0].Options.Key != "visits_u1" {
		t.Errorf("expected replacement to win, got %s", tasks[0].Options.Key)
	}
}

func TestScheduleGeneratesID(t *testing.T) {
	f := newFixture(nil)
	var calls atomic.Int32

	task := highTask("", "sources_u1", &calls)
	id := f.sched.Schedule(task)
	if id == "" {
		t.Error("expected generated task ID")
	}
}

func TestRunDueOnlyHighPriority(t *testing.T) {
	f := newFixture(nil)
	var highCalls, medCalls atomic.Int32

	f.sched.Schedule(highTask("high", "sources_u1", &highCalls))

	med := highTask("med", "campaigns", &medCalls)
	med.Options.Priority = orchestrator.PriorityMedium
	f.sched.Schedule(med)

	ran := f.runDueBlocking(t, "sources_u1")
	if ran != 1 {
		t.Errorf("expected 1 task run, got %d", ran)
	}
	if highCalls.Load() != 1 || medCalls.Load() != 0 {
		t.Errorf("expected only high-priority task to run, got high=%d med=%d",
			highCalls.Load(), medCalls.Load())
	}

	// The warmed value landed in the shared store.
	if v, ok := f.stores.ForTags(nil).Get("sources_u1", ""); !ok || v != "warm" {
		t.Errorf("expected warmed cache entry, got %v %v", v, ok)
	}
}

func TestRunDueRespectsInterval(t *testing.T) {
	f := newFixture(nil)
	var calls atomic.Int32

	f.sched.Schedule(highTask("t1", "sources_u1", &calls))

	if ran := f.runDueBlocking(t, "sources_u1"); ran != 1 {
		t.Fatalf("expected first pass to run the task, got %d", ran)
	}
	if ran := f.runDueBlocking(t); ran != 0 {
		t.Errorf("expected nothing due before the interval, got %d", ran)
	}

	f.clk.Advance(5 * time.Minute)
	// Due again. The 15m default CacheTime means this run resolves as a
	// cache hit without an upstream call; it still counts as a task run.
	if ran := f.runDueBlocking(t); ran != 1 {
		t.Errorf("expected task due again after interval, got %d", ran)
	}
}

func TestUserSyncLifecycle(t *testing.T) {
	var calls atomic.Int32
	builder := func(sessionID string) []Task {
		return []Task{
			highTask("sources-"+sessionID, fmt.Sprintf("sources_%s", sessionID), &calls),
			highTask("visits-"+sessionID, fmt.Sprintf("visits_%s", sessionID), &calls),
		}
	}
	f := newFixture(builder)

	if n := f.sched.SetupUserSync("u1"); n != 2 {
		t.Fatalf("expected 2 tasks registered, got %d", n)
	}
	if len(f.sched.Tasks()) != 2 {
		t.Fatalf("expected 2 registered tasks")
	}
	for _, task := range f.sched.Tasks() {
		if task.OwnerID != "u1" {
			t.Errorf("expected owner u1, got %q", task.OwnerID)
		}
	}

	if n := f.sched.ClearUserSync("u1"); n != 2 {
		t.Errorf("expected 2 tasks cleared, got %d", n)
	}
	if len(f.sched.Tasks()) != 0 {
		t.Error("expected empty registry after clear")
	}
}

func TestClearUserSyncLeavesOtherSessions(t *testing.T) {
	f := newFixture(nil)
	var calls atomic.Int32

	t1 := highTask("t1", "sources_u1", &calls)
	t1.OwnerID = "u1"
	t2 := highTask("t2", "sources_u2", &calls)
	t2.OwnerID = "u2"
	f.sched.Schedule(t1)
	f.sched.Schedule(t2)

	if n := f.sched.ClearUserSync("u1"); n != 1 {
		t.Errorf("expected 1 task cleared, got %d", n)
	}
	tasks := f.sched.Tasks()
	if len(tasks) != 1 || tasks[0].OwnerID != "u2" {
		t.Errorf("expected u2's task to survive, got %+v", tasks)
	}
}

func TestUnschedule(t *testing.T) {
	f := newFixture(nil)
	var calls atomic.Int32

	f.sched.Schedule(highTask("t1", "sources_u1", &calls))
	if !f.sched.Unschedule("t1") {
		t.Error("expected unschedule to find the task")
	}
	if f.sched.Unschedule("t1") {
		t.Error("expected second unschedule to be a no-op")
	}
}

func TestRunTask(t *testing.T) {
	f := newFixture(nil)
	var calls atomic.Int32

	low := highTask("low", "reports_q1", &calls)
	low.Options.Priority = orchestrator.PriorityLow
	f.sched.Schedule(low)

	if _, ok := f.sched.RunTask(context.Background(), "missing"); ok {
		t.Error("expected unknown task ID to report false")
	}

	// Manual runs ignore the priority gate.
	type outcome struct {
		res orchestrator.Result
		ok  bool
	}
	done := make(chan outcome, 1)
	go func() {
		res, ok := f.sched.RunTask(context.Background(), "low")
		done <- outcome{res, ok}
	}()
	waitFor(t, func() bool { return f.co.InFlight("reports_q1") })
	f.clk.Advance(coordinator.DefaultBatchWindow)

	out := <-done
	if !out.ok || out.res.Err != nil {
		t.Fatalf("expected successful manual run, got %+v", out)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 fetch, got %d", calls.Load())
	}
}
