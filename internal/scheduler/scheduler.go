// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

// Package scheduler keeps high-priority data warm independent of any
// active consumer. It holds a process-wide registry of periodic refresh
// tasks keyed by task ID, registered and cleared per user session, and
// drives due tasks through the fetch orchestrator so results land in the
// same cache stores under the same dedup and batching rules.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mtierney/praxcache/internal/clock"
	"github.com/mtierney/praxcache/internal/logging"
	"github.com/mtierney/praxcache/internal/metrics"
	"github.com/mtierney/praxcache/internal/orchestrator"
)

// Kind distinguishes full reloads from incremental updates. The scheduler
// records it for operators and metrics; the fetcher embodies the actual
// difference.
type Kind string

// Task kinds.
const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
)

// Task is one periodic refresh registration.
type Task struct {
	// ID identifies the task; scheduling a duplicate ID replaces the
	// previous registration. Empty gets a generated ID.
	ID string

	// OwnerID ties the task to a user session; ClearUserSync removes
	// every task sharing it.
	OwnerID string

	Kind     Kind
	Interval time.Duration

	// Options is the read policy executed on each run. Its Priority
	// gates auto-scheduling: only high-priority tasks run on the tick.
	Options orchestrator.Options
}

// TaskBuilder produces the task set registered when a user session
// starts.
type TaskBuilder func(sessionID string) []Task

// Config parameterizes the Scheduler.
type Config struct {
	// Tick is the shared timer loop interval. Default 30s.
	Tick time.Duration

	// MaxConcurrent bounds how many due tasks run per tick. Default 4.
	MaxConcurrent int
}

type taskState struct {
	task    Task
	nextRun time.Time
}

// Scheduler is the process-wide background sync registry and loop.
type Scheduler struct {
	orch    *orchestrator.Orchestrator
	clock   clock.Clock
	tick    time.Duration
	maxConc int
	builder TaskBuilder
	log     zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*taskState
}

// New creates a Scheduler. builder may be nil when sessions register
// their tasks explicitly through Schedule.
func New(cfg Config, orch *orchestrator.Orchestrator, clk clock.Clock, builder TaskBuilder) *Scheduler {
	if clk == nil {
		clk = clock.System()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Scheduler{
		orch:    orch,
		clock:   clk,
		tick:    cfg.Tick,
		maxConc: cfg.MaxConcurrent,
		builder: builder,
		log:     logging.With().Str("component", "scheduler").Logger(),
		tasks:   make(map[string]*taskState),
	}
}

// Schedule registers a task, replacing any previous registration under
// the same ID. The task is due immediately at the next tick.
func (s *Scheduler) Schedule(task Task) string {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Kind == "" {
		task.Kind = KindFull
	}
	task.Options = normalizeTaskOptions(task.Options)

	s.mu.Lock()
	s.tasks[task.ID] = &taskState{task: task, nextRun: s.clock.Now()}
	n := len(s.tasks)
	s.mu.Unlock()

	metrics.SyncTasksRegistered.Set(float64(n))
	s.log.Debug().Str("task", task.ID).Str("owner", task.OwnerID).
		Str("priority", string(task.Options.Priority)).Msg("sync task scheduled")
	return task.ID
}

func normalizeTaskOptions(opts orchestrator.Options) orchestrator.Options {
	// Scheduled runs are one-shot, so ambient focus/reconnect signals
	// never apply to them. Stale-while-revalidate stays on: a stale
	// scheduled read is exactly what the warming refresh is for.
	opts.DisableFocusRefetch = true
	opts.DisableReconnectRefetch = true
	return opts
}

// Unschedule removes one task and reports whether it existed.
func (s *Scheduler) Unschedule(id string) bool {
	s.mu.Lock()
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	n := len(s.tasks)
	s.mu.Unlock()

	metrics.SyncTasksRegistered.Set(float64(n))
	return ok
}

// SetupUserSync registers the builder's task set for a session and
// returns how many tasks were added.
func (s *Scheduler) SetupUserSync(sessionID string) int {
	if s.builder == nil {
		return 0
	}
	tasks := s.builder(sessionID)
	for i := range tasks {
		tasks[i].OwnerID = sessionID
		s.Schedule(tasks[i])
	}
	s.log.Info().Str("session", sessionID).Int("tasks", len(tasks)).
		Msg("user sync configured")
	return len(tasks)
}

// ClearUserSync removes every task owned by the session.
func (s *Scheduler) ClearUserSync(sessionID string) int {
	s.mu.Lock()
	removed := 0
	for id, st := range s.tasks {
		if st.task.OwnerID == sessionID {
			delete(s.tasks, id)
			removed++
		}
	}
	n := len(s.tasks)
	s.mu.Unlock()

	metrics.SyncTasksRegistered.Set(float64(n))
	s.log.Info().Str("session", sessionID).Int("tasks", removed).
		Msg("user sync cleared")
	return removed
}

// Tasks returns a snapshot of the registered tasks.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, st := range s.tasks {
		out = append(out, st.task)
	}
	return out
}

// RunTask executes one registered task immediately regardless of
// priority or due time, for the ops surface. It reports whether the ID
// was known.
func (s *Scheduler) RunTask(ctx context.Context, id string) (orchestrator.Result, bool) {
	s.mu.Lock()
	st, ok := s.tasks[id]
	if ok {
		st.nextRun = s.clock.Now().Add(st.task.Interval)
	}
	s.mu.Unlock()

	if !ok {
		return orchestrator.Result{}, false
	}
	return s.execute(ctx, st.task), true
}

// Serve implements suture.Service: the single shared timer loop. Due
// high-priority tasks run every tick until the context is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.Info().Dur("tick", s.tick).Msg("background sync started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("background sync stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Scheduler) String() string {
	return "sync-scheduler"
}

// runDue executes every due high-priority task and returns how many ran.
// Lower priorities are registered but never auto-run; priority gates
// scheduling eligibility only.
func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	due := make([]Task, 0)
	for _, st := range s.tasks {
		if st.task.Options.Priority != orchestrator.PriorityHigh {
			continue
		}
		if st.nextRun.After(now) {
			continue
		}
		st.nextRun = now.Add(st.task.Interval)
		due = append(due, st.task)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConc)
	for _, task := range due {
		g.Go(func() error {
			s.execute(gctx, task)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // task errors ride in Result.Err
	return len(due)
}

// execute runs one task through the orchestrator path.
func (s *Scheduler) execute(ctx context.Context, task Task) orchestrator.Result {
	res := s.orch.Fetch(ctx, task.Options)
	metrics.SyncTaskRuns.WithLabelValues(string(task.Kind), string(task.Options.Priority)).Inc()
	if res.Err != nil {
		metrics.SyncTaskErrors.WithLabelValues(string(task.Kind), string(task.Options.Priority)).Inc()
		s.log.Warn().Err(res.Err).Str("task", task.ID).Msg("sync task failed")
	}
	return res
}
