// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

// Package main is the entry point for the praxcached server.
//
// Praxcached is the caching and background-sync daemon for the referral
// CRM. It sits between CRM clients and the upstream API, serving reads
// stale-while-revalidate from tag-partitioned in-memory stores,
// deduplicating and micro-batching upstream fetches, and keeping
// high-priority datasets warm on a periodic sync schedule.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//	1. Configuration: Koanf v2 layered load (defaults, YAML file, env)
//	2. Logging: zerolog global logger
//	3. Cache stores: general / user / analytics registries
//	4. Coordinator: request dedup, micro-batching, circuit breaker
//	5. Orchestrator: stale-while-revalidate read path
//	6. Upstream source: key-addressed CRM API client (optional)
//	7. Sync scheduler: periodic refresh of high-priority datasets
//	8. HTTP server: ops API (health, metrics, invalidation, sync)
//
// The scheduler and HTTP server run under a suture supervision tree and
// are restarted on failure.
//
// # Configuration
//
// Settings come from PRAXCACHE_-prefixed environment variables, an
// optional praxcache.yaml (path via CONFIG_PATH), and built-in
// defaults, highest priority first.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// within server.shutdown_timeout and the scheduler stops at the next
// safe point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtierney/praxcache/internal/api"
	"github.com/mtierney/praxcache/internal/cache"
	"github.com/mtierney/praxcache/internal/clock"
	"github.com/mtierney/praxcache/internal/config"
	"github.com/mtierney/praxcache/internal/connectivity"
	"github.com/mtierney/praxcache/internal/coordinator"
	"github.com/mtierney/praxcache/internal/logging"
	"github.com/mtierney/praxcache/internal/orchestrator"
	"github.com/mtierney/praxcache/internal/scheduler"
	"github.com/mtierney/praxcache/internal/source"
	"github.com/mtierney/praxcache/internal/supervisor"
	"github.com/mtierney/praxcache/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "praxcached: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logging.Info().
		Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Bool("sync_enabled", cfg.Sync.Enabled).
		Msg("Starting praxcached")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.System()

	stores := cache.NewRegistry(cache.Lifetimes{
		General:   cfg.Cache.GeneralTTL,
		User:      cfg.Cache.UserTTL,
		Analytics: cfg.Cache.AnalyticsTTL,
	}, clk)

	var breaker *coordinator.BreakerConfig
	if cfg.Coordinator.Breaker.Enabled {
		breaker = &coordinator.BreakerConfig{
			Name:             "upstream-crm",
			MaxRequests:      cfg.Coordinator.Breaker.MaxRequests,
			Interval:         cfg.Coordinator.Breaker.Interval,
			Timeout:          cfg.Coordinator.Breaker.Timeout,
			FailureThreshold: cfg.Coordinator.Breaker.FailureThreshold,
		}
	}
	co := coordinator.New(coordinator.Config{
		BatchWindow: cfg.Coordinator.BatchWindow,
		Breaker:     breaker,
	}, clk)

	notifier := connectivity.NewNotifier()
	orch := orchestrator.New(orchestrator.Config{
		BackgroundDelay: cfg.Background.Delay,
	}, stores, co, clk, notifier)
	defer orch.Close()

	var upstream *source.Client
	if cfg.Upstream.BaseURL != "" {
		upstream, err = source.NewClient(source.Config{
			BaseURL: cfg.Upstream.BaseURL,
			Timeout: cfg.Upstream.Timeout,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create upstream client")
		}
		logging.Info().Str("base_url", cfg.Upstream.BaseURL).Msg("Upstream CRM API configured")
	} else {
		logging.Warn().Msg("No upstream configured; sync tasks and session sync are disabled")
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	var sched *scheduler.Scheduler
	if cfg.Sync.Enabled && upstream != nil {
		sched = scheduler.New(scheduler.Config{
			Tick:          cfg.Sync.Tick,
			MaxConcurrent: cfg.Sync.MaxConcurrent,
		}, orch, clk, sessionTaskBuilder(upstream))

		for _, task := range defaultTasks(upstream) {
			sched.Schedule(task)
		}
		tree.AddSyncService(sched)
		logging.Info().
			Dur("tick", cfg.Sync.Tick).
			Int("tasks", len(sched.Tasks())).
			Msg("Sync scheduler added to supervisor tree")
	}

	handler := api.NewHandler(stores, orch, sched, notifier)
	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(api.RouterConfig{
			RateLimitRequests: cfg.Server.RateLimitRequests,
			RateLimitWindow:   cfg.Server.RateLimitWindow,
		}, handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	logging.Info().Msg("Praxcached stopped gracefully")
}
