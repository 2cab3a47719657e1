// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig tunes the shared rate limit on the /api/v1 routes.
// Health and metrics endpoints are never rate limited.
type RouterConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// DefaultRouterConfig returns the production rate limit.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	}
}

// NewRouter wires the ops endpoints onto a chi router.
func NewRouter(cfg RouterConfig, handler *Handler) http.Handler {
	if cfg.RateLimitRequests <= 0 {
		cfg = DefaultRouterConfig()
	}

	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(AccessLog())

	r.Get("/healthz", handler.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", handler.CacheStats)
			r.Delete("/keys/{key}", handler.DeleteKey)
			r.Post("/invalidate", handler.Invalidate)
			r.Post("/purge", handler.Purge)
		})

		r.Post("/connectivity/{event}", handler.NotifyConnectivity)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/tasks", handler.SyncTasks)
			r.Post("/tasks/{id}/run", handler.RunSyncTask)
			r.Post("/sessions/{id}", handler.SetupSession)
			r.Delete("/sessions/{id}", handler.ClearSession)
		})
	})

	return r
}
