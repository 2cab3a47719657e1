// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/mtierney/praxcache/internal/cache"
	"github.com/mtierney/praxcache/internal/connectivity"
	"github.com/mtierney/praxcache/internal/logging"
	"github.com/mtierney/praxcache/internal/orchestrator"
	"github.com/mtierney/praxcache/internal/scheduler"
)

// Handler serves the ops endpoints. Scheduler and Notifier may be nil
// when the sync layer or connectivity signaling is disabled.
type Handler struct {
	stores   *cache.Registry
	orch     *orchestrator.Orchestrator
	sched    *scheduler.Scheduler
	notifier *connectivity.Notifier
}

// NewHandler creates the ops handler.
func NewHandler(stores *cache.Registry, orch *orchestrator.Orchestrator, sched *scheduler.Scheduler, notifier *connectivity.Notifier) *Handler {
	return &Handler{stores: stores, orch: orch, sched: sched, notifier: notifier}
}

// Healthz reports liveness. The cache is in-process memory, so being
// able to answer is the health check.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// CacheStats returns hit/miss/eviction counters and key counts per store.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.stores.StatsByStore())
}

// DeleteKey removes one key from every store that holds it.
func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		rw.BadRequest("missing or malformed cache key")
		return
	}

	deleted := false
	for _, store := range h.stores.All() {
		if store.Delete(key) {
			deleted = true
		}
	}
	if !deleted {
		rw.NotFound("key not cached")
		return
	}

	logger := logging.Ctx(r.Context())
	logger.Info().Str("key", key).Msg("Cache key deleted via ops API")
	rw.Success(map[string]string{"key": key})
}

// invalidateRequest is the body of POST /cache/invalidate.
type invalidateRequest struct {
	Tags []string `json:"tags"`
}

// Invalidate removes every entry carrying any of the request tags and
// triggers refetch for live reads over those tags.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if len(req.Tags) == 0 {
		rw.BadRequest("tags must be a non-empty array")
		return
	}

	removed := h.orch.InvalidateByTags(req.Tags)
	logger := logging.Ctx(r.Context())
	logger.Info().
		Strs("tags", req.Tags).
		Int("removed", removed).
		Msg("Tag invalidation via ops API")
	rw.Success(map[string]interface{}{
		"tags":    req.Tags,
		"removed": removed,
	})
}

// Purge sweeps expired entries from every store.
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	removed := h.stores.Purge()
	logger := logging.Ctx(r.Context())
	logger.Info().Int("removed", removed).Msg("Purge via ops API")
	NewResponseWriter(w, r).Success(map[string]int{"removed": removed})
}

// taskView is the JSON shape of a scheduled task. Fetchers are code,
// so only the descriptive fields are exposed.
type taskView struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id,omitempty"`
	Kind     string `json:"kind"`
	Interval string `json:"interval"`
	Key      string `json:"key"`
	Priority string `json:"priority"`
}

// SyncTasks lists the registered sync tasks.
func (h *Handler) SyncTasks(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.sched == nil {
		rw.Success([]taskView{})
		return
	}

	tasks := h.sched.Tasks()
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView{
			ID:       t.ID,
			OwnerID:  t.OwnerID,
			Kind:     string(t.Kind),
			Interval: t.Interval.String(),
			Key:      t.Options.Key,
			Priority: string(t.Options.Priority),
		})
	}
	rw.Success(views)
}

// RunSyncTask executes one task immediately, regardless of priority.
func (h *Handler) RunSyncTask(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.sched == nil {
		rw.NotFound("sync scheduler disabled")
		return
	}

	id := chi.URLParam(r, "id")
	result, ok := h.sched.RunTask(r.Context(), id)
	if !ok {
		rw.NotFound("unknown task ID")
		return
	}

	resp := map[string]interface{}{"id": id, "stale": result.IsStale}
	if result.Err != nil {
		resp["error"] = result.Err.Error()
	}
	rw.Success(resp)
}

// SetupSession registers the per-session sync task set for a user session.
func (h *Handler) SetupSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.sched == nil {
		rw.NotFound("sync scheduler disabled")
		return
	}

	sessionID := chi.URLParam(r, "id")
	registered := h.sched.SetupUserSync(sessionID)
	logger := logging.Ctx(r.Context())
	logger.Info().
		Str("session_id", sessionID).
		Int("tasks", registered).
		Msg("User sync session registered")
	rw.Accepted(map[string]interface{}{
		"session_id": sessionID,
		"tasks":      registered,
	})
}

// NotifyConnectivity injects a focus or online event, triggering
// revalidation of every registered query that has gone stale. The
// environment shell calls this when the application regains focus or
// the network comes back.
func (h *Handler) NotifyConnectivity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.notifier == nil {
		rw.NotFound("connectivity signaling disabled")
		return
	}

	event := chi.URLParam(r, "event")
	switch event {
	case "focus":
		h.notifier.NotifyFocus()
	case "online":
		h.notifier.NotifyOnline()
	default:
		rw.BadRequest("event must be focus or online")
		return
	}

	logger := logging.Ctx(r.Context())
	logger.Debug().Str("event", event).Msg("Connectivity event injected")
	rw.Accepted(map[string]string{"event": event})
}

// ClearSession unregisters every task owned by a user session.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.sched == nil {
		rw.NotFound("sync scheduler disabled")
		return
	}

	sessionID := chi.URLParam(r, "id")
	removed := h.sched.ClearUserSync(sessionID)
	logger := logging.Ctx(r.Context())
	logger.Info().
		Str("session_id", sessionID).
		Int("tasks", removed).
		Msg("User sync session cleared")
	rw.Success(map[string]interface{}{
		"session_id": sessionID,
		"removed":    removed,
	})
}
