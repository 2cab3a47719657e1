// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package main

import (
	"time"

	"github.com/mtierney/praxcache/internal/orchestrator"
	"github.com/mtierney/praxcache/internal/scheduler"
	"github.com/mtierney/praxcache/internal/source"
)

// defaultTasks is the standing sync set registered at startup. Only the
// high-priority tasks auto-run on the scheduler tick; the others are
// registered for manual runs via the ops API.
func defaultTasks(upstream *source.Client) []scheduler.Task {
	return []scheduler.Task{
		{
			ID:       "referral-sources",
			Kind:     scheduler.KindFull,
			Interval: 5 * time.Minute,
			Options: orchestrator.Options{
				Key:      "referrals_sources",
				Fetcher:  upstream.Fetcher("referrals_sources"),
				Tags:     []string{"referrals"},
				Priority: orchestrator.PriorityHigh,
			},
		},
		{
			ID:       "marketing-visits",
			Kind:     scheduler.KindIncremental,
			Interval: 2 * time.Minute,
			Options: orchestrator.Options{
				Key:      "visits_recent",
				Fetcher:  upstream.Fetcher("visits_recent"),
				Tags:     []string{"visits"},
				Priority: orchestrator.PriorityHigh,
			},
		},
		{
			ID:       "active-campaigns",
			Kind:     scheduler.KindFull,
			Interval: 10 * time.Minute,
			Options: orchestrator.Options{
				Key:      "campaigns_active",
				Fetcher:  upstream.Fetcher("campaigns_active"),
				Tags:     []string{"campaigns"},
				Priority: orchestrator.PriorityMedium,
			},
		},
		{
			ID:       "analytics-summary",
			Kind:     scheduler.KindFull,
			Interval: 15 * time.Minute,
			Options: orchestrator.Options{
				Key:      "analytics_summary",
				Fetcher:  upstream.Fetcher("analytics_summary"),
				Tags:     []string{"analytics"},
				Priority: orchestrator.PriorityLow,
			},
		},
	}
}

// sessionTaskBuilder returns the per-session task set registered when a
// user session starts sync via POST /api/v1/sync/sessions/{id}. Session
// data is keyed by session ID so each user warms their own entries.
func sessionTaskBuilder(upstream *source.Client) scheduler.TaskBuilder {
	return func(sessionID string) []scheduler.Task {
		return []scheduler.Task{
			{
				ID:       "session-referrals-" + sessionID,
				Kind:     scheduler.KindFull,
				Interval: 5 * time.Minute,
				Options: orchestrator.Options{
					Key:      "referrals_session_" + sessionID,
					Fetcher:  upstream.Fetcher("referrals_session_" + sessionID),
					Tags:     []string{"user", "referrals"},
					Priority: orchestrator.PriorityHigh,
				},
			},
			{
				ID:       "session-visits-" + sessionID,
				Kind:     scheduler.KindIncremental,
				Interval: 2 * time.Minute,
				Options: orchestrator.Options{
					Key:      "visits_session_" + sessionID,
					Fetcher:  upstream.Fetcher("visits_session_" + sessionID),
					Tags:     []string{"user", "visits"},
					Priority: orchestrator.PriorityHigh,
				},
			},
		}
	}
}
