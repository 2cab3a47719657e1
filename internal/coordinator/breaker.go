// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package coordinator

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mtierney/praxcache/internal/logging"
	"github.com/mtierney/praxcache/internal/metrics"
)

// BreakerConfig configures the optional upstream circuit breaker.
// An open breaker fails fetches fast; the failure flows into the
// orchestrator's fallback path like any other upstream error.
type BreakerConfig struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval over which closed-state counts are reset.
	Interval time.Duration

	// Timeout before an open breaker transitions to half-open.
	Timeout time.Duration

	// FailureThreshold is the consecutive-failure count that trips
	// the breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns conservative production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "upstream",
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// breakerFunc executes one upstream call, possibly through a breaker.
type breakerFunc func(fn func() (any, error)) (any, error)

// newBreaker builds the upstream execution wrapper. A nil config yields
// a pass-through.
func newBreaker(cfg *BreakerConfig) breakerFunc {
	if cfg == nil {
		return func(fn func() (any, error)) (any, error) { return fn() }
	}

	c := *cfg
	if c.Name == "" {
		c.Name = "upstream"
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        c.Name,
		MaxRequests: c.MaxRequests,
		Interval:    c.Interval,
		Timeout:     c.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.Set(float64(to))
			logging.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return cb.Execute
}
