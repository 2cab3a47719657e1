// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

// Package config loads service configuration with Koanf v2 from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables (highest priority, PRAXCACHE_ prefix).
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root service configuration.
type Config struct {
	Log         LogConfig         `koanf:"log"`
	Server      ServerConfig      `koanf:"server"`
	Cache       CacheConfig       `koanf:"cache"`
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	Background  BackgroundConfig  `koanf:"background"`
	Sync        SyncConfig        `koanf:"sync"`
	Upstream    UpstreamConfig    `koanf:"upstream"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// CacheConfig sets the default lifetime per store instance.
type CacheConfig struct {
	GeneralTTL   time.Duration `koanf:"general_ttl"`
	UserTTL      time.Duration `koanf:"user_ttl"`
	AnalyticsTTL time.Duration `koanf:"analytics_ttl"`
}

// CoordinatorConfig controls dedup/batching and the upstream breaker.
type CoordinatorConfig struct {
	BatchWindow time.Duration `koanf:"batch_window"`
	Breaker     BreakerConfig `koanf:"breaker"`
}

// BreakerConfig controls the optional upstream circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
}

// BackgroundConfig controls stale-while-revalidate refresh.
type BackgroundConfig struct {
	Delay time.Duration `koanf:"delay"`
}

// SyncConfig controls the background sync scheduler.
type SyncConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Tick          time.Duration `koanf:"tick"`
	MaxConcurrent int           `koanf:"max_concurrent"`
}

// UpstreamConfig points at the key-addressed remote data source.
type UpstreamConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// defaultConfig returns every setting with its production default.
func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8784,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Cache: CacheConfig{
			GeneralTTL:   15 * time.Minute,
			UserTTL:      10 * time.Minute,
			AnalyticsTTL: 5 * time.Minute,
		},
		Coordinator: CoordinatorConfig{
			BatchWindow: 50 * time.Millisecond,
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
			},
		},
		Background: BackgroundConfig{
			Delay: 100 * time.Millisecond,
		},
		Sync: SyncConfig{
			Enabled:       true,
			Tick:          30 * time.Second,
			MaxConcurrent: 4,
		},
		Upstream: UpstreamConfig{
			BaseURL: "",
			Timeout: 15 * time.Second,
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: must be json or console, got %q", c.Log.Format)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitRequests < 1 {
		return fmt.Errorf("server.rate_limit_requests: must be positive")
	}

	for name, ttl := range map[string]time.Duration{
		"cache.general_ttl":   c.Cache.GeneralTTL,
		"cache.user_ttl":      c.Cache.UserTTL,
		"cache.analytics_ttl": c.Cache.AnalyticsTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s: must be positive", name)
		}
	}

	if c.Coordinator.BatchWindow <= 0 {
		return fmt.Errorf("coordinator.batch_window: must be positive")
	}
	if c.Background.Delay <= 0 {
		return fmt.Errorf("background.delay: must be positive")
	}
	if c.Sync.Tick <= 0 {
		return fmt.Errorf("sync.tick: must be positive")
	}
	if c.Sync.MaxConcurrent < 1 {
		return fmt.Errorf("sync.max_concurrent: must be positive")
	}

	if c.Upstream.BaseURL != "" {
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("upstream.base_url: %q is not an absolute URL", c.Upstream.BaseURL)
		}
	}
	return nil
}
