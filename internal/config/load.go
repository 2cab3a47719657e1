// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "PRAXCACHE_"

// sections are the top-level config keys an environment variable may
// address. The first underscore-separated segment of the variable name
// selects the section, the remainder keeps its underscores.
var sections = []string{
	"log", "server", "cache", "coordinator", "background", "sync", "upstream",
}

// Load builds the configuration from defaults, an optional YAML file,
// and PRAXCACHE_-prefixed environment variables, in that priority order.
// The file path comes from CONFIG_PATH or the first of a few well-known
// locations that exists; a missing file is not an error.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps PRAXCACHE_SERVER_SHUTDOWN_TIMEOUT to server.shutdown_timeout.
// Nested keys under a section use a second separator dot only for the
// breaker subsection (PRAXCACHE_COORDINATOR_BREAKER_TIMEOUT).
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, sec := range sections {
		if s == sec {
			return s
		}
		if strings.HasPrefix(s, sec+"_") {
			rest := strings.TrimPrefix(s, sec+"_")
			if sec == "coordinator" && strings.HasPrefix(rest, "breaker_") {
				return sec + ".breaker." + strings.TrimPrefix(rest, "breaker_")
			}
			return sec + "." + rest
		}
	}
	return s
}

// findConfigFile returns the config file path to load, or "" when none
// exists. CONFIG_PATH takes precedence over the search locations.
func findConfigFile() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	for _, path := range []string{
		"praxcache.yaml",
		"config/praxcache.yaml",
		"/etc/praxcache/praxcache.yaml",
	} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
