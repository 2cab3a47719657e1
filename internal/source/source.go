// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

// Package source fetches cacheable records from the upstream CRM API.
// The upstream is key addressed: every cache key maps to one GET under
// the configured base URL, and responses are JSON documents stored
// verbatim in the cache.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/mtierney/praxcache/internal/logging"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 15 * time.Second

// Config points the client at the upstream CRM API.
type Config struct {
	// BaseURL is the URL prefix keys are resolved against,
	// e.g. http://crm.internal:8080/api/cache.
	BaseURL string

	// Timeout bounds each request. Default: DefaultTimeout.
	Timeout time.Duration
}

// Client fetches records from the upstream by cache key.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an upstream client. The base URL must be absolute.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("source: base URL %q is not absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Get fetches the record for one cache key and decodes the JSON body.
func (c *Client) Get(ctx context.Context, key string) (any, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("source: building request for %s: %w", key, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: fetching %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: fetching %s: upstream returned %d", key, resp.StatusCode)
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("source: decoding %s: %w", key, err)
	}

	logger := logging.Ctx(ctx)
	logger.Debug().
		Str("key", key).
		Dur("duration", time.Since(start)).
		Msg("Upstream fetch complete")
	return data, nil
}

// Fetcher returns a fetch function bound to one key, in the shape the
// read orchestrator expects.
func (c *Client) Fetcher(key string) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return c.Get(ctx, key)
	}
}
