// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheCounters(t *testing.T) {
	before := testutil.ToFloat64(CacheHits.WithLabelValues("general"))
	CacheHits.WithLabelValues("general").Inc()
	after := testutil.ToFloat64(CacheHits.WithLabelValues("general"))
	if after != before+1 {
		t.Errorf("expected hit counter to increment, got %v -> %v", before, after)
	}
}

func TestObserveFetchOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{name: "success maps to success label", err: nil, outcome: "success"},
		{name: "failure maps to error label", err: errors.New("upstream down"), outcome: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now().Add(-10 * time.Millisecond)
			beforeCount := testutil.CollectAndCount(FetchDuration)
			ObserveFetch(start, tt.err)
			if testutil.CollectAndCount(FetchDuration) < beforeCount {
				t.Error("expected fetch histogram to retain series after observe")
			}
		})
	}
}

func TestSyncTaskGauge(t *testing.T) {
	SyncTasksRegistered.Set(3)
	if got := testutil.ToFloat64(SyncTasksRegistered); got != 3 {
		t.Errorf("expected gauge 3, got %v", got)
	}
	SyncTasksRegistered.Set(0)
}
