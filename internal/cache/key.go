// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

package cache

import (
	"crypto/sha256"
	"fmt"

	"github.com/goccy/go-json"
)

// GenerateKey builds a cache key from a logical name and its parameters.
// Parameters are serialized and hashed so equal queries always map to the
// same key. The name stays in clear text because the coordinator groups
// micro-batches by the key's prefix.
func GenerateKey(name string, params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		// Unmarshalable params still need a deterministic-enough key.
		return fmt.Sprintf("%s_%v", name, params)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s_%x", name, hash[:16])
}
