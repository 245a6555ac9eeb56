package domain

import (
	"fmt"
	"time"
)

// DefaultCacheTTL is how long a cached answer stays live.
const DefaultCacheTTL = 24 * time.Hour

// CachedResponse is the answer payload stored on a cache entry.
type CachedResponse struct {
	Answer       string   `json:"answer"`
	Sources      []string `json:"sources"`
	Confidence   float64  `json:"confidence"`
	ContextItems int      `json:"context_items"`
}

// CacheEntry is a prior answer keyed by (owner, hash of normalized query).
// At most one live entry exists per key; expiry is lazy, checked on lookup.
type CacheEntry struct {
	ID             string
	OwnerID        string
	QueryHash      string
	QueryEmbedding []float32
	Response       CachedResponse
	HitCount       int
	LastHitAt      time.Time
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// IsExpired reports whether the entry is past its TTL at the given instant.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// ValidateCacheEntry validates a CacheEntry instance
func ValidateCacheEntry(e *CacheEntry) error {
	if e == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	if e.OwnerID == "" {
		return fmt.Errorf("cache entry OwnerID is required")
	}

	if e.QueryHash == "" {
		return fmt.Errorf("cache entry QueryHash is required")
	}

	if e.Response.Answer == "" {
		return fmt.Errorf("cache entry Response.Answer is required")
	}

	if e.ExpiresAt.IsZero() {
		return fmt.Errorf("cache entry ExpiresAt is required")
	}

	return nil
}
