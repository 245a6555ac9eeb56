package jobs

import (
	"context"
	"fmt"
	"log"
)

// ExpiredCacheStore defines the interface for removing expired cache rows
type ExpiredCacheStore interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// CacheSweeper removes expired cache entries in the background. Expired
// rows are already invisible to lookups; the sweep only reclaims storage,
// so a failed pass is retried on the next tick with nothing lost.
type CacheSweeper struct {
	store ExpiredCacheStore
}

// NewCacheSweeper creates a new CacheSweeper instance
func NewCacheSweeper(store ExpiredCacheStore) *CacheSweeper {
	return &CacheSweeper{store: store}
}

// ProcessJobs implements the JobProcessor interface
func (s *CacheSweeper) ProcessJobs(ctx context.Context) error {
	removed, err := s.store.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep expired cache entries: %w", err)
	}
	if removed > 0 {
		log.Printf("Swept %d expired cache entries", removed)
	}
	return nil
}
