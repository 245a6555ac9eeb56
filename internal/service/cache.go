package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopmind-ai/shopmind/internal/domain"
)

// CacheStore defines the repository interface for cached answers
type CacheStore interface {
	LookupAndTouch(ctx context.Context, ownerID, queryHash string) (*domain.CacheEntry, error)
	Upsert(ctx context.Context, e *domain.CacheEntry) error
	Delete(ctx context.Context, ownerID, queryHash string) error
}

// SemanticCache serves prior answers keyed by an exact hash of the
// normalized query text. Matching is exact-hash only; the stored query
// embedding is kept for a possible similarity-threshold mode but lookup
// never consults it.
type SemanticCache struct {
	repo    CacheStore
	ttl     time.Duration
	uuidGen UUIDGenerator
}

// NewSemanticCache creates a SemanticCache. ttl <= 0 uses the default TTL.
func NewSemanticCache(repo CacheStore, ttl time.Duration) *SemanticCache {
	if ttl <= 0 {
		ttl = domain.DefaultCacheTTL
	}
	return &SemanticCache{
		repo:    repo,
		ttl:     ttl,
		uuidGen: &DefaultUUIDGenerator{},
	}
}

// NormalizeQuery canonicalizes query text before hashing: trimmed,
// whitespace collapsed, lowercased.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// HashQuery returns the cache key digest for a query.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached entry for the owner's query, bumping its hit
// count. A malformed stored response counts as a miss; the broken row is
// dropped so the next insert starts clean.
func (c *SemanticCache) Lookup(ctx context.Context, ownerID, query string) (*domain.CacheEntry, bool, error) {
	hash := HashQuery(query)

	entry, err := c.repo.LookupAndTouch(ctx, ownerID, hash)
	if err != nil {
		if errors.Is(err, domain.ErrCacheEntryNotFound) {
			return nil, false, nil
		}
		if errors.Is(err, domain.ErrCacheCorruption) {
			log.Printf("cache: corrupt entry treated as miss owner=%s hash=%s", ownerID, hash)
			if delErr := c.repo.Delete(ctx, ownerID, hash); delErr != nil {
				log.Printf("cache: failed to drop corrupt entry owner=%s: %v", ownerID, delErr)
			}
			return nil, false, nil
		}
		return nil, false, err
	}

	return entry, true, nil
}

// Insert upserts the answer for the owner's query, overwriting any prior
// (possibly expired) entry for the same key.
func (c *SemanticCache) Insert(ctx context.Context, ownerID, query string, response domain.CachedResponse, queryEmbedding []float32) error {
	now := time.Now().UTC()
	entry := &domain.CacheEntry{
		ID:             c.uuidGen.NewString(),
		OwnerID:        ownerID,
		QueryHash:      HashQuery(query),
		QueryEmbedding: queryEmbedding,
		Response:       response,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.ttl),
	}
	return c.repo.Upsert(ctx, entry)
}
