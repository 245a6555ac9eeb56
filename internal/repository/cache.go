package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/shopmind-ai/shopmind/internal/domain"
)

// CacheRepository persists cached answers keyed by (owner, query hash).
type CacheRepository struct {
	db dbtx
}

func NewCacheRepository(pool *pgxpool.Pool) *CacheRepository {
	return &CacheRepository{db: pool}
}

// LookupAndTouch returns the live entry for the key and bumps its hit count
// in the same statement, so concurrent hits never lose an increment. Expired
// rows are invisible here; they are reclaimed by SweepExpired.
func (r *CacheRepository) LookupAndTouch(ctx context.Context, ownerID, queryHash string) (*domain.CacheEntry, error) {
	now := time.Now().UTC()

	var e domain.CacheEntry
	var response []byte
	var lastHitAt *time.Time
	err := r.db.QueryRow(ctx,
		`UPDATE cache_entries
		 SET hit_count = hit_count + 1, last_hit_at = $1
		 WHERE owner_id = $2 AND query_hash = $3 AND expires_at > $1
		 RETURNING id, owner_id, query_hash, response, hit_count, last_hit_at, created_at, expires_at`,
		now, ownerID, queryHash,
	).Scan(&e.ID, &e.OwnerID, &e.QueryHash, &response, &e.HitCount, &lastHitAt, &e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCacheEntryNotFound
		}
		return nil, err
	}
	if lastHitAt != nil {
		e.LastHitAt = *lastHitAt
	}

	if err := json.Unmarshal(response, &e.Response); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeCacheCorruption, "stored cache response is malformed", err)
	}
	if e.Response.Answer == "" {
		return nil, domain.ErrCacheCorruption
	}

	return &e, nil
}

// Upsert writes the entry, overwriting any prior row (live or expired) for
// the same (owner, query hash) key.
func (r *CacheRepository) Upsert(ctx context.Context, e *domain.CacheEntry) error {
	if err := domain.ValidateCacheEntry(e); err != nil {
		return err
	}

	response, err := json.Marshal(e.Response)
	if err != nil {
		return fmt.Errorf("failed to marshal cached response: %w", err)
	}

	var embedding any
	if len(e.QueryEmbedding) > 0 {
		embedding = pgvector.NewVector(e.QueryEmbedding)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO cache_entries (id, owner_id, query_hash, query_embedding, response, hit_count, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		 ON CONFLICT (owner_id, query_hash) DO UPDATE
		 SET query_embedding = EXCLUDED.query_embedding,
		     response = EXCLUDED.response,
		     hit_count = 0,
		     last_hit_at = NULL,
		     created_at = EXCLUDED.created_at,
		     expires_at = EXCLUDED.expires_at`,
		e.ID, e.OwnerID, e.QueryHash, embedding, response, e.CreatedAt, e.ExpiresAt,
	)
	return err
}

// Delete removes the entry for the key regardless of expiry.
func (r *CacheRepository) Delete(ctx context.Context, ownerID, queryHash string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM cache_entries WHERE owner_id = $1 AND query_hash = $2`,
		ownerID, queryHash,
	)
	return err
}

// SweepExpired deletes rows past their TTL and reports how many were removed.
func (r *CacheRepository) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= $1`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
