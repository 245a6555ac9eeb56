package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/shopmind-ai/shopmind/internal/domain"
)

// KnowledgeRepository persists and searches the append-only knowledge store.
// Every query is owner-scoped; there is deliberately no unscoped variant.
type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func (r *KnowledgeRepository) Create(ctx context.Context, e *domain.KnowledgeEntry) error {
	if err := domain.ValidateKnowledgeEntry(e); err != nil {
		return err
	}

	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal entry metadata: %w", err)
	}

	var embedding any
	if len(e.Embedding) > 0 {
		embedding = pgvector.NewVector(e.Embedding)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO knowledge_entries (id, owner_id, content, content_type, topics, metadata, embedding, importance_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.OwnerID, e.Content, e.ContentType, e.Topics, metadata, embedding, e.ImportanceScore, e.CreatedAt,
	)
	return err
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, ownerID, id string) (*domain.KnowledgeEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, owner_id, content, content_type, topics, metadata, importance_score, created_at
		 FROM knowledge_entries WHERE owner_id = $1 AND id = $2`,
		ownerID, id,
	)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

// SearchSemantic returns the owner's nearest entries by cosine distance,
// scored as 1/(1+distance) so higher is closer.
func (r *KnowledgeRepository) SearchSemantic(ctx context.Context, ownerID string, embedding []float32, limit int) ([]*domain.RetrievalCandidate, error) {
	if limit <= 0 {
		limit = 20
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx,
		`SELECT id, content, content_type, metadata,
		        1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM knowledge_entries
		 WHERE owner_id = $2 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCandidates(rows, domain.MatchTypeSemantic)
}

// SearchKeyword returns the owner's entries ranked by full-text relevance.
func (r *KnowledgeRepository) SearchKeyword(ctx context.Context, ownerID, query string, limit int) ([]*domain.RetrievalCandidate, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, content, content_type, metadata,
		        ts_rank(content_tsv, websearch_to_tsquery('english', $1)) AS score
		 FROM knowledge_entries
		 WHERE owner_id = $2 AND content_tsv @@ websearch_to_tsquery('english', $1)
		 ORDER BY score DESC, created_at DESC
		 LIMIT $3`,
		query, ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCandidates(rows, domain.MatchTypeKeyword)
}

func scanCandidates(rows pgx.Rows, matchType domain.MatchType) ([]*domain.RetrievalCandidate, error) {
	results := make([]*domain.RetrievalCandidate, 0)
	for rows.Next() {
		var c domain.RetrievalCandidate
		var metadata []byte
		var score float32
		if err := rows.Scan(&c.EntryID, &c.Content, &c.ContentType, &metadata, &score); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
			}
		}
		c.MatchType = matchType
		if matchType == domain.MatchTypeSemantic {
			c.SimilarityScore = score
		} else {
			c.KeywordScore = score
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}

func scanEntry(row pgx.Row) (*domain.KnowledgeEntry, error) {
	var e domain.KnowledgeEntry
	var metadata []byte
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Content, &e.ContentType, &e.Topics, &metadata, &e.ImportanceScore, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
		}
	}
	return &e, nil
}
