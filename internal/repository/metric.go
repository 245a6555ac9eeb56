package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopmind-ai/shopmind/internal/domain"
)

// MetricRepository stores per-request stage timings for evaluation.
type MetricRepository struct {
	db dbtx
}

func NewMetricRepository(pool *pgxpool.Pool) *MetricRepository {
	return &MetricRepository{db: pool}
}

func (r *MetricRepository) Create(ctx context.Context, m *domain.PerformanceMetric) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO performance_metrics
			(request_id, owner_id, cache_ms, embedding_ms, retrieval_ms, rerank_ms, prompt_ms, generate_ms, total_ms,
			 cache_hit, docs_retrieved, rerank_applied, success, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.RequestID,
		m.OwnerID,
		m.Stages.CacheMS,
		m.Stages.EmbeddingMS,
		m.Stages.RetrievalMS,
		m.Stages.RerankMS,
		m.Stages.PromptMS,
		m.Stages.GenerateMS,
		m.Stages.TotalMS,
		m.CacheHit,
		m.DocsRetrieved,
		m.RerankApplied,
		m.Success,
		m.CreatedAt,
	)
	return err
}
