package service

import (
	"context"
	"log"
	"sort"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/shopmind-ai/shopmind/internal/telemetry"
)

// RelevanceScorer defines the interface to an external reranking service
type RelevanceScorer interface {
	Score(ctx context.Context, query string, documents []string) ([]float32, error)
}

// Reranker applies an optional second-pass relevance scoring to a small
// candidate set. It is a pure enhancement: when the scorer is unconfigured
// or fails, candidates pass through unchanged.
type Reranker struct {
	scorer RelevanceScorer
}

// NewReranker creates a Reranker. A nil scorer disables reranking.
func NewReranker(scorer RelevanceScorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank re-scores and re-sorts candidates by external relevance. The
// second return reports whether reranking was actually applied, for
// telemetry.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*domain.RetrievalCandidate) ([]*domain.RetrievalCandidate, bool) {
	if r.scorer == nil || len(candidates) == 0 {
		return candidates, false
	}

	ctx, span := telemetry.StartSpan(ctx, "Reranker.Rerank", telemetry.SpanAttributes{Stage: "rerank"})
	defer span.End()

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Content
	}

	scores, err := r.scorer.Score(ctx, query, documents)
	if err != nil {
		log.Printf("rerank: degraded to pass-through: %v", err)
		span.SetError(err)
		return candidates, false
	}
	if len(scores) != len(candidates) {
		log.Printf("rerank: score count mismatch (%d != %d), pass-through", len(scores), len(candidates))
		return candidates, false
	}

	reranked := make([]*domain.RetrievalCandidate, len(candidates))
	for i, c := range candidates {
		clone := *c
		clone.CombinedScore = scores[i]
		reranked[i] = &clone
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].CombinedScore > reranked[j].CombinedScore
	})

	return reranked, true
}
