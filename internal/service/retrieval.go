package service

import (
	"context"
	"sort"
	"strings"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/shopmind-ai/shopmind/internal/telemetry"
)

const (
	defaultSemanticWeight = 0.7
	defaultKeywordWeight  = 0.3
	defaultFloorScore     = 0.1
	defaultCandidateLimit = 20
	defaultTopK           = 5
)

// KnowledgeSearcher defines the repository interface for owner-scoped search
type KnowledgeSearcher interface {
	SearchSemantic(ctx context.Context, ownerID string, embedding []float32, limit int) ([]*domain.RetrievalCandidate, error)
	SearchKeyword(ctx context.Context, ownerID, query string, limit int) ([]*domain.RetrievalCandidate, error)
}

// RetrieverConfig controls hybrid score fusion.
type RetrieverConfig struct {
	SemanticWeight float32
	KeywordWeight  float32
	FloorScore     float32
	CandidateLimit int
}

// DefaultRetrieverConfig returns the default fusion weights.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		SemanticWeight: defaultSemanticWeight,
		KeywordWeight:  defaultKeywordWeight,
		FloorScore:     defaultFloorScore,
		CandidateLimit: defaultCandidateLimit,
	}
}

// HybridRetriever merges vector-similarity and keyword-ranked search over a
// single owner's knowledge store.
type HybridRetriever struct {
	repo KnowledgeSearcher
	cfg  RetrieverConfig
}

// NewHybridRetriever creates a HybridRetriever with default weights.
func NewHybridRetriever(repo KnowledgeSearcher) *HybridRetriever {
	return NewHybridRetrieverWithConfig(repo, DefaultRetrieverConfig())
}

// NewHybridRetrieverWithConfig creates a HybridRetriever with explicit weights.
func NewHybridRetrieverWithConfig(repo KnowledgeSearcher, cfg RetrieverConfig) *HybridRetriever {
	if cfg.SemanticWeight <= 0 && cfg.KeywordWeight <= 0 {
		cfg = DefaultRetrieverConfig()
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = defaultCandidateLimit
	}
	return &HybridRetriever{repo: repo, cfg: cfg}
}

// Retrieve runs both owner-scoped searches and fuses them into one ranked
// list. A nil embedding degrades to keyword-only. Empty results are a
// normal, non-error outcome.
func (r *HybridRetriever) Retrieve(ctx context.Context, ownerID, query string, embedding []float32, topK int) ([]*domain.RetrievalCandidate, error) {
	ctx, span := telemetry.StartSpan(ctx, "HybridRetriever.Retrieve", telemetry.SpanAttributes{
		OwnerID: ownerID,
		Stage:   "retrieval",
	})
	defer span.End()

	if topK <= 0 {
		topK = defaultTopK
	}

	var semantic []*domain.RetrievalCandidate
	var err error
	if len(embedding) > 0 {
		semantic, err = r.repo.SearchSemantic(ctx, ownerID, embedding, r.cfg.CandidateLimit)
		if err != nil {
			return nil, err
		}
	}

	var keyword []*domain.RetrievalCandidate
	if strings.TrimSpace(query) != "" {
		keyword, err = r.repo.SearchKeyword(ctx, ownerID, query, r.cfg.CandidateLimit)
		if err != nil {
			return nil, err
		}
	}

	merged := r.merge(semantic, keyword)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// merge outer-joins the two lists by entry id. Entries found by both paths
// get matchType=both and both scores; combinedScore is a weighted sum of
// similarity and position-normalized keyword rank. Candidates below the
// floor are dropped; ordering is strictly descending with first-seen order
// breaking ties.
func (r *HybridRetriever) merge(semantic, keyword []*domain.RetrievalCandidate) []*domain.RetrievalCandidate {
	byID := make(map[string]*domain.RetrievalCandidate, len(semantic)+len(keyword))
	order := make([]string, 0, len(semantic)+len(keyword))

	for _, c := range semantic {
		if c == nil {
			continue
		}
		clone := *c
		clone.MatchType = domain.MatchTypeSemantic
		byID[c.EntryID] = &clone
		order = append(order, c.EntryID)
	}

	for i, c := range keyword {
		if c == nil {
			continue
		}
		rank := normalizedRank(i)
		if existing, ok := byID[c.EntryID]; ok {
			existing.KeywordScore = rank
			existing.MatchType = domain.MatchTypeBoth
			continue
		}
		clone := *c
		clone.KeywordScore = rank
		clone.MatchType = domain.MatchTypeKeyword
		byID[c.EntryID] = &clone
		order = append(order, c.EntryID)
	}

	results := make([]*domain.RetrievalCandidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.CombinedScore = r.cfg.SemanticWeight*c.SimilarityScore + r.cfg.KeywordWeight*c.KeywordScore
		if c.CombinedScore < r.cfg.FloorScore {
			continue
		}
		results = append(results, c)
	}

	// SliceStable keeps first-seen order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})

	return results
}

// normalizedRank maps a keyword-result position to (0,1], highest first.
func normalizedRank(position int) float32 {
	return 1.0 / float32(1+position)
}
