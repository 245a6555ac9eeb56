package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopmind-ai/shopmind/internal/domain"
)

const (
	defaultMemoCapacity = 512
	defaultMemoTTL      = 5 * time.Minute
	defaultEmbedTimeout = 5 * time.Second
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingGenerator wraps the embedding model client with a short-lived
// exact-text memo so repeated embeds within a window skip the external call.
// The memo is distinct from the semantic answer cache.
type EmbeddingGenerator struct {
	client  EmbeddingClient
	timeout time.Duration

	mu       sync.Mutex
	memo     map[string]memoEntry
	order    []string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type memoEntry struct {
	embedding []float32
	storedAt  time.Time
}

// EmbeddingGeneratorConfig controls memoization and call timeouts.
type EmbeddingGeneratorConfig struct {
	Timeout      time.Duration
	MemoCapacity int
	MemoTTL      time.Duration
}

// NewEmbeddingGenerator creates an EmbeddingGenerator with default limits.
func NewEmbeddingGenerator(client EmbeddingClient) *EmbeddingGenerator {
	return NewEmbeddingGeneratorWithConfig(client, EmbeddingGeneratorConfig{})
}

// NewEmbeddingGeneratorWithConfig creates an EmbeddingGenerator with explicit limits.
func NewEmbeddingGeneratorWithConfig(client EmbeddingClient, cfg EmbeddingGeneratorConfig) *EmbeddingGenerator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEmbedTimeout
	}
	if cfg.MemoCapacity <= 0 {
		cfg.MemoCapacity = defaultMemoCapacity
	}
	if cfg.MemoTTL <= 0 {
		cfg.MemoTTL = defaultMemoTTL
	}
	return &EmbeddingGenerator{
		client:   client,
		timeout:  cfg.Timeout,
		memo:     make(map[string]memoEntry),
		capacity: cfg.MemoCapacity,
		ttl:      cfg.MemoTTL,
		now:      time.Now,
	}
}

// Generate returns the embedding for text, serving repeats from the memo.
// Failures map to ErrUpstreamUnavailable; callers degrade to keyword-only
// retrieval rather than failing the request.
func (g *EmbeddingGenerator) Generate(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := g.lookup(text); ok {
		return cached, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	embedding, err := g.client.GenerateEmbedding(callCtx, text)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "embedding service unavailable", err)
	}

	g.store(text, embedding)
	return embedding, nil
}

func (g *EmbeddingGenerator) lookup(text string) ([]float32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.memo[text]
	if !ok {
		return nil, false
	}
	if g.now().Sub(entry.storedAt) > g.ttl {
		return nil, false
	}

	out := make([]float32, len(entry.embedding))
	copy(out, entry.embedding)
	return out, true
}

func (g *EmbeddingGenerator) store(text string, embedding []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.memo[text]; !exists {
		g.order = append(g.order, text)
	}
	g.memo[text] = memoEntry{embedding: embedding, storedAt: g.now()}

	// Evict oldest insertions once over capacity.
	for len(g.memo) > g.capacity && len(g.order) > 0 {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.memo, oldest)
	}
}
