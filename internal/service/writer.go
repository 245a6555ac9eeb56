package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/shopmind-ai/shopmind/internal/telemetry"
)

const (
	defaultWriteTimeout = 15 * time.Second
	// userFactImportance is assigned to extracted preference statements so
	// they outrank plain conversation turns at retrieval time.
	userFactImportance = 0.7
)

// KnowledgeWriter defines the repository interface for persisting entries
type KnowledgeWriter interface {
	Create(ctx context.Context, e *domain.KnowledgeEntry) error
}

// ResponseCacher caches completed answers for future lookups
type ResponseCacher interface {
	Insert(ctx context.Context, ownerID, query string, response domain.CachedResponse, queryEmbedding []float32) error
}

// CompletedTurn is the outcome of one answered request, handed to the
// background writer after the response has been delivered.
type CompletedTurn struct {
	RequestID      string
	OwnerID        string
	UserMessage    string
	Response       domain.CachedResponse
	QueryEmbedding []float32
	// Partial marks an answer cut short by client disconnect. Partial
	// turns are still persisted to the knowledge store but never cached.
	Partial bool
}

// BackgroundWriter persists conversation turns, extracted user facts, and
// cache entries off the request path. Every write is best-effort: failures
// are logged and never surface to the shopper.
type BackgroundWriter struct {
	store     KnowledgeWriter
	cache     ResponseCacher
	embedder  *EmbeddingGenerator
	uuidGen   UUIDGenerator
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewBackgroundWriter creates a BackgroundWriter. cache may be nil when
// caching is disabled.
func NewBackgroundWriter(store KnowledgeWriter, cache ResponseCacher, embedder *EmbeddingGenerator) *BackgroundWriter {
	return &BackgroundWriter{
		store:    store,
		cache:    cache,
		embedder: embedder,
		uuidGen:  &DefaultUUIDGenerator{},
		timeout:  defaultWriteTimeout,
	}
}

// Record schedules persistence for a completed turn and returns
// immediately. The work detaches from the request context so a client
// disconnect cannot abort it.
func (w *BackgroundWriter) Record(ctx context.Context, turn CompletedTurn) {
	detached := context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		writeCtx, cancel := context.WithTimeout(detached, w.timeout)
		defer cancel()
		w.persist(writeCtx, turn)
	}()
}

// Wait blocks until all scheduled writes have finished. Used at shutdown.
func (w *BackgroundWriter) Wait() {
	w.wg.Wait()
}

func (w *BackgroundWriter) persist(ctx context.Context, turn CompletedTurn) {
	ctx, span := telemetry.StartSpan(ctx, "BackgroundWriter.persist", telemetry.SpanAttributes{
		OwnerID:   turn.OwnerID,
		RequestID: turn.RequestID,
		Stage:     "write",
	})
	defer span.End()

	w.storeEntry(ctx, turn.OwnerID, conversationContent(turn), domain.ContentTypeConversation, 0.5)

	for _, fact := range ExtractUserFacts(turn.UserMessage) {
		w.storeEntry(ctx, turn.OwnerID, fact, domain.ContentTypeUserFact, userFactImportance)
	}

	if w.cache != nil && !turn.Partial && turn.Response.Answer != "" {
		if err := w.cache.Insert(ctx, turn.OwnerID, turn.UserMessage, turn.Response, turn.QueryEmbedding); err != nil {
			log.Printf("writer: cache insert failed owner=%s request=%s: %v", turn.OwnerID, turn.RequestID, err)
			span.SetError(err)
		}
	}
}

// storeEntry embeds and persists one knowledge entry. An embedding failure
// downgrades to storing the entry without a vector; it stays reachable by
// keyword search.
func (w *BackgroundWriter) storeEntry(ctx context.Context, ownerID, content string, contentType domain.ContentType, importance float32) {
	if strings.TrimSpace(content) == "" {
		return
	}

	entry := domain.NewKnowledgeEntry(w.uuidGen.NewString(), ownerID, content, contentType, nil, nil, importance, time.Now().UTC())

	if w.embedder != nil {
		embedding, err := w.embedder.Generate(ctx, content)
		if err != nil {
			log.Printf("writer: embedding failed, storing without vector owner=%s: %v", ownerID, err)
		} else {
			entry.Embedding = embedding
		}
	}

	if err := w.store.Create(ctx, entry); err != nil {
		log.Printf("writer: knowledge write failed owner=%s type=%s: %v", ownerID, contentType, err)
	}
}

func conversationContent(turn CompletedTurn) string {
	return fmt.Sprintf("Shopper: %s\nAssistant: %s", strings.TrimSpace(turn.UserMessage), strings.TrimSpace(turn.Response.Answer))
}

// factMarkers are first-person phrasings that signal a durable preference
// rather than a one-off request.
var factMarkers = []string{
	"i like", "i love", "i prefer", "i am ", "i'm ", "i have ", "i own ", "my ",
	"i don't like", "i hate", "i'm allergic", "i am allergic",
}

// ExtractUserFacts pulls self-descriptive statements out of a message.
// Sentences are split on terminal punctuation; a sentence qualifies when
// it contains a first-person preference marker.
func ExtractUserFacts(message string) []string {
	var facts []string
	for _, sentence := range splitSentences(message) {
		lower := strings.ToLower(sentence)
		for _, marker := range factMarkers {
			if strings.Contains(lower, marker) {
				facts = append(facts, sentence)
				break
			}
		}
	}
	return facts
}

func splitSentences(message string) []string {
	parts := strings.FieldsFunc(message, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
