package service

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/shopmind-ai/shopmind/internal/telemetry"
)

// MetricRecorder persists per-request performance metrics
type MetricRecorder interface {
	Create(ctx context.Context, m *domain.PerformanceMetric) error
}

// AskInput is one shopper request.
type AskInput struct {
	OwnerID string
	Message string
	Turns   []Turn
	Session SessionContext
}

// AskResult is a completed non-streaming answer.
type AskResult struct {
	Answer       string
	Sources      []string
	Confidence   float64
	Events       []domain.ToolInvocation
	CacheHit     bool
	ContextCount int
}

// AnswerStream is a running streaming answer. Text and Events behave as in
// GenerationStream; CacheHit reports whether the answer is being replayed
// from cache. Wait returns once delivery and bookkeeping are done.
type AnswerStream struct {
	Text     <-chan string
	Events   <-chan domain.ToolInvocation
	CacheHit bool

	wait func() error
}

// Wait blocks until the stream has drained and returns the terminal error.
func (s *AnswerStream) Wait() error { return s.wait() }

// NewAnswerStream assembles an AnswerStream from pre-built channels. Used
// by callers that replay or synthesize answers outside the live pipeline.
func NewAnswerStream(text <-chan string, events <-chan domain.ToolInvocation, cacheHit bool, wait func() error) *AnswerStream {
	return &AnswerStream{Text: text, Events: events, CacheHit: cacheHit, wait: wait}
}

// AssistantService orchestrates the answer pipeline: cache lookup and
// query embedding run concurrently, then retrieval, optional reranking,
// prompt assembly, and generation. Persistence happens off the request
// path through the background writer.
type AssistantService struct {
	cache     *SemanticCache
	embedder  *EmbeddingGenerator
	retriever *HybridRetriever
	reranker  *Reranker
	assembler *PromptAssembler
	engine    *GenerationEngine
	writer    *BackgroundWriter
	metrics   MetricRecorder
	uuidGen   UUIDGenerator
}

// NewAssistantService wires the pipeline. metrics may be nil to disable
// performance recording.
func NewAssistantService(
	cache *SemanticCache,
	embedder *EmbeddingGenerator,
	retriever *HybridRetriever,
	reranker *Reranker,
	assembler *PromptAssembler,
	engine *GenerationEngine,
	writer *BackgroundWriter,
	metrics MetricRecorder,
) *AssistantService {
	return &AssistantService{
		cache:     cache,
		embedder:  embedder,
		retriever: retriever,
		reranker:  reranker,
		assembler: assembler,
		engine:    engine,
		writer:    writer,
		metrics:   metrics,
		uuidGen:   &DefaultUUIDGenerator{},
	}
}

// pipelineState carries the shared front half of both entry points.
type pipelineState struct {
	requestID  string
	stages     domain.StageDurations
	cached     *domain.CacheEntry
	embedding  []float32
	candidates []*domain.RetrievalCandidate
	reranked   bool
	prompt     string
}

// Ask answers a shopper message. Only generation failure is fatal; cache,
// embedding, retrieval, and reranking all degrade gracefully.
func (s *AssistantService) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "message must not be empty")
	}

	started := time.Now()
	st, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	if st.cached != nil {
		st.stages.TotalMS = msSince(started)
		s.recordMetric(ctx, in.OwnerID, st, true, true)
		return cachedResult(st.cached), nil
	}

	genStart := time.Now()
	answer, events, err := s.engine.Complete(ctx, st.prompt)
	st.stages.GenerateMS = msSince(genStart)
	st.stages.TotalMS = msSince(started)
	if err != nil {
		s.recordMetric(ctx, in.OwnerID, st, false, false)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "answer generation failed", err)
	}

	response := s.buildResponse(answer, st.candidates)
	s.recordMetric(ctx, in.OwnerID, st, false, true)
	s.writer.Record(ctx, CompletedTurn{
		RequestID:      st.requestID,
		OwnerID:        in.OwnerID,
		UserMessage:    in.Message,
		Response:       response,
		QueryEmbedding: st.embedding,
	})

	return &AskResult{
		Answer:       response.Answer,
		Sources:      response.Sources,
		Confidence:   response.Confidence,
		Events:       events,
		ContextCount: response.ContextItems,
	}, nil
}

// AskStream answers a shopper message as a token stream with inline
// directive events. On a cache hit the stored answer is replayed through
// the same channels.
func (s *AssistantService) AskStream(ctx context.Context, in AskInput) (*AnswerStream, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "message must not be empty")
	}

	started := time.Now()
	st, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	if st.cached != nil {
		st.stages.TotalMS = msSince(started)
		s.recordMetric(ctx, in.OwnerID, st, true, true)
		return s.replayCached(ctx, st.cached), nil
	}

	genStart := time.Now()
	gen, err := s.engine.Stream(ctx, st.prompt)
	if err != nil {
		st.stages.GenerateMS = msSince(genStart)
		st.stages.TotalMS = msSince(started)
		s.recordMetric(ctx, in.OwnerID, st, false, false)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "answer generation failed", err)
	}

	wait := func() error {
		fullText, genErr := gen.Wait()
		st.stages.GenerateMS = msSince(genStart)
		st.stages.TotalMS = msSince(started)

		partial := genErr != nil
		if fullText != "" {
			s.writer.Record(ctx, CompletedTurn{
				RequestID:      st.requestID,
				OwnerID:        in.OwnerID,
				UserMessage:    in.Message,
				Response:       s.buildResponse(fullText, st.candidates),
				QueryEmbedding: st.embedding,
				Partial:        partial,
			})
		}
		s.recordMetric(ctx, in.OwnerID, st, false, genErr == nil)

		if genErr != nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "answer generation interrupted", genErr)
		}
		return nil
	}

	return &AnswerStream{Text: gen.Text, Events: gen.Events, wait: wait}, nil
}

// prepare runs the shared front half: concurrent cache lookup and query
// embedding, then on a miss retrieval, reranking, and prompt assembly.
func (s *AssistantService) prepare(ctx context.Context, in AskInput) (*pipelineState, error) {
	st := &pipelineState{requestID: s.uuidGen.NewString()}

	ctx, span := telemetry.StartSpan(ctx, "AssistantService.prepare", telemetry.SpanAttributes{
		OwnerID:   in.OwnerID,
		RequestID: st.requestID,
	})
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		defer func() { st.stages.CacheMS = msSince(start) }()
		entry, hit, err := s.cache.Lookup(gctx, in.OwnerID, in.Message)
		if err != nil {
			log.Printf("assistant: cache lookup degraded to miss owner=%s: %v", in.OwnerID, err)
			return nil
		}
		if hit {
			st.cached = entry
		}
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		defer func() { st.stages.EmbeddingMS = msSince(start) }()
		embedding, err := s.embedder.Generate(gctx, in.Message)
		if err != nil {
			log.Printf("assistant: embedding unavailable, keyword-only retrieval owner=%s: %v", in.OwnerID, err)
			return nil
		}
		st.embedding = embedding
		return nil
	})

	// Degradations return nil above, so err here is only ctx failure.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if st.cached != nil {
		return st, nil
	}

	retrieveStart := time.Now()
	candidates, err := s.retriever.Retrieve(ctx, in.OwnerID, in.Message, st.embedding, defaultTopK)
	st.stages.RetrievalMS = msSince(retrieveStart)
	if err != nil {
		log.Printf("assistant: retrieval failed, answering without context owner=%s: %v", in.OwnerID, err)
		span.SetError(err)
		candidates = nil
	}

	rerankStart := time.Now()
	st.candidates, st.reranked = s.reranker.Rerank(ctx, in.Message, candidates)
	st.stages.RerankMS = msSince(rerankStart)

	promptStart := time.Now()
	st.prompt = s.assembler.Assemble(PromptInput{
		Message:    in.Message,
		Turns:      in.Turns,
		Session:    in.Session,
		Candidates: st.candidates,
	})
	st.stages.PromptMS = msSince(promptStart)

	return st, nil
}

// replayCached streams a stored answer through fresh channels, running the
// directive scanner over it so the event surface matches live generation.
func (s *AssistantService) replayCached(ctx context.Context, entry *domain.CacheEntry) *AnswerStream {
	text := make(chan string, 1)
	events := make(chan domain.ToolInvocation)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(events)
		defer close(text)

		select {
		case text <- entry.Response.Answer:
		case <-ctx.Done():
			return
		}

		scanner := NewDirectiveScanner()
		invs := scanner.Feed(entry.Response.Answer)
		invs = append(invs, scanner.Flush()...)
		for _, inv := range invs {
			select {
			case events <- inv:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &AnswerStream{
		Text:     text,
		Events:   events,
		CacheHit: true,
		wait: func() error {
			<-done
			return nil
		},
	}
}

func (s *AssistantService) buildResponse(answer string, candidates []*domain.RetrievalCandidate) domain.CachedResponse {
	sources := make([]string, 0, len(candidates))
	for _, c := range candidates {
		sources = append(sources, c.EntryID)
	}
	return domain.CachedResponse{
		Answer:       answer,
		Sources:      sources,
		Confidence:   confidenceFrom(candidates),
		ContextItems: len(candidates),
	}
}

// confidenceFrom maps the top combined score into [0,1].
func confidenceFrom(candidates []*domain.RetrievalCandidate) float64 {
	if len(candidates) == 0 {
		return 0.3
	}
	top := float64(candidates[0].CombinedScore)
	if top > 1 {
		top = 1
	}
	if top < 0 {
		top = 0
	}
	return top
}

func cachedResult(entry *domain.CacheEntry) *AskResult {
	return &AskResult{
		Answer:       entry.Response.Answer,
		Sources:      entry.Response.Sources,
		Confidence:   entry.Response.Confidence,
		CacheHit:     true,
		ContextCount: entry.Response.ContextItems,
	}
}

// recordMetric persists request timings without blocking the response.
func (s *AssistantService) recordMetric(ctx context.Context, ownerID string, st *pipelineState, cacheHit, success bool) {
	if s.metrics == nil {
		return
	}
	metric := &domain.PerformanceMetric{
		RequestID:     st.requestID,
		OwnerID:       ownerID,
		Stages:        st.stages,
		CacheHit:      cacheHit,
		DocsRetrieved: len(st.candidates),
		RerankApplied: st.reranked,
		Success:       success,
		CreatedAt:     time.Now().UTC(),
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		writeCtx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		if err := s.metrics.Create(writeCtx, metric); err != nil {
			log.Printf("assistant: metric write failed request=%s: %v", metric.RequestID, err)
		}
	}()
}

func msSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
