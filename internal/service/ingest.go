package service

import (
	"context"
	"fmt"
	"log"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/shopmind-ai/shopmind/internal/telemetry"
)

// ObjectStorage defines the blob-store interface for document ingestion
type ObjectStorage interface {
	GenerateUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

const uploadURLExpiry = 15 * time.Minute

// ChunkConfig controls how documents are split for embedding.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  1200,
		MinChars:  400,
		Overlap:   200,
		MaxChunks: 40,
	}
}

// DocumentService handles document upload and ingestion into the
// owner's knowledge store: fetch from object storage, chunk, embed,
// persist each chunk as a document entry.
type DocumentService struct {
	storage  ObjectStorage
	store    KnowledgeWriter
	embedder *EmbeddingGenerator
	uuidGen  UUIDGenerator
	chunks   ChunkConfig
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(storage ObjectStorage, store KnowledgeWriter, embedder *EmbeddingGenerator) *DocumentService {
	return &DocumentService{
		storage:  storage,
		store:    store,
		embedder: embedder,
		uuidGen:  &DefaultUUIDGenerator{},
		chunks:   DefaultChunkConfig(),
	}
}

// UploadTicket is a presigned upload slot for a document.
type UploadTicket struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
	ExpiresIn int64  `json:"expires_in_seconds"`
}

// InitUpload returns a presigned URL the client PUTs the document to. Keys
// are owner-prefixed so one shopper can never ingest another's objects.
func (s *DocumentService) InitUpload(ctx context.Context, ownerID, filename, contentType string) (*UploadTicket, error) {
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "filename is required")
	}

	key := fmt.Sprintf("%s/%s/%s", ownerID, s.uuidGen.NewString(), filename)
	url, err := s.storage.GenerateUploadURL(ctx, key, contentType, uploadURLExpiry)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "failed to create upload URL", err)
	}

	return &UploadTicket{
		Key:       key,
		UploadURL: url,
		ExpiresIn: int64(uploadURLExpiry.Seconds()),
	}, nil
}

// IngestResult reports what one ingestion stored.
type IngestResult struct {
	Key          string `json:"key"`
	ChunksStored int    `json:"chunks_stored"`
}

// Ingest fetches an uploaded document, chunks it, embeds each chunk, and
// writes the chunks to the owner's knowledge store, tagged with the given
// topics. An embedding failure aborts the run; knowledge entries already
// written stay in place and a retry re-ingests from the top.
func (s *DocumentService) Ingest(ctx context.Context, ownerID, key string, topics []string) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Ingest", telemetry.SpanAttributes{
		OwnerID: ownerID,
		Stage:   "ingest",
	})
	defer span.End()

	if !strings.HasPrefix(key, ownerID+"/") {
		return nil, domain.ErrDocumentNotFound
	}

	body, err := s.storage.GetObject(ctx, key)
	if err != nil {
		span.SetError(err)
		return nil, domain.ErrDocumentNotFound
	}

	chunks := chunkText(string(body), s.chunks)
	if len(chunks) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "document contains no text")
	}

	for i, chunk := range chunks {
		embedding, err := s.embedder.Generate(ctx, chunk)
		if err != nil {
			span.SetError(err)
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("embedding failed at chunk %d of %d", i+1, len(chunks)), err)
		}

		metadata := map[string]string{
			"source_key":  key,
			"chunk_index": strconv.Itoa(i),
		}
		entry := domain.NewKnowledgeEntry(s.uuidGen.NewString(), ownerID, chunk, domain.ContentTypeDocument, topics, metadata, 0.5, time.Now().UTC())
		entry.Embedding = embedding

		if err := s.store.Create(ctx, entry); err != nil {
			span.SetError(err)
			return nil, err
		}
	}

	log.Printf("ingest: stored %d chunks owner=%s key=%s", len(chunks), ownerID, key)
	return &IngestResult{Key: key, ChunksStored: len(chunks)}, nil
}

// chunkText splits text into overlapping chunks, preferring to cut at
// whitespace once past MinChars.
func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}
