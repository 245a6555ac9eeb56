package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockObjectStorage mocks the blob store
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) GenerateUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	args := m.Called(ctx, key, contentType, expires)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStorage) GetObject(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func newDocumentFixture(t *testing.T) (*DocumentService, *MockObjectStorage, *recordingKnowledgeWriter, *MockEmbeddingClient) {
	t.Helper()
	storage := new(MockObjectStorage)
	store := &recordingKnowledgeWriter{}
	client := new(MockEmbeddingClient)
	svc := NewDocumentService(storage, store, NewEmbeddingGenerator(client))
	return svc, storage, store, client
}

func TestDocumentService_InitUpload(t *testing.T) {
	svc, storage, _, _ := newDocumentFixture(t)

	storage.On("GenerateUploadURL", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "owner-1/") && strings.HasSuffix(key, "/catalog.txt")
	}), "text/plain", uploadURLExpiry).Return("https://bucket.example/presigned", nil)

	ticket, err := svc.InitUpload(context.Background(), "owner-1", "catalog.txt", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/presigned", ticket.UploadURL)
	assert.True(t, strings.HasPrefix(ticket.Key, "owner-1/"))
	assert.Equal(t, int64(900), ticket.ExpiresIn)
}

func TestDocumentService_InitUpload_StripsPathTraversal(t *testing.T) {
	svc, storage, _, _ := newDocumentFixture(t)

	storage.On("GenerateUploadURL", mock.Anything, mock.MatchedBy(func(key string) bool {
		return !strings.Contains(key, "..") && strings.HasSuffix(key, "/secrets.txt")
	}), mock.Anything, mock.Anything).Return("url", nil)

	_, err := svc.InitUpload(context.Background(), "owner-1", "../../etc/secrets.txt", "text/plain")
	require.NoError(t, err)
	storage.AssertExpectations(t)
}

func TestDocumentService_InitUpload_EmptyFilename(t *testing.T) {
	svc, _, _, _ := newDocumentFixture(t)

	_, err := svc.InitUpload(context.Background(), "owner-1", "  ", "text/plain")
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeInvalidInput, domainErr.Code)
}

func TestDocumentService_Ingest_StoresChunks(t *testing.T) {
	svc, storage, store, client := newDocumentFixture(t)

	content := strings.Repeat("Product descriptions and sizing guidance. ", 60)
	storage.On("GetObject", mock.Anything, "owner-1/doc-1/catalog.txt").Return([]byte(content), nil)
	client.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)

	result, err := svc.Ingest(context.Background(), "owner-1", "owner-1/doc-1/catalog.txt", []string{"catalog", "sizing"})
	require.NoError(t, err)
	assert.Greater(t, result.ChunksStored, 1)

	docs := store.byType(domain.ContentTypeDocument)
	require.Len(t, docs, result.ChunksStored)
	for i, d := range docs {
		assert.Equal(t, "owner-1", d.OwnerID)
		assert.NotEmpty(t, d.Embedding)
		assert.Equal(t, []string{"catalog", "sizing"}, d.Topics)
		assert.Equal(t, "owner-1/doc-1/catalog.txt", d.Metadata["source_key"])
		assert.Equal(t, strconv.Itoa(i), d.Metadata["chunk_index"])
	}
}

func TestDocumentService_Ingest_ForeignKeyRejected(t *testing.T) {
	svc, storage, _, _ := newDocumentFixture(t)

	_, err := svc.Ingest(context.Background(), "owner-1", "owner-2/doc-1/catalog.txt", nil)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	storage.AssertNotCalled(t, "GetObject")
}

func TestDocumentService_Ingest_MissingObject(t *testing.T) {
	svc, storage, _, _ := newDocumentFixture(t)

	storage.On("GetObject", mock.Anything, "owner-1/doc-1/missing.txt").Return(nil, errors.New("no such key"))

	_, err := svc.Ingest(context.Background(), "owner-1", "owner-1/doc-1/missing.txt", nil)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentService_Ingest_EmptyDocument(t *testing.T) {
	svc, storage, _, _ := newDocumentFixture(t)

	storage.On("GetObject", mock.Anything, "owner-1/doc-1/empty.txt").Return([]byte("   \n  "), nil)

	_, err := svc.Ingest(context.Background(), "owner-1", "owner-1/doc-1/empty.txt", nil)
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeInvalidInput, domainErr.Code)
}

func TestDocumentService_Ingest_EmbeddingFailureAborts(t *testing.T) {
	svc, storage, store, client := newDocumentFixture(t)

	storage.On("GetObject", mock.Anything, "owner-1/doc-1/doc.txt").Return([]byte("short document"), nil)
	client.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("model down"))

	_, err := svc.Ingest(context.Background(), "owner-1", "owner-1/doc-1/doc.txt", nil)
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeUpstreamUnavailable, domainErr.Code)
	assert.Empty(t, store.entries)
}

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := chunkText("a short document", DefaultChunkConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short document", chunks[0])
}

func TestChunkText_OverlapAndBounds(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 100, MinChars: 40, Overlap: 20, MaxChunks: 40}
	text := strings.Repeat("alpha beta gamma delta ", 30)

	chunks := chunkText(text, cfg)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), cfg.MaxChars)
		assert.NotEmpty(t, c)
	}
}
