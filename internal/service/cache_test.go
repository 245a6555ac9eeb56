package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCacheStore mocks the cache repository
type MockCacheStore struct {
	mock.Mock
}

func (m *MockCacheStore) LookupAndTouch(ctx context.Context, ownerID, queryHash string) (*domain.CacheEntry, error) {
	args := m.Called(ctx, ownerID, queryHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CacheEntry), args.Error(1)
}

func (m *MockCacheStore) Upsert(ctx context.Context, e *domain.CacheEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockCacheStore) Delete(ctx context.Context, ownerID, queryHash string) error {
	args := m.Called(ctx, ownerID, queryHash)
	return args.Error(0)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "where is my order", NormalizeQuery("  Where   IS my\torder  "))
	assert.Equal(t, NormalizeQuery("Show me RED shoes"), NormalizeQuery("show  me red SHOES"))
}

func TestHashQuery_NormalizedFormsCollide(t *testing.T) {
	assert.Equal(t, HashQuery("Where is my ORDER?"), HashQuery("  where   is my order?  "))
	assert.NotEqual(t, HashQuery("where is my order"), HashQuery("where is my cart"))
}

func TestSemanticCache_Lookup_Hit(t *testing.T) {
	repo := new(MockCacheStore)
	cache := NewSemanticCache(repo, time.Hour)

	entry := &domain.CacheEntry{
		OwnerID:   "owner-1",
		QueryHash: HashQuery("where is my order"),
		Response:  domain.CachedResponse{Answer: "On its way"},
		HitCount:  3,
	}
	repo.On("LookupAndTouch", mock.Anything, "owner-1", entry.QueryHash).Return(entry, nil)

	got, hit, err := cache.Lookup(context.Background(), "owner-1", "Where IS my order")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "On its way", got.Response.Answer)
	repo.AssertExpectations(t)
}

func TestSemanticCache_Lookup_Miss(t *testing.T) {
	repo := new(MockCacheStore)
	cache := NewSemanticCache(repo, time.Hour)

	repo.On("LookupAndTouch", mock.Anything, "owner-1", mock.Anything).Return(nil, domain.ErrCacheEntryNotFound)

	_, hit, err := cache.Lookup(context.Background(), "owner-1", "never asked")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSemanticCache_Lookup_CorruptionBecomesMiss(t *testing.T) {
	repo := new(MockCacheStore)
	cache := NewSemanticCache(repo, time.Hour)
	hash := HashQuery("bad entry")

	repo.On("LookupAndTouch", mock.Anything, "owner-1", hash).Return(nil, domain.ErrCacheCorruption)
	repo.On("Delete", mock.Anything, "owner-1", hash).Return(nil)

	_, hit, err := cache.Lookup(context.Background(), "owner-1", "bad entry")
	require.NoError(t, err)
	assert.False(t, hit)
	repo.AssertExpectations(t)
}

func TestSemanticCache_Lookup_RepoErrorPropagates(t *testing.T) {
	repo := new(MockCacheStore)
	cache := NewSemanticCache(repo, time.Hour)

	repo.On("LookupAndTouch", mock.Anything, "owner-1", mock.Anything).Return(nil, errors.New("db down"))

	_, hit, err := cache.Lookup(context.Background(), "owner-1", "q")
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestSemanticCache_Insert_SetsKeyAndExpiry(t *testing.T) {
	repo := new(MockCacheStore)
	cache := NewSemanticCache(repo, time.Hour)

	var stored *domain.CacheEntry
	repo.On("Upsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.CacheEntry)
	}).Return(nil)

	response := domain.CachedResponse{Answer: "answer", Sources: []string{"s1"}, Confidence: 0.8}
	err := cache.Insert(context.Background(), "owner-1", "  What's ON sale? ", response, []float32{0.1})
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "owner-1", stored.OwnerID)
	assert.Equal(t, HashQuery("what's on sale?"), stored.QueryHash)
	assert.Equal(t, response, stored.Response)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), stored.ExpiresAt, 5*time.Second)
}
