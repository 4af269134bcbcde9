package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunderlab/examprep/internal/model"
)

type fakeEmbedder struct {
	calls [][]string
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

type memCacheStore struct {
	items map[string][]float32
}

func newMemCacheStore() *memCacheStore {
	return &memCacheStore{items: map[string][]float32{}}
}

func (m *memCacheStore) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	vec, ok := m.items[modelName+"|"+taskType+"|"+contentHash]
	return vec, ok, nil
}

func (m *memCacheStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	m.items[item.ModelName+"|"+item.TaskType+"|"+item.ContentHash] = item.Embedding
	return nil
}

func TestEmbedServiceOrderPreserving(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := NewEmbedService(embedder, newMemCacheStore())

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"}, "retrieval_document")
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Equal(t, []float32{1}, vectors[0])
	require.Equal(t, []float32{2}, vectors[1])
	require.Equal(t, []float32{3}, vectors[2])
}

func TestEmbedServiceCachesRepeats(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := NewEmbedService(embedder, newMemCacheStore())
	ctx := context.Background()

	_, err := svc.EmbedBatch(ctx, []string{"alpha", "beta"}, "retrieval_query")
	require.NoError(t, err)
	require.Len(t, embedder.calls, 1)

	// Second call hits the cache for both texts, only "gamma" goes out.
	vectors, err := svc.EmbedBatch(ctx, []string{"alpha", "gamma", "beta"}, "retrieval_query")
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Len(t, embedder.calls, 2)
	require.Equal(t, []string{"gamma"}, embedder.calls[1])
}

func TestEmbedServiceDurableCacheSurvivesLRU(t *testing.T) {
	cache := newMemCacheStore()
	first := &fakeEmbedder{}
	svc := NewEmbedService(first, cache)
	ctx := context.Background()

	_, err := svc.EmbedBatch(ctx, []string{"kirchhoff"}, "retrieval_query")
	require.NoError(t, err)

	// A fresh service instance has a cold LRU but the same store.
	second := &fakeEmbedder{}
	svc2 := NewEmbedService(second, cache)
	vectors, err := svc2.EmbedBatch(ctx, []string{"kirchhoff"}, "retrieval_query")
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	require.Empty(t, second.calls)
}

func TestEmbedServiceTaskTypeSeparatesEntries(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc := NewEmbedService(embedder, newMemCacheStore())
	ctx := context.Background()

	_, err := svc.EmbedBatch(ctx, []string{"nodal analysis"}, "retrieval_document")
	require.NoError(t, err)
	_, err = svc.EmbedBatch(ctx, []string{"nodal analysis"}, "retrieval_query")
	require.NoError(t, err)
	require.Len(t, embedder.calls, 2)
}
