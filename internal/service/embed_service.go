package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/thunderlab/examprep/internal/ai"
	"github.com/thunderlab/examprep/internal/model"
)

type embeddingCacheStore interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

// EmbedService fronts the embedding provider with two cache tiers: an
// in-process expirable LRU and the durable embedding_cache table. Both
// are keyed by model, task type and content hash, so identical chunk
// texts and repeated search queries cost one provider call.
type EmbedService struct {
	embedder ai.IEmbedder
	cache    embeddingCacheStore
	lru      *expirable.LRU[string, []float32]
}

func NewEmbedService(embedder ai.IEmbedder, cache embeddingCacheStore) *EmbedService {
	return &EmbedService{
		embedder: embedder,
		cache:    cache,
		lru:      expirable.NewLRU[string, []float32](10000, nil, 2*time.Hour),
	}
}

// EmbedBatch returns one vector per input text, order-preserving.
func (s *EmbedService) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	logger := logutil.GetLogger(ctx)
	vectors := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		key := s.cacheKey(taskType, text)
		if vec, ok := s.lru.Get(key); ok {
			vectors[i] = vec
			continue
		}
		if s.cache != nil {
			vec, ok, err := s.cache.Get(ctx, s.embedder.ModelName(), taskType, contentHash(text))
			if err != nil {
				return nil, err
			}
			if ok {
				vectors[i] = vec
				s.lru.Add(key, vec)
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	batch := make([]string, 0, len(missing))
	for _, i := range missing {
		batch = append(batch, texts[i])
	}
	fresh, err := s.embedder.EmbedBatch(ctx, batch, taskType)
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d: %w", len(batch), err)
	}
	if len(fresh) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(batch))
	}
	now := time.Now().Unix()
	for j, i := range missing {
		vectors[i] = fresh[j]
		s.lru.Add(s.cacheKey(taskType, texts[i]), fresh[j])
		if s.cache != nil {
			if err := s.cache.Save(ctx, &model.EmbeddingCache{
				ModelName:   s.embedder.ModelName(),
				TaskType:    taskType,
				ContentHash: contentHash(texts[i]),
				Embedding:   fresh[j],
				Ctime:       now,
			}); err != nil {
				logger.Warn("save embedding cache failed", zap.Error(err))
			}
		}
	}
	return vectors, nil
}

func (s *EmbedService) cacheKey(taskType, text string) string {
	return s.embedder.ModelName() + "|" + taskType + "|" + contentHash(text)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
