package job

import (
	"context"
	"time"

	"github.com/thunderlab/examprep/internal/repo"
)

type EmbeddingCacheCleanupJob struct {
	cache      *repo.EmbeddingCacheRepo
	maxAgeDays int
}

func NewEmbeddingCacheCleanupJob(cache *repo.EmbeddingCacheRepo, maxAgeDays int) *EmbeddingCacheCleanupJob {
	return &EmbeddingCacheCleanupJob{cache: cache, maxAgeDays: maxAgeDays}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.cache == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	_, err := j.cache.DeleteBefore(ctx, cutoff)
	return err
}
