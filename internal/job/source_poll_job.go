package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
	"github.com/thunderlab/examprep/internal/repo"
	"github.com/thunderlab/examprep/internal/service"
)

// SourcePollJob sweeps queued sources into the ingest phase. It backs
// up the push path: payloads lost before dispatch are picked up on the
// next tick.
type SourcePollJob struct {
	sources   *repo.SourceRepo
	ingest    *service.IngestService
	batchSize uint
}

func NewSourcePollJob(sources *repo.SourceRepo, ingest *service.IngestService, batchSize uint) *SourcePollJob {
	if batchSize == 0 {
		batchSize = 10
	}
	return &SourcePollJob{sources: sources, ingest: ingest, batchSize: batchSize}
}

func (j *SourcePollJob) Name() string {
	return "source_poll"
}

func (j *SourcePollJob) Run(ctx context.Context) error {
	sources, err := j.sources.ListByStatus(ctx, model.IngestStatusQueued, j.batchSize)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	for _, source := range sources {
		err := j.ingest.Run(ctx, &payload.Ingest{SourceID: source.SourceID, BlobURL: source.BlobURL})
		if apperr.IsLocked(err) {
			// Another worker got there first.
			continue
		}
		if err != nil {
			logger.Warn("poll ingest failed", zap.String("source_id", source.SourceID), zap.Error(err))
		}
	}
	return nil
}
