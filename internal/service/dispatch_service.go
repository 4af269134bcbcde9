package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/thunderlab/examprep/internal/config"
	"github.com/thunderlab/examprep/internal/media"
	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
	"github.com/thunderlab/examprep/internal/pkg/workerpool"
)

type sessionStore interface {
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	SetStatus(ctx context.Context, sessionID, status string) error
}

type audioChunkStore interface {
	InsertBatch(ctx context.Context, chunks []*model.AudioChunk) error
}

type blobSigner interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type chunkProcessor interface {
	ProcessChunk(ctx context.Context, session *model.Session, chunk *model.AudioChunk, audioURL string) error
}

// DispatchService runs phase 2: probe the session recording, plan
// fixed-length chunks, then fan extraction out over a bounded pool.
type DispatchService struct {
	sessions  sessionStore
	chunks    audioChunkStore
	blobs     blobSigner
	locks     runLocker
	prober    media.IProber
	processor chunkProcessor
	cfg       config.PipelineConfig
}

func NewDispatchService(sessions sessionStore, chunks audioChunkStore, blobs blobSigner, locks runLocker,
	prober media.IProber, processor chunkProcessor, cfg config.PipelineConfig) *DispatchService {
	return &DispatchService{
		sessions:  sessions,
		chunks:    chunks,
		blobs:     blobs,
		locks:     locks,
		prober:    prober,
		processor: processor,
		cfg:       cfg,
	}
}

// planChunks splits duration into chunkSec segments. A recording the
// probe reports as zero-length still gets one whole-file chunk.
func planChunks(sessionID string, durationSec, chunkSec float64) []*model.AudioChunk {
	count := 1
	if durationSec > 0 {
		count = int(math.Ceil(durationSec / chunkSec))
		if count < 1 {
			count = 1
		}
	}
	chunks := make([]*model.AudioChunk, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * chunkSec
		length := chunkSec
		if durationSec > 0 && start+length > durationSec {
			length = durationSec - start
		}
		if durationSec <= 0 {
			length = 0
		}
		chunks = append(chunks, &model.AudioChunk{
			ChunkID:        newID(),
			SessionID:      sessionID,
			ChunkIndex:     i,
			StartOffsetSec: start,
			DurationSec:    length,
			Status:         model.AudioChunkStatusPending,
		})
	}
	return chunks
}

func (s *DispatchService) Run(ctx context.Context, p *payload.Split) error {
	release, err := s.locks.Acquire(ctx, "split", p.SessionID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.run(ctx, p); err != nil {
		if serr := s.sessions.SetStatus(ctx, p.SessionID, model.SessionStatusFailed); serr != nil {
			logutil.GetLogger(ctx).Error("mark session failed", zap.String("session_id", p.SessionID), zap.Error(serr))
		}
		return err
	}
	return nil
}

func (s *DispatchService) run(ctx context.Context, p *payload.Split) error {
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", p.SessionID))

	session, err := s.sessions.Get(ctx, p.SessionID)
	if err != nil {
		return err
	}
	if p.Subject != "" {
		session.SubjectName = p.Subject
	}
	if p.ExamWindow != "" {
		session.ExamWindow = p.ExamWindow
	}

	audioURL, err := s.blobs.SignedURL(ctx, p.AudioURL, time.Duration(s.cfg.SignedURLTTLMinute)*time.Minute)
	if err != nil {
		return fmt.Errorf("sign audio url: %w", err)
	}
	duration, err := s.prober.Duration(ctx, audioURL)
	if err != nil {
		return fmt.Errorf("probe audio duration: %w", err)
	}

	chunks := planChunks(p.SessionID, duration, s.cfg.AudioChunkSec)
	if err := s.chunks.InsertBatch(ctx, chunks); err != nil {
		return fmt.Errorf("insert audio chunks: %w", err)
	}
	if err := s.sessions.SetStatus(ctx, p.SessionID, model.SessionStatusExtracting); err != nil {
		return err
	}
	logger.Info("dispatching audio chunks",
		zap.Float64("duration_sec", duration),
		zap.Int("chunks", len(chunks)))

	tasks := make([]workerpool.Task, 0, len(chunks))
	for _, chunk := range chunks {
		chunk := chunk
		tasks = append(tasks, func(ctx context.Context) error {
			return s.processor.ProcessChunk(ctx, session, chunk, p.AudioURL)
		})
	}
	errs, err := workerpool.Run(ctx, s.cfg.ExtractWorkers, workerpool.IsolateErrors, tasks)
	if err != nil {
		return err
	}

	var failed int
	for i, taskErr := range errs {
		if taskErr != nil {
			failed++
			logger.Warn("audio chunk extraction failed",
				zap.Int("chunk_index", chunks[i].ChunkIndex),
				zap.Error(taskErr))
		}
	}
	if failed > 0 {
		if failed == len(chunks) {
			return fmt.Errorf("all %d audio chunks failed extraction", failed)
		}
		if s.cfg.FailOnPartial {
			return fmt.Errorf("%d of %d audio chunks failed extraction", failed, len(chunks))
		}
		logger.Warn("continuing with partial extraction",
			zap.Int("failed", failed),
			zap.Int("total", len(chunks)))
	}
	return s.sessions.SetStatus(ctx, p.SessionID, model.SessionStatusReasoning)
}
