package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/thunderlab/examprep/internal/ai"
	"github.com/thunderlab/examprep/internal/blob"
	"github.com/thunderlab/examprep/internal/config"
	"github.com/thunderlab/examprep/internal/media"
	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
)

const maxSignalsPerChunk = 8

type audioChunkWriter interface {
	Get(ctx context.Context, chunkID string) (*model.AudioChunk, error)
	SetStatus(ctx context.Context, chunkID, status, errorMessage string) error
}

type signalWriter interface {
	InsertBatch(ctx context.Context, signals []*model.Signal) error
}

// ExtractService runs one audio chunk through slicing and signal
// extraction. It is called per chunk by the split dispatcher and
// directly by the legacy single-chunk entrypoint.
type ExtractService struct {
	chunks    audioChunkWriter
	signals   signalWriter
	sessions  sessionStore
	blobs     blob.Store
	slicer    media.ISlicer
	extractor ai.ISignalService
	cfg       config.PipelineConfig
}

func NewExtractService(chunks audioChunkWriter, signals signalWriter, sessions sessionStore,
	blobs blob.Store, slicer media.ISlicer, extractor ai.ISignalService, cfg config.PipelineConfig) *ExtractService {
	return &ExtractService{
		chunks:    chunks,
		signals:   signals,
		sessions:  sessions,
		blobs:     blobs,
		slicer:    slicer,
		extractor: extractor,
		cfg:       cfg,
	}
}

// ProcessChunk slices the chunk's time range out of the session
// recording, extracts signals from it and persists them. A failure
// marks only this chunk failed; the dispatcher decides session fate.
func (s *ExtractService) ProcessChunk(ctx context.Context, session *model.Session, chunk *model.AudioChunk, audioKey string) error {
	if err := s.chunks.SetStatus(ctx, chunk.ChunkID, model.AudioChunkStatusProcessing, ""); err != nil {
		return err
	}
	if err := s.processChunk(ctx, session, chunk, audioKey); err != nil {
		if serr := s.chunks.SetStatus(ctx, chunk.ChunkID, model.AudioChunkStatusFailed, err.Error()); serr != nil {
			logutil.GetLogger(ctx).Error("mark audio chunk failed",
				zap.String("chunk_id", chunk.ChunkID), zap.Error(serr))
		}
		return err
	}
	return s.chunks.SetStatus(ctx, chunk.ChunkID, model.AudioChunkStatusCompleted, "")
}

func (s *ExtractService) processChunk(ctx context.Context, session *model.Session, chunk *model.AudioChunk, audioKey string) error {
	logger := logutil.GetLogger(ctx).With(
		zap.String("session_id", session.SessionID),
		zap.Int("chunk_index", chunk.ChunkIndex))

	var audio []byte
	if chunk.DurationSec > 0 {
		srcURL, err := s.blobs.SignedURL(ctx, audioKey, time.Duration(s.cfg.SignedURLTTLMinute)*time.Minute)
		if err != nil {
			return fmt.Errorf("sign recording url: %w", err)
		}
		slicePath, err := tempSlicePath(chunk.ChunkID)
		if err != nil {
			return err
		}
		defer os.Remove(slicePath)

		if err := s.slicer.Slice(ctx, srcURL, chunk.StartOffsetSec, chunk.DurationSec, slicePath); err != nil {
			return fmt.Errorf("slice audio: %w", err)
		}
		// Park the slice in blob storage so a retry of the extraction
		// call does not re-cut it; always clean up afterwards.
		sliceKey := fmt.Sprintf("tmp/slices/%s/%s.mp3", session.SessionID, chunk.ChunkID)
		f, err := os.Open(slicePath)
		if err != nil {
			return err
		}
		uploadErr := s.blobs.Upload(ctx, sliceKey, f)
		_ = f.Close()
		if uploadErr != nil {
			return fmt.Errorf("upload audio slice: %w", uploadErr)
		}
		defer func() {
			if err := s.blobs.Delete(ctx, sliceKey); err != nil {
				logger.Warn("delete temp audio slice", zap.String("key", sliceKey), zap.Error(err))
			}
		}()

		audio, err = os.ReadFile(slicePath)
		if err != nil {
			return err
		}
	} else {
		// Unknown duration: feed the whole recording to the model.
		wholePath, err := tempSlicePath(chunk.ChunkID)
		if err != nil {
			return err
		}
		defer os.Remove(wholePath)
		if err := s.blobs.Download(ctx, audioKey, wholePath); err != nil {
			return fmt.Errorf("download recording: %w", err)
		}
		audio, err = os.ReadFile(wholePath)
		if err != nil {
			return err
		}
	}

	raws, err := s.extractor.ExtractSignals(ctx, ai.ExtractRequest{
		Audio:        audio,
		MimeType:     "audio/mpeg",
		SessionID:    session.SessionID,
		AudioChunkID: chunk.ChunkID,
		Subject:      session.SubjectName,
		ExamWindow:   session.ExamWindow,
	})
	if err != nil {
		return fmt.Errorf("extract signals: %w", err)
	}
	signals := convertSignals(session, chunk, raws)
	if len(signals) > 0 {
		if err := s.signals.InsertBatch(ctx, signals); err != nil {
			return fmt.Errorf("insert signals: %w", err)
		}
	}
	logger.Info("chunk extracted", zap.Int("signals", len(signals)))
	return nil
}

// convertSignals rebases model time offsets onto the session timeline
// and stamps the authoritative chunk identity over whatever the model
// echoed back. At most maxSignalsPerChunk survive per chunk.
func convertSignals(session *model.Session, chunk *model.AudioChunk, raws []ai.RawSignal) []*model.Signal {
	if len(raws) > maxSignalsPerChunk {
		raws = raws[:maxSignalsPerChunk]
	}
	signals := make([]*model.Signal, 0, len(raws))
	for _, raw := range raws {
		signals = append(signals, &model.Signal{
			SignalID:      newID(),
			SessionID:     session.SessionID,
			AudioChunkID:  chunk.ChunkID,
			ChunkIndex:    chunk.ChunkIndex,
			SignalType:    raw.SignalType,
			Content:       raw.Content,
			SearchQueries: raw.SearchQueries,
			T0Sec:         chunk.StartOffsetSec + raw.T0Sec,
			T1Sec:         chunk.StartOffsetSec + raw.T1Sec,
			Importance:    raw.Importance,
		})
	}
	return signals
}

// RunSingle handles the legacy payload pointing at an already-sliced
// chunk file. The chunk row must exist.
func (s *ExtractService) RunSingle(ctx context.Context, p *payload.SingleChunk) error {
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
	chunk, err := s.chunks.Get(ctx, p.AudioChunkID)
	if err != nil {
		return err
	}
	if p.DurationSec > 0 {
		chunk.StartOffsetSec = p.StartOffsetSec
		chunk.DurationSec = p.DurationSec
	}

	if err := s.chunks.SetStatus(ctx, chunk.ChunkID, model.AudioChunkStatusProcessing, ""); err != nil {
		return err
	}
	if err := s.runSingle(ctx, session, chunk, p.ChunkURL); err != nil {
		if serr := s.chunks.SetStatus(ctx, chunk.ChunkID, model.AudioChunkStatusFailed, err.Error()); serr != nil {
			logutil.GetLogger(ctx).Error("mark audio chunk failed",
				zap.String("chunk_id", chunk.ChunkID), zap.Error(serr))
		}
		return err
	}
	return s.chunks.SetStatus(ctx, chunk.ChunkID, model.AudioChunkStatusCompleted, "")
}

func (s *ExtractService) runSingle(ctx context.Context, session *model.Session, chunk *model.AudioChunk, chunkKey string) error {
	path, err := tempSlicePath(chunk.ChunkID)
	if err != nil {
		return err
	}
	defer os.Remove(path)
	if err := s.blobs.Download(ctx, chunkKey, path); err != nil {
		return fmt.Errorf("download chunk audio: %w", err)
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	raws, err := s.extractor.ExtractSignals(ctx, ai.ExtractRequest{
		Audio:        audio,
		MimeType:     "audio/mpeg",
		SessionID:    session.SessionID,
		AudioChunkID: chunk.ChunkID,
		Subject:      session.SubjectName,
		ExamWindow:   session.ExamWindow,
	})
	if err != nil {
		return fmt.Errorf("extract signals: %w", err)
	}
	signals := convertSignals(session, chunk, raws)
	if len(signals) > 0 {
		return s.signals.InsertBatch(ctx, signals)
	}
	return nil
}

func tempSlicePath(chunkID string) (string, error) {
	f, err := os.CreateTemp("", "examprep-audio-"+chunkID+"-*.mp3")
	if err != nil {
		return "", fmt.Errorf("create temp audio file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	return path, nil
}
