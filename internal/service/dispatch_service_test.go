package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thunderlab/examprep/internal/config"
	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
)

func TestPlanChunks(t *testing.T) {
	tests := []struct {
		name      string
		duration  float64
		chunkSec  float64
		starts    []float64
		durations []float64
	}{
		{
			name:      "ninety minutes",
			duration:  5400,
			chunkSec:  1800,
			starts:    []float64{0, 1800, 3600},
			durations: []float64{1800, 1800, 1800},
		},
		{
			name:      "remainder on last chunk",
			duration:  4500,
			chunkSec:  1800,
			starts:    []float64{0, 1800, 3600},
			durations: []float64{1800, 1800, 900},
		},
		{
			name:      "shorter than one chunk",
			duration:  600,
			chunkSec:  1800,
			starts:    []float64{0},
			durations: []float64{600},
		},
		{
			name:      "unknown duration still yields one chunk",
			duration:  0,
			chunkSec:  1800,
			starts:    []float64{0},
			durations: []float64{0},
		},
		{
			name:      "exact multiple",
			duration:  3600,
			chunkSec:  1800,
			starts:    []float64{0, 1800},
			durations: []float64{1800, 1800},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := planChunks("sess-1", tt.duration, tt.chunkSec)
			require.Len(t, chunks, len(tt.starts))
			for i, chunk := range chunks {
				require.Equal(t, i, chunk.ChunkIndex)
				require.Equal(t, tt.starts[i], chunk.StartOffsetSec)
				require.Equal(t, tt.durations[i], chunk.DurationSec)
				require.Equal(t, model.AudioChunkStatusPending, chunk.Status)
				require.Equal(t, "sess-1", chunk.SessionID)
				require.NotEmpty(t, chunk.ChunkID)
			}
		})
	}
}

func TestPlanChunksUniqueIDs(t *testing.T) {
	chunks := planChunks("sess-1", 7200, 1800)
	seen := map[string]struct{}{}
	for _, chunk := range chunks {
		_, dup := seen[chunk.ChunkID]
		require.False(t, dup)
		seen[chunk.ChunkID] = struct{}{}
	}
}

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	return f.duration, f.err
}

type fakeSigner struct{}

func (fakeSigner) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

type fakeDispatchChunkStore struct {
	mu     sync.Mutex
	chunks []*model.AudioChunk
}

func (f *fakeDispatchChunkStore) InsertBatch(ctx context.Context, chunks []*model.AudioChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	return nil
}

type fakeChunkProcessor struct {
	mu        sync.Mutex
	processed []*model.AudioChunk
}

func (f *fakeChunkProcessor) ProcessChunk(ctx context.Context, session *model.Session, chunk *model.AudioChunk, audioURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, chunk)
	return nil
}

func dispatchFixture(prober *fakeProber) (*DispatchService, *fakeSessionStore, *fakeDispatchChunkStore, *fakeChunkProcessor) {
	sessions := newFakeSessionStore()
	chunks := &fakeDispatchChunkStore{}
	processor := &fakeChunkProcessor{}
	cfg := config.PipelineConfig{
		AudioChunkSec:      1800,
		ExtractWorkers:     2,
		SignedURLTTLMinute: 30,
	}
	svc := NewDispatchService(sessions, chunks, fakeSigner{}, fakeLocker{}, prober, processor, cfg)
	return svc, sessions, chunks, processor
}

func TestDispatchProbeFailureFailsSession(t *testing.T) {
	svc, sessions, chunks, processor := dispatchFixture(&fakeProber{err: errors.New("ffprobe exited 1")})

	err := svc.Run(context.Background(), &payload.Split{SessionID: "sess-1", AudioURL: "audio/sess-1.mp3"})
	require.Error(t, err)
	require.Equal(t, model.SessionStatusFailed, sessions.statuses["sess-1"])
	require.Empty(t, chunks.chunks)
	require.Empty(t, processor.processed)
}

func TestDispatchZeroDurationProbeYieldsWholeFileChunk(t *testing.T) {
	svc, sessions, chunks, processor := dispatchFixture(&fakeProber{duration: 0})

	err := svc.Run(context.Background(), &payload.Split{SessionID: "sess-1", AudioURL: "audio/sess-1.mp3"})
	require.NoError(t, err)
	require.Len(t, chunks.chunks, 1)
	require.Equal(t, float64(0), chunks.chunks[0].DurationSec)
	require.Len(t, processor.processed, 1)
	require.Equal(t, model.SessionStatusReasoning, sessions.statuses["sess-1"])
}
