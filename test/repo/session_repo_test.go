package repo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/repo"
	"github.com/thunderlab/examprep/test/testutil"
)

func TestSessionRepoStatusTransitions(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	sessions := repo.NewSessionRepo(db)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, sessions.Create(ctx, &model.Session{
		SessionID:   id,
		SubjectID:   "subj-1",
		SubjectName: "Circuits I",
		ExamWindow:  "2026 winter",
		AudioURL:    "audio/" + id + ".mp3",
		Status:      model.SessionStatusQueued,
	}))

	for _, status := range []string{
		model.SessionStatusExtracting,
		model.SessionStatusGathering,
		model.SessionStatusReasoning,
		model.SessionStatusCompleted,
	} {
		require.NoError(t, sessions.SetStatus(ctx, id, status))
		got, err := sessions.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, status, got.Status)
	}
}

func TestSessionRepoBatchOps(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	sessions := repo.NewSessionRepo(db)
	ctx := context.Background()
	first, second := uuid.NewString(), uuid.NewString()

	for _, id := range []string{first, second} {
		require.NoError(t, sessions.Create(ctx, &model.Session{
			SessionID: id,
			SubjectID: "subj-batch",
			Status:    model.SessionStatusQueued,
		}))
	}

	require.NoError(t, sessions.SetStatusAll(ctx, []string{first, second}, model.SessionStatusReasoning))
	items, err := sessions.GetByIDs(ctx, []string{first, second})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.Equal(t, model.SessionStatusReasoning, item.Status)
	}
}

func TestAudioChunkRepoRoundTrip(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	chunks := repo.NewAudioChunkRepo(db)
	ctx := context.Background()
	sessionID := uuid.NewString()

	batch := []*model.AudioChunk{
		{ChunkID: uuid.NewString(), SessionID: sessionID, ChunkIndex: 1, StartOffsetSec: 1800, DurationSec: 1800, Status: model.AudioChunkStatusPending},
		{ChunkID: uuid.NewString(), SessionID: sessionID, ChunkIndex: 0, StartOffsetSec: 0, DurationSec: 1800, Status: model.AudioChunkStatusPending},
	}
	require.NoError(t, chunks.InsertBatch(ctx, batch))

	items, err := chunks.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 0, items[0].ChunkIndex)
	require.Equal(t, 1, items[1].ChunkIndex)

	require.NoError(t, chunks.SetStatus(ctx, batch[0].ChunkID, model.AudioChunkStatusFailed, "ffmpeg exit 1"))
	got, err := chunks.Get(ctx, batch[0].ChunkID)
	require.NoError(t, err)
	require.Equal(t, model.AudioChunkStatusFailed, got.Status)
	require.Equal(t, "ffmpeg exit 1", got.ErrorMessage)

	n, err := chunks.CountByStatus(ctx, sessionID, model.AudioChunkStatusPending)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
