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

func TestSourceRepoLifecycle(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	sources := repo.NewSourceRepo(db)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, sources.Create(ctx, &model.Source{
		SourceID:     id,
		SubjectID:    "subj-1",
		Title:        "circuits textbook",
		BlobURL:      "docs/" + id + ".pdf",
		IngestStatus: model.IngestStatusQueued,
	}))

	got, err := sources.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.IngestStatusQueued, got.IngestStatus)
	require.NotZero(t, got.Ctime)

	require.NoError(t, sources.SetPageCount(ctx, id, 42))
	require.NoError(t, sources.SetStatus(ctx, id, model.IngestStatusSucceeded, ""))

	got, err = sources.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 42, got.PageCount)
	require.Equal(t, model.IngestStatusSucceeded, got.IngestStatus)
}

func TestSourceRepoListByStatus(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	sources := repo.NewSourceRepo(db)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, sources.Create(ctx, &model.Source{
		SourceID:     id,
		BlobURL:      "docs/" + id + ".pdf",
		IngestStatus: model.IngestStatusFailed,
	}))

	items, err := sources.ListByStatus(ctx, model.IngestStatusFailed, 100)
	require.NoError(t, err)
	found := false
	for _, item := range items {
		if item.SourceID == id {
			found = true
		}
	}
	require.True(t, found)
}

func TestSourceRepoGetMissing(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	sources := repo.NewSourceRepo(db)
	_, err := sources.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
}
