package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunderlab/examprep/internal/ai"
	"github.com/thunderlab/examprep/internal/config"
	"github.com/thunderlab/examprep/internal/ingest"
	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
)

type fakeSourceStore struct {
	mu       sync.Mutex
	statuses map[string]string
	history  map[string][]string
	errors   map[string]string
	pages    map[string]int
}

func newFakeSourceStore() *fakeSourceStore {
	return &fakeSourceStore{
		statuses: map[string]string{},
		history:  map[string][]string{},
		errors:   map[string]string{},
		pages:    map[string]int{},
	}
}

func (f *fakeSourceStore) Get(ctx context.Context, sourceID string) (*model.Source, error) {
	return &model.Source{SourceID: sourceID, SubjectID: "subj-1", IngestStatus: model.IngestStatusQueued}, nil
}

func (f *fakeSourceStore) SetStatus(ctx context.Context, sourceID, status, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[sourceID] = status
	f.history[sourceID] = append(f.history[sourceID], status)
	f.errors[sourceID] = errorMessage
	return nil
}

func (f *fakeSourceStore) SetPageCount(ctx context.Context, sourceID string, pageCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[sourceID] = pageCount
	return nil
}

type fakeChunkStore struct {
	mu      sync.Mutex
	chunks  []*model.Chunk
	deleted []string
}

func (f *fakeChunkStore) InsertBatch(ctx context.Context, chunks []*model.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeChunkStore) DeleteBySource(ctx context.Context, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sourceID)
	return nil
}

type fakeDoc struct {
	pages []ingest.PageText
}

func (f *fakeDoc) PageCount() int { return len(f.pages) }

func (f *fakeDoc) PageText(num int) (string, error) {
	return f.pages[num-1].Text, nil
}

func (f *fakeDoc) ReadAllPages() ([]ingest.PageText, error) {
	return f.pages, nil
}

func (f *fakeDoc) Close() error { return nil }

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, doc []byte, pageOffset, pageCount int) ([]ai.Page, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	pages := make([]ai.Page, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		pages = append(pages, ai.Page{
			PageNum: pageOffset + i + 1,
			Text:    fmt.Sprintf("recognized text for page %d with enough characters to read densely", pageOffset+i+1),
		})
	}
	return pages, nil
}

func densePages(n int) []ingest.PageText {
	pages := make([]ingest.PageText, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, ingest.PageText{
			PageNum: i,
			Text:    strings.Repeat("circuit analysis fundamentals ", 10) + fmt.Sprintf("page %d", i),
		})
	}
	return pages
}

func ingestFixture(doc *fakeDoc, transcriber *fakeTranscriber, cfg config.PipelineConfig) (*IngestService, *fakeSourceStore, *fakeChunkStore, *memBlobStore) {
	sources := newFakeSourceStore()
	chunks := &fakeChunkStore{}
	blobs := newMemBlobStore()
	embedSvc := NewEmbedService(&fakeEmbedder{}, newMemCacheStore())
	svc := NewIngestService(sources, chunks, blobs, fakeLocker{}, transcriber, embedSvc, cfg)
	svc.openDoc = func(path string) (docReader, error) { return doc, nil }
	return svc, sources, chunks, blobs
}

func ingestTestConfig() config.PipelineConfig {
	return config.PipelineConfig{
		MaxDocumentBytes: 700 << 20,
		MaxScannedPages:  2000,
		IngestBatchPages: 20,
		EmbedBatchSize:   8,
		ChunkInsertBatch: 100,
	}
}

func TestIngestDigitalDocument(t *testing.T) {
	doc := &fakeDoc{pages: densePages(10)}
	transcriber := &fakeTranscriber{}
	svc, sources, chunks, blobs := ingestFixture(doc, transcriber, ingestTestConfig())
	blobs.objects["docs/src-1.pdf"] = []byte("%PDF-fake")

	err := svc.Run(context.Background(), &payload.Ingest{SourceID: "src-1", BlobURL: "docs/src-1.pdf"})
	require.NoError(t, err)

	require.Equal(t, model.IngestStatusSucceeded, sources.statuses["src-1"])
	require.Equal(t, []string{model.IngestStatusRunning, model.IngestStatusSucceeded}, sources.history["src-1"])
	require.Equal(t, 10, sources.pages["src-1"])
	// Dense native text never goes through recognition.
	require.Zero(t, transcriber.calls)
	require.NotEmpty(t, chunks.chunks)
	require.Equal(t, []string{"src-1"}, chunks.deleted)
	for _, chunk := range chunks.chunks {
		require.Equal(t, "src-1", chunk.SourceID)
		require.NotEmpty(t, chunk.Embedding)
		require.NotEmpty(t, chunk.AnchorPath)
	}
}

func TestIngestScannedDocument(t *testing.T) {
	// Sparse native text on every sampled page forces the scanned route.
	pages := make([]ingest.PageText, 0, 45)
	for i := 1; i <= 45; i++ {
		pages = append(pages, ingest.PageText{PageNum: i, Text: "ix"})
	}
	doc := &fakeDoc{pages: pages}
	transcriber := &fakeTranscriber{}
	svc, sources, chunks, blobs := ingestFixture(doc, transcriber, ingestTestConfig())
	blobs.objects["docs/src-2.pdf"] = []byte("%PDF-fake")

	err := svc.Run(context.Background(), &payload.Ingest{SourceID: "src-2", BlobURL: "docs/src-2.pdf"})
	require.NoError(t, err)

	require.Equal(t, model.IngestStatusSucceeded, sources.statuses["src-2"])
	// 45 pages in batches of 20 is three recognition calls.
	require.Equal(t, 3, transcriber.calls)
	require.Len(t, chunks.chunks, 45)

	// Pages must come back in order regardless of batch completion order.
	last := 0
	for _, chunk := range chunks.chunks {
		require.GreaterOrEqual(t, chunk.PageStart, last)
		last = chunk.PageStart
	}
}

func TestIngestRejectsOversizedDocument(t *testing.T) {
	doc := &fakeDoc{pages: densePages(1)}
	cfg := ingestTestConfig()
	cfg.MaxDocumentBytes = 4
	svc, sources, _, blobs := ingestFixture(doc, &fakeTranscriber{}, cfg)
	blobs.objects["docs/huge.pdf"] = []byte("way more than four bytes")

	err := svc.Run(context.Background(), &payload.Ingest{SourceID: "src-3", BlobURL: "docs/huge.pdf"})
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrLimitExceeded)
	require.Equal(t, model.IngestStatusFailed, sources.statuses["src-3"])
	require.NotEmpty(t, sources.errors["src-3"])
	// A source rejected by the size pre-flight never counts as running.
	require.NotContains(t, sources.history["src-3"], model.IngestStatusRunning)
}

func TestIngestRejectsTooManyScannedPages(t *testing.T) {
	pages := make([]ingest.PageText, 0, 30)
	for i := 1; i <= 30; i++ {
		pages = append(pages, ingest.PageText{PageNum: i, Text: ""})
	}
	doc := &fakeDoc{pages: pages}
	cfg := ingestTestConfig()
	cfg.MaxScannedPages = 25
	svc, sources, _, blobs := ingestFixture(doc, &fakeTranscriber{}, cfg)
	blobs.objects["docs/scan.pdf"] = []byte("%PDF-fake")

	err := svc.Run(context.Background(), &payload.Ingest{SourceID: "src-4", BlobURL: "docs/scan.pdf"})
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrLimitExceeded)
	require.Equal(t, model.IngestStatusFailed, sources.statuses["src-4"])
}

func TestIngestMissingBlobFails(t *testing.T) {
	doc := &fakeDoc{pages: densePages(1)}
	svc, sources, _, _ := ingestFixture(doc, &fakeTranscriber{}, ingestTestConfig())

	err := svc.Run(context.Background(), &payload.Ingest{SourceID: "src-5", BlobURL: "docs/missing.pdf"})
	require.Error(t, err)
	require.Equal(t, model.IngestStatusFailed, sources.statuses["src-5"])
}
