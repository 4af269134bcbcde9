package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/thunderlab/examprep/internal/ai"
	"github.com/thunderlab/examprep/internal/config"
	"github.com/thunderlab/examprep/internal/ingest"
	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
	"github.com/thunderlab/examprep/internal/pkg/workerpool"
)

type sourceStore interface {
	Get(ctx context.Context, sourceID string) (*model.Source, error)
	SetStatus(ctx context.Context, sourceID, status, errorMessage string) error
	SetPageCount(ctx context.Context, sourceID string, pageCount int) error
}

type chunkStore interface {
	InsertBatch(ctx context.Context, chunks []*model.Chunk) error
	DeleteBySource(ctx context.Context, sourceID string) error
}

type blobDownloader interface {
	Download(ctx context.Context, key string, dstPath string) error
}

type runLocker interface {
	Acquire(ctx context.Context, phase, entityID string) (func(), error)
}

type docReader interface {
	ingest.TextSampler
	ReadAllPages() ([]ingest.PageText, error)
	Close() error
}

// IngestService runs phase 1: pull the source document from blob
// storage, route it digital or scanned, chunk the text, embed and
// persist the chunks.
type IngestService struct {
	sources     sourceStore
	chunks      chunkStore
	blobs       blobDownloader
	locks       runLocker
	transcriber ai.ITranscriber
	embedder    *EmbedService
	cfg         config.PipelineConfig

	// openDoc is swappable in tests.
	openDoc func(path string) (docReader, error)
}

func NewIngestService(sources sourceStore, chunks chunkStore, blobs blobDownloader, locks runLocker,
	transcriber ai.ITranscriber, embedder *EmbedService, cfg config.PipelineConfig) *IngestService {
	return &IngestService{
		sources:     sources,
		chunks:      chunks,
		blobs:       blobs,
		locks:       locks,
		transcriber: transcriber,
		embedder:    embedder,
		cfg:         cfg,
		openDoc: func(path string) (docReader, error) {
			return ingest.OpenDocument(path)
		},
	}
}

func (s *IngestService) Run(ctx context.Context, p *payload.Ingest) error {
	release, err := s.locks.Acquire(ctx, "ingest", p.SourceID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.run(ctx, p); err != nil {
		if serr := s.sources.SetStatus(ctx, p.SourceID, model.IngestStatusFailed, err.Error()); serr != nil {
			logutil.GetLogger(ctx).Error("mark source failed", zap.String("source_id", p.SourceID), zap.Error(serr))
		}
		return err
	}
	return s.sources.SetStatus(ctx, p.SourceID, model.IngestStatusSucceeded, "")
}

func (s *IngestService) run(ctx context.Context, p *payload.Ingest) error {
	logger := logutil.GetLogger(ctx).With(zap.String("source_id", p.SourceID))
	start := time.Now()

	source, err := s.sources.Get(ctx, p.SourceID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "examprep-doc-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := s.blobs.Download(ctx, p.BlobURL, tmpPath); err != nil {
		return fmt.Errorf("download source: %w", err)
	}
	info, err := os.Stat(tmpPath)
	if err != nil {
		return err
	}
	if info.Size() > s.cfg.MaxDocumentBytes {
		return fmt.Errorf("%w: document is %d bytes, limit %d", apperr.ErrLimitExceeded, info.Size(), s.cfg.MaxDocumentBytes)
	}

	// Only a source that survived download and the size pre-flight counts
	// as running.
	if err := s.sources.SetStatus(ctx, p.SourceID, model.IngestStatusRunning, ""); err != nil {
		return err
	}

	doc, err := s.openDoc(tmpPath)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	pageCount := doc.PageCount()
	if err := s.sources.SetPageCount(ctx, p.SourceID, pageCount); err != nil {
		return err
	}

	class, err := ingest.Classify(doc)
	if err != nil {
		return err
	}
	logger.Info("routed document", zap.String("class", class), zap.Int("pages", pageCount))

	var pages []ingest.PageText
	switch class {
	case ingest.ClassDigital:
		pages, err = doc.ReadAllPages()
		if err != nil {
			return fmt.Errorf("read pages: %w", err)
		}
	case ingest.ClassScanned:
		pages, err = s.transcribeScanned(ctx, tmpPath, pageCount)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown document class: %s", class)
	}

	pieces := ingest.ChunkPages(pages)
	if len(pieces) == 0 {
		logger.Warn("document produced no chunks")
	}

	chunks := make([]*model.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, &model.Chunk{
			ChunkID:     newID(),
			SourceID:    source.SourceID,
			ContentText: piece.Text,
			PageStart:   piece.PageNum,
			PageEnd:     piece.PageNum,
			AnchorPath:  piece.AnchorPath,
			TokenCount:  piece.TokenCount,
		})
	}
	if err := s.embedChunks(ctx, chunks); err != nil {
		return err
	}

	// Re-ingesting a source replaces its chunks wholesale.
	if err := s.chunks.DeleteBySource(ctx, source.SourceID); err != nil {
		return err
	}
	for i := 0; i < len(chunks); i += s.cfg.ChunkInsertBatch {
		end := i + s.cfg.ChunkInsertBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := s.chunks.InsertBatch(ctx, chunks[i:end]); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}
	logger.Info("ingest finished",
		zap.Int("chunks", len(chunks)),
		zap.Duration("cost", time.Since(start)))
	return nil
}

func (s *IngestService) transcribeScanned(ctx context.Context, docPath string, pageCount int) ([]ingest.PageText, error) {
	if pageCount > s.cfg.MaxScannedPages {
		return nil, fmt.Errorf("%w: scanned document has %d pages, limit %d", apperr.ErrLimitExceeded, pageCount, s.cfg.MaxScannedPages)
	}
	raw, err := os.ReadFile(docPath)
	if err != nil {
		return nil, err
	}

	type batchResult struct {
		offset int
		pages  []ai.Page
	}
	var results []batchResult
	var tasks []workerpool.Task
	for offset := 0; offset < pageCount; offset += s.cfg.IngestBatchPages {
		count := s.cfg.IngestBatchPages
		if offset+count > pageCount {
			count = pageCount - offset
		}
		idx := len(results)
		results = append(results, batchResult{offset: offset})
		batchOffset, batchCount := offset, count
		tasks = append(tasks, func(ctx context.Context) error {
			pages, err := s.transcriber.Transcribe(ctx, raw, batchOffset, batchCount)
			if err != nil {
				return err
			}
			results[idx].pages = pages
			return nil
		})
	}

	// One recognition failure poisons the whole document, so fail fast.
	if _, err := workerpool.Run(ctx, len(tasks), workerpool.FailFast, tasks); err != nil {
		return nil, fmt.Errorf("transcribe scanned pages: %w", err)
	}

	var out []ingest.PageText
	for _, result := range results {
		for _, page := range result.pages {
			out = append(out, ingest.PageText{PageNum: page.PageNum, Text: page.Text})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNum < out[j].PageNum })
	return out, nil
}

func (s *IngestService) embedChunks(ctx context.Context, chunks []*model.Chunk) error {
	for i := 0; i < len(chunks); i += s.cfg.EmbedBatchSize {
		end := i + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		texts := make([]string, 0, len(batch))
		for _, c := range batch {
			texts = append(texts, c.ContentText)
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts, "retrieval_document")
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		for j, vec := range vectors {
			batch[j].Embedding = vec
		}
	}
	return nil
}
