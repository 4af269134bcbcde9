package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/thunderlab/examprep/internal/config"
	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
	"github.com/thunderlab/examprep/internal/pkg/workerpool"
	"github.com/thunderlab/examprep/internal/repo"
)

type signalReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]model.Signal, error)
}

type evidenceWriter interface {
	InsertBatch(ctx context.Context, candidates []*model.EvidenceCandidate) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

type hybridSearcher interface {
	Search(ctx context.Context, queryText string, queryVec []float32, channelK, finalK, rrfK int) ([]repo.SearchResult, error)
}

// RetrievalService runs phase 3: deduplicate signal queries, run each
// through hybrid search, and persist evidence candidates fanned out per
// requesting signal.
type RetrievalService struct {
	sessions sessionStore
	signals  signalReader
	evidence evidenceWriter
	searcher hybridSearcher
	embedder *EmbedService
	locks    runLocker
	cfg      config.PipelineConfig
}

func NewRetrievalService(sessions sessionStore, signals signalReader, evidence evidenceWriter,
	searcher hybridSearcher, embedder *EmbedService, locks runLocker, cfg config.PipelineConfig) *RetrievalService {
	return &RetrievalService{
		sessions: sessions,
		signals:  signals,
		evidence: evidence,
		searcher: searcher,
		embedder: embedder,
		locks:    locks,
		cfg:      cfg,
	}
}

func (s *RetrievalService) Run(ctx context.Context, p *payload.Retrieve) error {
	release, err := s.locks.Acquire(ctx, "retrieve", p.SessionID)
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
	return s.sessions.SetStatus(ctx, p.SessionID, model.SessionStatusReasoning)
}

func (s *RetrievalService) run(ctx context.Context, p *payload.Retrieve) error {
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", p.SessionID))
	start := time.Now()

	if err := s.sessions.SetStatus(ctx, p.SessionID, model.SessionStatusGathering); err != nil {
		return err
	}
	signals, err := s.signals.ListBySession(ctx, p.SessionID)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		// Nothing to search for; reasoning will emit the empty report.
		logger.Warn("session has no signals, skipping retrieval")
		return nil
	}

	set := DeduplicateQueries(signals)
	if len(set.Queries) == 0 {
		logger.Warn("signals carried no usable search queries")
		return nil
	}
	logger.Info("retrieval workload",
		zap.Int("signals", len(signals)),
		zap.Int("unique_queries", len(set.Queries)))

	// Embedding failure is fatal: without vectors every query would run
	// keyword-only and silently degrade the whole report.
	vectors, err := s.embedder.EmbedBatch(ctx, set.Queries, "retrieval_query")
	if err != nil {
		return fmt.Errorf("embed queries: %w", err)
	}

	var mu sync.Mutex
	var candidates []*model.EvidenceCandidate
	tasks := make([]workerpool.Task, 0, len(set.Queries))
	for i, query := range set.Queries {
		query, vec := query, vectors[i]
		tasks = append(tasks, func(ctx context.Context) error {
			results, err := s.searcher.Search(ctx, query, vec,
				s.cfg.SearchChannelTopK, s.cfg.SearchFinalTopK, s.cfg.SearchRRFConstant)
			if err != nil {
				return err
			}
			rows := make([]*model.EvidenceCandidate, 0, len(results)*len(set.Requesters[query]))
			for _, result := range results {
				for _, signalID := range set.Requesters[query] {
					rows = append(rows, &model.EvidenceCandidate{
						CandidateID:  newID(),
						SessionID:    p.SessionID,
						SignalID:     signalID,
						ChunkID:      result.ChunkID,
						QueryText:    query,
						VectorRank:   result.VectorRank,
						VectorScore:  result.VectorScore,
						KeywordRank:  result.KeywordRank,
						KeywordScore: result.KeywordScore,
						FusedScore:   result.FusedScore,
					})
				}
			}
			mu.Lock()
			candidates = append(candidates, rows...)
			mu.Unlock()
			return nil
		})
	}
	errs, err := workerpool.Run(ctx, s.cfg.SearchWorkers, workerpool.IsolateErrors, tasks)
	if err != nil {
		return err
	}
	for i, taskErr := range errs {
		// A failed query drops out of the evidence pool; the rest of
		// the run proceeds.
		if taskErr != nil {
			logger.Warn("query search failed", zap.String("query", set.Queries[i]), zap.Error(taskErr))
		}
	}

	if err := s.evidence.DeleteBySession(ctx, p.SessionID); err != nil {
		return err
	}
	for i := 0; i < len(candidates); i += s.cfg.EvidenceBatchSize {
		end := i + s.cfg.EvidenceBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		if err := s.evidence.InsertBatch(ctx, candidates[i:end]); err != nil {
			return fmt.Errorf("insert evidence: %w", err)
		}
	}
	logger.Info("retrieval finished",
		zap.Int("candidates", len(candidates)),
		zap.Duration("cost", time.Since(start)))
	return nil
}
