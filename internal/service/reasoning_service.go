package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/thunderlab/examprep/internal/ai"
	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
)

type sessionBatchStore interface {
	GetByIDs(ctx context.Context, sessionIDs []string) ([]model.Session, error)
	SetStatusAll(ctx context.Context, sessionIDs []string, status string) error
}

type signalBatchReader interface {
	ListBySessions(ctx context.Context, sessionIDs []string) ([]model.Signal, error)
}

type evidenceReader interface {
	ListBySessions(ctx context.Context, sessionIDs []string) ([]model.EvidenceCandidate, error)
}

type chunkReader interface {
	GetByIDs(ctx context.Context, chunkIDs []string) ([]model.Chunk, error)
}

type reportWriter interface {
	Replace(ctx context.Context, report *model.SessionReport) error
}

// ReasoningService runs phase 4: assemble the evidence context across
// one or more sessions, synthesize the exam-prep report, validate it
// and persist one copy per session.
type ReasoningService struct {
	sessions sessionBatchStore
	signals  signalBatchReader
	evidence evidenceReader
	chunks   chunkReader
	reports  reportWriter
	reasoner ai.IReasoner
	locks    runLocker
}

func NewReasoningService(sessions sessionBatchStore, signals signalBatchReader, evidence evidenceReader,
	chunks chunkReader, reports reportWriter, reasoner ai.IReasoner, locks runLocker) *ReasoningService {
	return &ReasoningService{
		sessions: sessions,
		signals:  signals,
		evidence: evidence,
		chunks:   chunks,
		reports:  reports,
		reasoner: reasoner,
		locks:    locks,
	}
}

func (s *ReasoningService) Run(ctx context.Context, p *payload.Reason) error {
	targets := p.Targets()
	for _, sessionID := range targets {
		release, err := s.locks.Acquire(ctx, "reason", sessionID)
		if err != nil {
			return err
		}
		defer release()
	}

	if err := s.run(ctx, targets, p.SubjectID); err != nil {
		if serr := s.sessions.SetStatusAll(ctx, targets, model.SessionStatusFailed); serr != nil {
			logutil.GetLogger(ctx).Error("mark sessions failed", zap.Strings("session_ids", targets), zap.Error(serr))
		}
		return err
	}
	return s.sessions.SetStatusAll(ctx, targets, model.SessionStatusCompleted)
}

func (s *ReasoningService) run(ctx context.Context, targets []string, subjectID string) error {
	logger := logutil.GetLogger(ctx).With(zap.Strings("session_ids", targets))
	start := time.Now()

	sessions, err := s.sessions.GetByIDs(ctx, targets)
	if err != nil {
		return err
	}
	if len(sessions) != len(targets) {
		return fmt.Errorf("expected %d sessions, found %d", len(targets), len(sessions))
	}
	// Subject comes from the sessions when the payload omits it.
	if subjectID == "" {
		subjectID = sessions[0].SubjectID
	}
	for _, session := range sessions {
		if session.SubjectID != subjectID {
			return fmt.Errorf("session %s belongs to subject %s, not %s", session.SessionID, session.SubjectID, subjectID)
		}
	}
	if err := s.sessions.SetStatusAll(ctx, targets, model.SessionStatusReasoning); err != nil {
		return err
	}

	signals, err := s.signals.ListBySessions(ctx, targets)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		logger.Warn("no signals across sessions, writing empty report")
		return s.writeReports(ctx, targets, &model.Report{Note: "no signals detected"})
	}

	candidates, err := s.evidence.ListBySessions(ctx, targets)
	if err != nil {
		return err
	}
	chunkIDs := uniqueChunkIDs(candidates)
	var chunks []model.Chunk
	if len(chunkIDs) > 0 {
		chunks, err = s.chunks.GetByIDs(ctx, chunkIDs)
		if err != nil {
			return err
		}
	}

	contextText := AssembleContext(sessions, signals, chunks)
	report, err := s.reasoner.Synthesize(ctx, contextText)
	if err != nil {
		return fmt.Errorf("synthesize report: %w", err)
	}

	known := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		known[chunk.ChunkID] = struct{}{}
	}
	report = ValidateReport(report, known)

	if err := s.writeReports(ctx, targets, report); err != nil {
		return err
	}
	logger.Info("reasoning finished",
		zap.Int("signals", len(signals)),
		zap.Int("reference_chunks", len(chunks)),
		zap.Duration("cost", time.Since(start)))
	return nil
}

func (s *ReasoningService) writeReports(ctx context.Context, targets []string, report *model.Report) error {
	now := time.Now().Unix()
	for _, sessionID := range targets {
		if err := s.reports.Replace(ctx, &model.SessionReport{
			ReportID:  newID(),
			SessionID: sessionID,
			Report:    report,
			Ctime:     now,
		}); err != nil {
			return fmt.Errorf("save report for %s: %w", sessionID, err)
		}
	}
	return nil
}

func uniqueChunkIDs(candidates []model.EvidenceCandidate) []string {
	seen := make(map[string]struct{}, len(candidates))
	var ids []string
	for _, candidate := range candidates {
		if _, ok := seen[candidate.ChunkID]; ok {
			continue
		}
		seen[candidate.ChunkID] = struct{}{}
		ids = append(ids, candidate.ChunkID)
	}
	return ids
}
