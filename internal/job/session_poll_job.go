package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
)

type sessionLister interface {
	ListByStatus(ctx context.Context, status string, limit uint) ([]model.Session, error)
}

type evidenceCounter interface {
	CountBySession(ctx context.Context, sessionID string) (int, error)
}

type splitRunner interface {
	Run(ctx context.Context, p *payload.Split) error
}

type retrievalRunner interface {
	Run(ctx context.Context, p *payload.Retrieve) error
}

type reasoningRunner interface {
	Run(ctx context.Context, p *payload.Reason) error
}

// SessionPollJob drives stalled sessions forward: queued sessions enter
// the split phase, sessions parked in reasoning get evidence gathered
// and their report built.
type SessionPollJob struct {
	sessions  sessionLister
	evidence  evidenceCounter
	dispatch  splitRunner
	retrieval retrievalRunner
	reasoning reasoningRunner
	batchSize uint
}

func NewSessionPollJob(sessions sessionLister, evidence evidenceCounter, dispatch splitRunner,
	retrieval retrievalRunner, reasoning reasoningRunner, batchSize uint) *SessionPollJob {
	if batchSize == 0 {
		batchSize = 10
	}
	return &SessionPollJob{
		sessions:  sessions,
		evidence:  evidence,
		dispatch:  dispatch,
		retrieval: retrieval,
		reasoning: reasoning,
		batchSize: batchSize,
	}
}

func (j *SessionPollJob) Name() string {
	return "session_poll"
}

func (j *SessionPollJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)

	queued, err := j.sessions.ListByStatus(ctx, model.SessionStatusQueued, j.batchSize)
	if err != nil {
		return err
	}
	for _, session := range queued {
		err := j.dispatch.Run(ctx, &payload.Split{SessionID: session.SessionID, AudioURL: session.AudioURL})
		if apperr.IsLocked(err) {
			continue
		}
		if err != nil {
			logger.Warn("poll split failed", zap.String("session_id", session.SessionID), zap.Error(err))
		}
	}

	pending, err := j.sessions.ListByStatus(ctx, model.SessionStatusReasoning, j.batchSize)
	if err != nil {
		return err
	}
	for _, session := range pending {
		if err := j.gatherEvidence(ctx, session.SessionID); err != nil {
			if apperr.IsLocked(err) {
				continue
			}
			logger.Warn("poll retrieval failed", zap.String("session_id", session.SessionID), zap.Error(err))
			continue
		}
		err := j.reasoning.Run(ctx, &payload.Reason{SessionID: session.SessionID})
		if apperr.IsLocked(err) {
			continue
		}
		if err != nil {
			logger.Warn("poll reasoning failed", zap.String("session_id", session.SessionID), zap.Error(err))
		}
	}
	return nil
}

// gatherEvidence runs retrieval for a session the dispatcher parked in
// reasoning before any evidence was collected. Retrieval replaces the
// session's candidate set wholesale, so re-running it is safe; the count
// check only avoids redundant searches when an externally dispatched
// retrieve already filled the table.
func (j *SessionPollJob) gatherEvidence(ctx context.Context, sessionID string) error {
	count, err := j.evidence.CountBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return j.retrieval.Run(ctx, &payload.Retrieve{SessionID: sessionID})
}
