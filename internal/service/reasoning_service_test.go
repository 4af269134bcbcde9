package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
)

type fakeSessionBatchStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	statuses map[string]string
}

func newFakeSessionBatchStore(sessions ...*model.Session) *fakeSessionBatchStore {
	store := &fakeSessionBatchStore{sessions: map[string]*model.Session{}, statuses: map[string]string{}}
	for _, session := range sessions {
		store.sessions[session.SessionID] = session
	}
	return store
}

func (f *fakeSessionBatchStore) GetByIDs(ctx context.Context, sessionIDs []string) ([]model.Session, error) {
	var out []model.Session
	for _, id := range sessionIDs {
		if session, ok := f.sessions[id]; ok {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (f *fakeSessionBatchStore) SetStatusAll(ctx context.Context, sessionIDs []string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range sessionIDs {
		f.statuses[id] = status
	}
	return nil
}

type fakeSignalBatchReader struct {
	signals []model.Signal
}

func (f *fakeSignalBatchReader) ListBySessions(ctx context.Context, sessionIDs []string) ([]model.Signal, error) {
	return f.signals, nil
}

type fakeEvidenceReader struct {
	candidates []model.EvidenceCandidate
}

func (f *fakeEvidenceReader) ListBySessions(ctx context.Context, sessionIDs []string) ([]model.EvidenceCandidate, error) {
	return f.candidates, nil
}

type fakeChunkReader struct {
	chunks []model.Chunk
}

func (f *fakeChunkReader) GetByIDs(ctx context.Context, chunkIDs []string) ([]model.Chunk, error) {
	var out []model.Chunk
	want := map[string]struct{}{}
	for _, id := range chunkIDs {
		want[id] = struct{}{}
	}
	for _, chunk := range f.chunks {
		if _, ok := want[chunk.ChunkID]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

type fakeReportWriter struct {
	mu      sync.Mutex
	reports map[string]*model.SessionReport
}

func newFakeReportWriter() *fakeReportWriter {
	return &fakeReportWriter{reports: map[string]*model.SessionReport{}}
}

func (f *fakeReportWriter) Replace(ctx context.Context, report *model.SessionReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[report.SessionID] = report
	return nil
}

type fakeReasoner struct {
	contexts []string
	report   *model.Report
	fail     error
}

func (f *fakeReasoner) Synthesize(ctx context.Context, contextText string) (*model.Report, error) {
	f.contexts = append(f.contexts, contextText)
	if f.fail != nil {
		return nil, f.fail
	}
	return f.report, nil
}

func TestReasoningSingleSession(t *testing.T) {
	sessions := newFakeSessionBatchStore(&model.Session{SessionID: "sess-1", SubjectID: "subj-1", SubjectName: "Circuits I"})
	signals := &fakeSignalBatchReader{signals: []model.Signal{
		{SignalID: "sig-1", SessionID: "sess-1", SignalType: model.SignalTypeLikely, Content: "thevenin on exam"},
	}}
	evidence := &fakeEvidenceReader{candidates: []model.EvidenceCandidate{
		{SessionID: "sess-1", SignalID: "sig-1", ChunkID: "c1"},
		{SessionID: "sess-1", SignalID: "sig-1", ChunkID: "c1"},
		{SessionID: "sess-1", SignalID: "sig-1", ChunkID: "c2"},
	}}
	chunks := &fakeChunkReader{chunks: []model.Chunk{
		{ChunkID: "c1", ContentText: "Thevenin equivalents"},
		{ChunkID: "c2", ContentText: "Norton equivalents"},
	}}
	reports := newFakeReportWriter()
	reasoner := &fakeReasoner{report: &model.Report{
		Likely: []model.ReportItem{
			{Title: "thevenin", Confidence: 0.9, Citations: []model.Citation{{ChunkID: "c1"}, {ChunkID: "bogus"}}},
			{Title: "weak guess", Confidence: 0.1},
		},
	}}
	svc := NewReasoningService(sessions, signals, evidence, chunks, reports, reasoner, fakeLocker{})

	err := svc.Run(context.Background(), &payload.Reason{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusCompleted, sessions.statuses["sess-1"])

	saved := reports.reports["sess-1"]
	require.NotNil(t, saved)
	require.Len(t, saved.Report.Likely, 1)
	require.Equal(t, "thevenin", saved.Report.Likely[0].Title)
	// Only the fetched chunk survives as a citation.
	require.Len(t, saved.Report.Likely[0].Citations, 1)
	require.Equal(t, "c1", saved.Report.Likely[0].Citations[0].ChunkID)
}

func TestReasoningNoSignalsWritesPlaceholder(t *testing.T) {
	sessions := newFakeSessionBatchStore(&model.Session{SessionID: "sess-1", SubjectID: "subj-1"})
	reports := newFakeReportWriter()
	reasoner := &fakeReasoner{}
	svc := NewReasoningService(sessions, &fakeSignalBatchReader{}, &fakeEvidenceReader{}, &fakeChunkReader{}, reports, reasoner, fakeLocker{})

	err := svc.Run(context.Background(), &payload.Reason{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Empty(t, reasoner.contexts)
	require.Equal(t, model.SessionStatusCompleted, sessions.statuses["sess-1"])
	require.Equal(t, "no signals detected", reports.reports["sess-1"].Report.Note)
}

func TestReasoningMultiSessionSharedSubject(t *testing.T) {
	sessions := newFakeSessionBatchStore(
		&model.Session{SessionID: "sess-1", SubjectID: "subj-1"},
		&model.Session{SessionID: "sess-2", SubjectID: "subj-1"},
	)
	signals := &fakeSignalBatchReader{signals: []model.Signal{
		{SignalID: "sig-1", SessionID: "sess-1"},
		{SignalID: "sig-2", SessionID: "sess-2"},
	}}
	reports := newFakeReportWriter()
	reasoner := &fakeReasoner{report: &model.Report{}}
	svc := NewReasoningService(sessions, signals, &fakeEvidenceReader{}, &fakeChunkReader{}, reports, reasoner, fakeLocker{})

	err := svc.Run(context.Background(), &payload.Reason{SessionIDs: []string{"sess-1", "sess-2"}})
	require.NoError(t, err)
	require.Len(t, reasoner.contexts, 1)
	require.NotNil(t, reports.reports["sess-1"])
	require.NotNil(t, reports.reports["sess-2"])
	require.Equal(t, model.SessionStatusCompleted, sessions.statuses["sess-1"])
	require.Equal(t, model.SessionStatusCompleted, sessions.statuses["sess-2"])
}

func TestReasoningRejectsMixedSubjects(t *testing.T) {
	sessions := newFakeSessionBatchStore(
		&model.Session{SessionID: "sess-1", SubjectID: "subj-1"},
		&model.Session{SessionID: "sess-2", SubjectID: "subj-2"},
	)
	svc := NewReasoningService(sessions, &fakeSignalBatchReader{}, &fakeEvidenceReader{}, &fakeChunkReader{}, newFakeReportWriter(), &fakeReasoner{}, fakeLocker{})

	err := svc.Run(context.Background(), &payload.Reason{SessionIDs: []string{"sess-1", "sess-2"}})
	require.Error(t, err)
	require.Equal(t, model.SessionStatusFailed, sessions.statuses["sess-1"])
	require.Equal(t, model.SessionStatusFailed, sessions.statuses["sess-2"])
}

func TestReasoningSynthesizeFailureMarksFailed(t *testing.T) {
	sessions := newFakeSessionBatchStore(&model.Session{SessionID: "sess-1", SubjectID: "subj-1"})
	signals := &fakeSignalBatchReader{signals: []model.Signal{{SignalID: "sig-1", SessionID: "sess-1"}}}
	svc := NewReasoningService(sessions, signals, &fakeEvidenceReader{}, &fakeChunkReader{}, newFakeReportWriter(),
		&fakeReasoner{fail: errors.New("model overloaded")}, fakeLocker{})

	err := svc.Run(context.Background(), &payload.Reason{SessionID: "sess-1"})
	require.Error(t, err)
	require.Equal(t, model.SessionStatusFailed, sessions.statuses["sess-1"])
}
