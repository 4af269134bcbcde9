package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunderlab/examprep/internal/model"
	"github.com/thunderlab/examprep/internal/payload"
	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
)

type fakeSessionLister struct {
	byStatus map[string][]model.Session
}

func (f *fakeSessionLister) ListByStatus(ctx context.Context, status string, limit uint) ([]model.Session, error) {
	return f.byStatus[status], nil
}

type fakeEvidenceCounter struct {
	counts map[string]int
}

func (f *fakeEvidenceCounter) CountBySession(ctx context.Context, sessionID string) (int, error) {
	return f.counts[sessionID], nil
}

// pollRecorder implements all three phase runners and records the order
// phases fire in per session.
type pollRecorder struct {
	calls        []string
	retrievalErr error
}

func (r *pollRecorder) record(phase, sessionID string) {
	r.calls = append(r.calls, phase+":"+sessionID)
}

type splitRecorder struct{ *pollRecorder }

func (r splitRecorder) Run(ctx context.Context, p *payload.Split) error {
	r.record("split", p.SessionID)
	return nil
}

type retrieveRecorder struct{ *pollRecorder }

func (r retrieveRecorder) Run(ctx context.Context, p *payload.Retrieve) error {
	r.record("retrieve", p.SessionID)
	return r.retrievalErr
}

type reasonRecorder struct{ *pollRecorder }

func (r reasonRecorder) Run(ctx context.Context, p *payload.Reason) error {
	r.record("reason", p.SessionID)
	return nil
}

func pollFixture(sessions *fakeSessionLister, evidence *fakeEvidenceCounter) (*SessionPollJob, *pollRecorder) {
	rec := &pollRecorder{}
	j := NewSessionPollJob(sessions, evidence,
		splitRecorder{rec}, retrieveRecorder{rec}, reasonRecorder{rec}, 10)
	return j, rec
}

func TestSessionPollRetrievesBeforeReasoning(t *testing.T) {
	sessions := &fakeSessionLister{byStatus: map[string][]model.Session{
		model.SessionStatusReasoning: {{SessionID: "sess-1"}},
	}}
	j, rec := pollFixture(sessions, &fakeEvidenceCounter{counts: map[string]int{}})

	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, []string{"retrieve:sess-1", "reason:sess-1"}, rec.calls)
}

func TestSessionPollSkipsRetrievalWhenEvidenceExists(t *testing.T) {
	sessions := &fakeSessionLister{byStatus: map[string][]model.Session{
		model.SessionStatusReasoning: {{SessionID: "sess-1"}},
	}}
	evidence := &fakeEvidenceCounter{counts: map[string]int{"sess-1": 12}}
	j, rec := pollFixture(sessions, evidence)

	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, []string{"reason:sess-1"}, rec.calls)
}

func TestSessionPollRetrievalFailureDefersReasoning(t *testing.T) {
	sessions := &fakeSessionLister{byStatus: map[string][]model.Session{
		model.SessionStatusReasoning: {{SessionID: "sess-1"}, {SessionID: "sess-2"}},
	}}
	evidence := &fakeEvidenceCounter{counts: map[string]int{"sess-2": 3}}
	j, rec := pollFixture(sessions, evidence)
	rec.retrievalErr = apperr.ErrLocked

	// sess-1's retrieval is locked elsewhere, so its reasoning must wait
	// for a later sweep; sess-2 proceeds regardless.
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, []string{"retrieve:sess-1", "reason:sess-2"}, rec.calls)
}

func TestSessionPollDispatchesQueuedSessions(t *testing.T) {
	sessions := &fakeSessionLister{byStatus: map[string][]model.Session{
		model.SessionStatusQueued: {
			{SessionID: "sess-1", AudioURL: "audio/sess-1.mp3"},
			{SessionID: "sess-2", AudioURL: "audio/sess-2.mp3"},
		},
	}}
	j, rec := pollFixture(sessions, &fakeEvidenceCounter{counts: map[string]int{}})

	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, []string{"split:sess-1", "split:sess-2"}, rec.calls)
}
