package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/thunderlab/examprep/internal/model"
)

// AssembleContext renders sessions, signals and reference chunks into
// the deterministic text block fed to the reasoning model. The same
// inputs always produce the same bytes, so reruns hit the provider
// cache.
func AssembleContext(sessions []model.Session, signals []model.Signal, chunks []model.Chunk) string {
	var b strings.Builder

	b.WriteString("## Exam Session Info\n")
	for _, session := range sessions {
		fmt.Fprintf(&b, "- session=%s subject=%s exam_window=%s\n",
			session.SessionID, session.SubjectName, session.ExamWindow)
	}

	ordered := make([]model.Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SessionID != ordered[j].SessionID {
			return ordered[i].SessionID < ordered[j].SessionID
		}
		if ordered[i].ChunkIndex != ordered[j].ChunkIndex {
			return ordered[i].ChunkIndex < ordered[j].ChunkIndex
		}
		return ordered[i].T0Sec < ordered[j].T0Sec
	})
	b.WriteString("\n## Audio Signals Timeline\n")
	for _, signal := range ordered {
		fmt.Fprintf(&b, "[#SIGNAL id=%s t=%d:%.0f-%.0f type=%s importance=%.2f]\n%s\n",
			signal.SignalID, signal.ChunkIndex, signal.T0Sec, signal.T1Sec,
			signal.SignalType, signal.Importance, signal.Content)
	}

	refs := make([]model.Chunk, len(chunks))
	copy(refs, chunks)
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].PageStart != refs[j].PageStart {
			return refs[i].PageStart < refs[j].PageStart
		}
		return refs[i].ChunkID < refs[j].ChunkID
	})
	b.WriteString("\n## Textbook Reference Blocks\n")
	for _, chunk := range refs {
		fmt.Fprintf(&b, "[[CHUNK id=%s page=%d-%d anchor=%s]]\n%s\n",
			chunk.ChunkID, chunk.PageStart, chunk.PageEnd, chunk.AnchorPath, chunk.ContentText)
	}
	return b.String()
}
