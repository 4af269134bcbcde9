package payload

import (
	"encoding/json"
	"fmt"

	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
)

// Phase-scoped job payloads. Each phase decodes and validates its own
// variant at the boundary before any orchestrator runs.

type Ingest struct {
	SourceID string `json:"source_id"`
	BlobURL  string `json:"blob_url"`
}

type Split struct {
	SessionID  string `json:"session_id"`
	AudioURL   string `json:"audio_url"`
	Subject    string `json:"subject,omitempty"`
	ExamWindow string `json:"exam_window,omitempty"`
}

// SingleChunk is the legacy per-chunk extraction payload, kept for jobs
// dispatched before the split dispatcher took over fan-out.
type SingleChunk struct {
	SessionID      string  `json:"session_id"`
	AudioChunkID   string  `json:"audio_chunk_id"`
	ChunkURL       string  `json:"chunk_url"`
	StartOffsetSec float64 `json:"start_offset_sec,omitempty"`
	DurationSec    float64 `json:"duration_sec,omitempty"`
	Subject        string  `json:"subject,omitempty"`
	ExamWindow     string  `json:"exam_window,omitempty"`
}

type Retrieve struct {
	SessionID string `json:"session_id"`
}

type Reason struct {
	SessionID  string   `json:"session_id,omitempty"`
	SessionIDs []string `json:"session_ids,omitempty"`
	SubjectID  string   `json:"subject_id,omitempty"`
	ExamWindow string   `json:"exam_window,omitempty"`
}

func decode(raw string, dst interface{}) error {
	if raw == "" {
		return fmt.Errorf("%w: payload is required", apperr.ErrValidation)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: decode payload: %v", apperr.ErrValidation, err)
	}
	return nil
}

func ParseIngest(raw string) (*Ingest, error) {
	var p Ingest
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SourceID == "" || p.BlobURL == "" {
		return nil, fmt.Errorf("%w: source_id and blob_url are required", apperr.ErrValidation)
	}
	return &p, nil
}

func ParseSplit(raw string) (*Split, error) {
	var p Split
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" || p.AudioURL == "" {
		return nil, fmt.Errorf("%w: session_id and audio_url are required", apperr.ErrValidation)
	}
	return &p, nil
}

func ParseSingleChunk(raw string) (*SingleChunk, error) {
	var p SingleChunk
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" || p.AudioChunkID == "" || p.ChunkURL == "" {
		return nil, fmt.Errorf("%w: session_id, audio_chunk_id and chunk_url are required", apperr.ErrValidation)
	}
	return &p, nil
}

func ParseRetrieve(raw string) (*Retrieve, error) {
	var p Retrieve
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", apperr.ErrValidation)
	}
	return &p, nil
}

func ParseReason(raw string) (*Reason, error) {
	var p Reason
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" && len(p.SessionIDs) == 0 {
		return nil, fmt.Errorf("%w: session_id or session_ids is required", apperr.ErrValidation)
	}
	return &p, nil
}

// Targets normalizes the single- and multi-session forms into one id list.
func (p *Reason) Targets() []string {
	if len(p.SessionIDs) > 0 {
		return p.SessionIDs
	}
	return []string{p.SessionID}
}
