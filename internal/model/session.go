package model

const (
	SessionStatusQueued     = "queued"
	SessionStatusExtracting = "extracting"
	SessionStatusGathering  = "gathering"
	SessionStatusReasoning  = "reasoning"
	SessionStatusCompleted  = "completed"
	SessionStatusFailed     = "failed"
)

const (
	AudioChunkStatusPending    = "pending"
	AudioChunkStatusProcessing = "processing"
	AudioChunkStatusCompleted  = "completed"
	AudioChunkStatusFailed     = "failed"
)

type Session struct {
	SessionID   string `json:"session_id"`
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	ExamWindow  string `json:"exam_window"`
	AudioURL    string `json:"audio_url"`
	Status      string `json:"status"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}

type AudioChunk struct {
	ChunkID        string  `json:"chunk_id"`
	SessionID      string  `json:"session_id"`
	ChunkIndex     int     `json:"chunk_index"`
	StartOffsetSec float64 `json:"start_offset_sec"`
	DurationSec    float64 `json:"duration_sec"`
	Status         string  `json:"status"`
	ErrorMessage   string  `json:"error_message"`
}
