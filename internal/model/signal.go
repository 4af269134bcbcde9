package model

const (
	SignalTypeHint   = "hint"
	SignalTypeLikely = "likely"
	SignalTypeTrap   = "trap"
)

type Signal struct {
	SignalID      string   `json:"signal_id"`
	SessionID     string   `json:"session_id"`
	AudioChunkID  string   `json:"audio_chunk_id"`
	ChunkIndex    int      `json:"chunk_index"`
	SignalType    string   `json:"signal_type"`
	Content       string   `json:"content"`
	SearchQueries []string `json:"search_queries"`
	T0Sec         float64  `json:"t0_sec"`
	T1Sec         float64  `json:"t1_sec"`
	Importance    float64  `json:"importance"`
}

type EvidenceCandidate struct {
	CandidateID  string  `json:"candidate_id"`
	SessionID    string  `json:"session_id"`
	SignalID     string  `json:"signal_id"`
	ChunkID      string  `json:"chunk_id"`
	QueryText    string  `json:"query_text"`
	VectorRank   int     `json:"vector_rank"`
	VectorScore  float64 `json:"vector_score"`
	KeywordRank  int     `json:"keyword_rank"`
	KeywordScore float64 `json:"keyword_score"`
	FusedScore   float64 `json:"fused_score"`
}
