package model

const (
	IngestStatusQueued    = "queued"
	IngestStatusRunning   = "running"
	IngestStatusSucceeded = "succeeded"
	IngestStatusFailed    = "failed"
)

type Source struct {
	SourceID     string `json:"source_id"`
	SubjectID    string `json:"subject_id"`
	Title        string `json:"title"`
	BlobURL      string `json:"blob_url"`
	IngestStatus string `json:"ingest_status"`
	PageCount    int    `json:"page_count"`
	ErrorMessage string `json:"error_message"`
	Ctime        int64  `json:"ctime"`
	Mtime        int64  `json:"mtime"`
}

type Chunk struct {
	ChunkID     string    `json:"chunk_id"`
	SourceID    string    `json:"source_id"`
	ContentText string    `json:"content_text"`
	PageStart   int       `json:"page_start"`
	PageEnd     int       `json:"page_end"`
	AnchorPath  string    `json:"anchor_path"`
	TokenCount  int       `json:"token_count"`
	Embedding   []float32 `json:"-"`
}
