package model

type AudioRef struct {
	SignalID string `json:"signal_id"`
}

type Citation struct {
	ChunkID string `json:"chunk_id"`
	Reason  string `json:"reason,omitempty"`
}

type ReportItem struct {
	Title      string     `json:"title"`
	Why        string     `json:"why"`
	Confidence float64    `json:"confidence"`
	AudioRefs  []AudioRef `json:"audio_refs"`
	Citations  []Citation `json:"citations"`
}

// Report is the three-category body stored in session_reports.report_json.
type Report struct {
	ProfessorMentioned []ReportItem `json:"professor_mentioned"`
	Likely             []ReportItem `json:"likely"`
	TrapWarnings       []ReportItem `json:"trap_warnings"`
	Note               string       `json:"note,omitempty"`
}

type SessionReport struct {
	ReportID  string  `json:"report_id"`
	SessionID string  `json:"session_id"`
	Report    *Report `json:"report_json"`
	Ctime     int64   `json:"ctime"`
}
