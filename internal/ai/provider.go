package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thunderlab/examprep/internal/model"
)

// Page is one transcribed page returned by a document-understanding call.
type Page struct {
	PageNum int    `json:"page_num"`
	Text    string `json:"text"`
}

// RawSignal is the structured-output shape the extraction model returns
// for one exam-relevant moment. Ids and time offsets are corrected by the
// caller before persistence.
type RawSignal struct {
	SignalType    string   `json:"signal_type"`
	Content       string   `json:"content"`
	SearchQueries []string `json:"search_queries"`
	AudioChunkID  string   `json:"audio_chunk_id"`
	T0Sec         float64  `json:"t0_sec"`
	T1Sec         float64  `json:"t1_sec"`
	Importance    float64  `json:"importance"`
}

type ExtractRequest struct {
	Audio        []byte
	MimeType     string
	SessionID    string
	AudioChunkID string
	Subject      string
	ExamWindow   string
}

// IProvider is the full surface one model vendor implements. The model
// name is passed per call so one provider can serve all four phases.
type IProvider interface {
	Name() string
	EmbedBatch(ctx context.Context, modelName string, texts []string, taskType string) ([][]float32, error)
	Transcribe(ctx context.Context, modelName string, doc []byte, pageOffset, pageCount int) ([]Page, error)
	ExtractSignals(ctx context.Context, modelName string, req ExtractRequest) ([]RawSignal, error)
	Synthesize(ctx context.Context, modelName string, contextText string) (*model.Report, error)
}

type IEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	ModelName() string
}

type ITranscriber interface {
	Transcribe(ctx context.Context, doc []byte, pageOffset, pageCount int) ([]Page, error)
}

type ISignalService interface {
	ExtractSignals(ctx context.Context, req ExtractRequest) ([]RawSignal, error)
}

type IReasoner interface {
	Synthesize(ctx context.Context, contextText string) (*model.Report, error)
}

type embedder struct {
	provider IProvider
	model    string
}

func NewEmbedder(p IProvider, modelName string) IEmbedder {
	return &embedder{provider: p, model: modelName}
}

func (e *embedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return e.provider.EmbedBatch(ctx, e.model, texts, taskType)
}

func (e *embedder) ModelName() string {
	return e.model
}

type transcriber struct {
	provider IProvider
	model    string
}

func NewTranscriber(p IProvider, modelName string) ITranscriber {
	return &transcriber{provider: p, model: modelName}
}

func (t *transcriber) Transcribe(ctx context.Context, doc []byte, pageOffset, pageCount int) ([]Page, error) {
	return t.provider.Transcribe(ctx, t.model, doc, pageOffset, pageCount)
}

type signalService struct {
	provider IProvider
	model    string
}

func NewSignalService(p IProvider, modelName string) ISignalService {
	return &signalService{provider: p, model: modelName}
}

func (s *signalService) ExtractSignals(ctx context.Context, req ExtractRequest) ([]RawSignal, error) {
	return s.provider.ExtractSignals(ctx, s.model, req)
}

type reasoner struct {
	provider IProvider
	model    string
}

func NewReasoner(p IProvider, modelName string) IReasoner {
	return &reasoner{provider: p, model: modelName}
}

func (r *reasoner) Synthesize(ctx context.Context, contextText string) (*model.Report, error) {
	return r.provider.Synthesize(ctx, r.model, contextText)
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
