package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/thunderlab/examprep/internal/model"
	apperr "github.com/thunderlab/examprep/internal/pkg/errors"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiProvider struct {
	apiKey string
}

func init() {
	Register("gemini", createGeminiFactory)
}

func createGeminiFactory(args interface{}) (IProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiProvider{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) client(ctx context.Context) (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (p *geminiProvider) EmbedBatch(ctx context.Context, modelName string, texts []string, taskType string) ([][]float32, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	var config *genai.EmbedContentConfig
	if taskType != "" {
		config = &genai.EmbedContentConfig{TaskType: taskType}
	}
	resp, err := client.Models.EmbedContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(resp.Embeddings))
	}
	vectors := make([][]float32, 0, len(texts))
	for _, emb := range resp.Embeddings {
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}

const transcribeSystemPrompt = `You are a precise document transcriber.
Transcribe the requested page range of the attached document into plain text, one entry per page.
Return a single JSON object: {"pages": [{"page_num": <1-based page number>, "text": "<full page text>"}]}.
Include every requested page exactly once, even when a page is blank (use an empty string).
Do not summarize, translate, or reorder pages.`

func (p *geminiProvider) Transcribe(ctx context.Context, modelName string, doc []byte, pageOffset, pageCount int) ([]Page, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf("Transcribe pages %d through %d (1-based, inclusive) of the attached document.",
		pageOffset+1, pageOffset+pageCount)
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: doc}},
			{Text: prompt},
		},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: transcribeSystemPrompt}}},
		ResponseMIMEType:  "application/json",
	}
	resp, err := client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: transcription call: %v", apperr.ErrTransientService, err)
	}
	var out struct {
		Pages []Page `json:"pages"`
	}
	if err := json.Unmarshal([]byte(stripJSONFence(resp.Text())), &out); err != nil {
		return nil, fmt.Errorf("%w: transcription response not parseable: %v", apperr.ErrTransientService, err)
	}
	return out.Pages, nil
}

const extractSystemPrompt = `You are an exam-focused lecture analyzer. Extract exam-relevant signals from the attached lecture audio and generate textbook search intents.
Rules:
- Extract no more than 8 of the most important signals.
- Merge near-identical signals into one with the most representative time range; if content or search queries overlap by more than 70 percent, discard or merge.
- signal_type is one of "hint", "likely", "trap".
- content is a short summary, at most 200 characters.
- search_queries holds 2 to 6 keyword strings of 2 to 120 characters each.
- audio_chunk_id echoes the id given in the input.
- t0_sec and t1_sec are start and end offsets within the attached audio.
- importance is a float in [0, 1].
- Do not guess textbook pages, citations, source ids, or chunk ids.
- If no signals are found, return {"signals": []}.`

func (p *geminiProvider) ExtractSignals(ctx context.Context, modelName string, req ExtractRequest) ([]RawSignal, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	prompt := fmt.Sprintf("session_id=%q\naudio_chunk_id=%q\nsubject=%q\nexam_window=%q\n\nExtract signals and search intents from the attached audio.",
		req.SessionID, req.AudioChunkID, req.Subject, req.ExamWindow)
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: req.Audio}},
			{Text: prompt},
		},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: extractSystemPrompt}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    signalSchema(),
	}
	resp, err := client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, err
	}
	var out struct {
		Signals []RawSignal `json:"signals"`
	}
	if err := json.Unmarshal([]byte(stripJSONFence(resp.Text())), &out); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	return out.Signals, nil
}

func signalSchema() *genai.Schema {
	return &genai.Schema{
		Type:     genai.TypeObject,
		Required: []string{"signals"},
		Properties: map[string]*genai.Schema{
			"signals": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Required: []string{
						"signal_type", "content", "search_queries",
						"audio_chunk_id", "t0_sec", "t1_sec", "importance",
					},
					Properties: map[string]*genai.Schema{
						"signal_type":    {Type: genai.TypeString, Enum: []string{"hint", "likely", "trap"}},
						"content":        {Type: genai.TypeString},
						"search_queries": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
						"audio_chunk_id": {Type: genai.TypeString},
						"t0_sec":         {Type: genai.TypeNumber},
						"t1_sec":         {Type: genai.TypeNumber},
						"importance":     {Type: genai.TypeNumber},
					},
				},
			},
		},
	}
}

const reasoningSystemPrompt = `You are the head TA of an exam preparation service.
Correlate the audio signal timeline with the textbook reference blocks and produce an exam-prep report.
Classify items into three categories:
- professor_mentioned: explicitly emphasized by the professor.
- likely: high probability based on a signal plus matching textbook content.
- trap_warnings: misconceptions or tricky points called out in lecture.
Each item carries: title, why (rationale citing audio and text), confidence in [0, 1],
audio_refs ([{"signal_id": "..."}]) and citations ([{"chunk_id": "...", "reason": "..."}]).
Rules:
- Use EXACT chunk ids from the input in citations; never invent ids.
- If a signal is explicit in audio but has no matching reference, keep it and note the missing reference in why.
- Ignore reference blocks unrelated to every signal.
- Return a single valid JSON object with keys professor_mentioned, likely, trap_warnings.`

func (p *geminiProvider) Synthesize(ctx context.Context, modelName string, contextText string) (*model.Report, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: contextText}},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: reasoningSystemPrompt}}},
		ResponseMIMEType:  "application/json",
	}
	resp, err := client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, err
	}
	var report model.Report
	if err := json.Unmarshal([]byte(stripJSONFence(resp.Text())), &report); err != nil {
		return nil, fmt.Errorf("decode synthesis response: %w", err)
	}
	return &report, nil
}

func stripJSONFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
