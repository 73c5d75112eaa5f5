package stt

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAISTTConfig holds configuration for the OpenAI STT backend.
type OpenAISTTConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
}

// OpenAISTT transcribes audio using OpenAI's Whisper API (or a compatible endpoint).
type OpenAISTT struct {
	client *openai.Client
	model  string
}

// NewOpenAISTT creates an OpenAISTT with sensible defaults applied.
func NewOpenAISTT(cfg OpenAISTTConfig) *OpenAISTT {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: 300 * time.Second}
	return &OpenAISTT{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

func (o *OpenAISTT) Name() string { return "openai-whisper" }

func (o *OpenAISTT) Model() string { return o.model }

// Load resolves the configured model so a bad key or model name fails at startup.
func (o *OpenAISTT) Load(ctx context.Context) error {
	if _, err := o.client.GetModel(ctx, o.model); err != nil {
		return fmt.Errorf("resolve model %s: %w", o.model, err)
	}
	return nil
}

// Transcribe uploads the audio and asks for verbose JSON so segments and
// the detected language come back with the text.
func (o *OpenAISTT) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	areq := openai.AudioRequest{
		Model:    o.model,
		FilePath: req.FilePath,
		Reader:   req.Audio,
		Prompt:   req.Prompt,
		Language: req.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if req.WordTimestamps {
		areq.TimestampGranularities = []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
			openai.TranscriptionTimestampGranularityWord,
		}
	}

	resp, err := o.client.CreateTranscription(ctx, areq)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}

	out := &TranscriptionResponse{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: make([]Segment, 0, len(resp.Segments)),
	}
	for _, s := range resp.Segments {
		out.Segments = append(out.Segments, Segment{ID: s.ID, Start: s.Start, End: s.End, Text: s.Text})
	}
	words := make([]Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		words = append(words, Word{Word: w.Word, Start: w.Start, End: w.End})
	}
	attachWords(out.Segments, words)
	return out, nil
}
