package stt

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// LocalSTTConfig holds configuration for the local whisper.cpp STT backend.
type LocalSTTConfig struct {
	BaseURL string // default: "http://localhost:8178"
	Model   string
}

// LocalSTT wraps OpenAISTT pointing at a local OpenAI-compatible whisper server.
// Start the server with: ./server -m models/ggml-medium.bin --port 8178
type LocalSTT struct {
	*OpenAISTT
	baseURL string
}

// NewLocalSTT creates a LocalSTT backed by a local whisper.cpp HTTP server.
func NewLocalSTT(cfg LocalSTTConfig) *LocalSTT {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8178"
	}
	return &LocalSTT{
		OpenAISTT: NewOpenAISTT(OpenAISTTConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
			// No API key needed for local server
		}),
		baseURL: baseURL,
	}
}

func (l *LocalSTT) Name() string { return "local-whisper" }

// Load checks that the server is reachable. Local servers do not list models.
func (l *LocalSTT) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reach whisper server: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("whisper server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
