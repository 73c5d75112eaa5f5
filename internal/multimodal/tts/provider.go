package tts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/voicepro/internal/audio"
)

// SynthesisRequest holds the parameters for text-to-speech generation.
type SynthesisRequest struct {
	Input string `json:"input"`
	Voice string `json:"voice,omitempty"`
	// Speed scales the speaking rate; 0 means the engine default.
	Speed float64 `json:"speed,omitempty"`
	// Temperature controls sampling variability where the engine supports it.
	Temperature float64 `json:"temperature,omitempty"`
	// Volume is a linear gain applied to the rendered audio; 0 means 1.
	Volume float64 `json:"volume,omitempty"`
}

// SynthesisResult holds the generated audio and its content type.
type SynthesisResult struct {
	Audio       []byte
	ContentType string // always "audio/wav"
}

// TTSProvider is the interface for text-to-speech backends.
type TTSProvider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
	Name() string
}

// ParsePercent turns an edge-style relative value such as "-5%" or "+10%"
// into a multiplier (0.95, 1.1). An empty string is 1.
func ParsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("parse percentage %q: %w", s, err)
	}
	m := 1 + v/100
	if m <= 0 {
		return 0, fmt.Errorf("percentage %q leaves nothing to play", s)
	}
	return m, nil
}

func wavResult(data []byte, volume float64) (*SynthesisResult, error) {
	if volume > 0 && volume != 1 {
		scaled, err := audio.ApplyGain(data, volume)
		if err != nil {
			return nil, fmt.Errorf("apply volume: %w", err)
		}
		data = scaled
	}
	return &SynthesisResult{Audio: data, ContentType: "audio/wav"}, nil
}
