// Package vad classifies audio windows as speech or non-speech on top of an
// external speech-probability model.
package vad

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrModelUnavailable is returned by New when the model cannot be loaded.
var ErrModelUnavailable = errors.New("vad model unavailable")

// Model scores a mono window with the probability that it contains speech.
type Model interface {
	SpeechProbability(ctx context.Context, samples []float32, sampleRate int) (float64, error)
}

// Loader is implemented by models that need to be loaded or probed before use.
type Loader interface {
	Load(ctx context.Context) error
}

type Config struct {
	Threshold  float64
	SampleRate int
	// MinWindow is the model's receptive size in samples; zero disables it.
	MinWindow      int
	WindowDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold:      0.5,
		SampleRate:     16000,
		MinWindow:      512,
		WindowDuration: 30 * time.Millisecond,
	}
}

// Segment is a speech span in sample offsets, End exclusive.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Detector struct {
	model Model
	cfg   Config
}

// New loads the model when it implements Loader. A load failure is fatal:
// there is no detector without a model.
func New(ctx context.Context, model Model, cfg Config) (*Detector, error) {
	if model == nil {
		return nil, ErrModelUnavailable
	}
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.MinWindow < 0 {
		cfg.MinWindow = def.MinWindow
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if l, ok := model.(Loader); ok {
		if err := l.Load(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	}
	return &Detector{model: model, cfg: cfg}, nil
}

func (d *Detector) Config() Config { return d.cfg }

// IsSpeech reports whether the window holds speech. Windows shorter than
// MinWindow are never speech and never reach the model.
func (d *Detector) IsSpeech(ctx context.Context, window []float32) (bool, error) {
	if len(window) == 0 || len(window) < d.cfg.MinWindow {
		return false, nil
	}
	p, err := d.model.SpeechProbability(ctx, window, d.cfg.SampleRate)
	if err != nil {
		return false, fmt.Errorf("speech probability: %w", err)
	}
	return p >= d.cfg.Threshold, nil
}

// SpeechSegments scans samples in WindowDuration windows, widened to
// MinWindow when that is larger, and returns the spans of consecutive speech
// windows. A trailing partial window is ignored.
func (d *Detector) SpeechSegments(ctx context.Context, samples []float32) ([]Segment, error) {
	size := windowSize(d.cfg.SampleRate, d.cfg.WindowDuration)
	if size <= 0 {
		return nil, fmt.Errorf("window of %s is empty at %d Hz", d.cfg.WindowDuration, d.cfg.SampleRate)
	}
	size = max(size, d.cfg.MinWindow)

	var (
		segments []Segment
		open     bool
		start    int
	)
	for i := 0; i+size <= len(samples); i += size {
		speech, err := d.IsSpeech(ctx, samples[i:i+size])
		if err != nil {
			return nil, fmt.Errorf("window at %d: %w", i, err)
		}
		switch {
		case speech && !open:
			open, start = true, i
		case !speech && open:
			segments = append(segments, Segment{Start: start, End: i})
			open = false
		}
	}
	if open {
		segments = append(segments, Segment{Start: start, End: len(samples) - len(samples)%size})
	}
	return segments, nil
}

func windowSize(sampleRate int, d time.Duration) int {
	return int(math.Round(float64(sampleRate) * d.Seconds()))
}
