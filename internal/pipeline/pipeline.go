// Package pipeline turns audio into transcripts: whole files, in-memory
// utterances, and live PCM streams gated by voice activity.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nikhilbhutani/voicepro/internal/audio"
	"github.com/nikhilbhutani/voicepro/internal/cache"
	"github.com/nikhilbhutani/voicepro/internal/events"
	"github.com/nikhilbhutani/voicepro/internal/metrics"
	"github.com/nikhilbhutani/voicepro/internal/multimodal/stt"
	"github.com/nikhilbhutani/voicepro/internal/vad"
)

// ErrOddPCM is reported by streams that receive a chunk with a dangling byte.
var ErrOddPCM = audio.ErrOddPCM

// TranscriptCache stores file transcriptions by content.
type TranscriptCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type Options struct {
	// Model names the transcription model in cache keys and logs.
	Model           string
	DefaultLanguage string
	SampleRate      int
	// FlushOnClose transcribes speech still buffered when a stream ends.
	FlushOnClose bool
	// QueueSize bounds the utterances waiting for the model per stream.
	QueueSize int
	Cache     TranscriptCache
	Events    events.Publisher
	Metrics   *metrics.Metrics
}

// FileResult is the transcription of a whole file.
type FileResult struct {
	Text     string        `json:"text"`
	Segments []stt.Segment `json:"segments"`
	Language string        `json:"language"`
	File     string        `json:"file"`
}

// Result is the transcription of one utterance.
type Result struct {
	Text     string        `json:"text"`
	Segments []stt.Segment `json:"segments"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
}

type Pipeline struct {
	provider stt.STTProvider
	detector *vad.Detector
	opts     Options

	initOnce sync.Once
	initErr  error
}

func New(provider stt.STTProvider, detector *vad.Detector, opts Options) *Pipeline {
	if opts.Model == "" {
		opts.Model = provider.Name()
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "pl"
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	return &Pipeline{provider: provider, detector: detector, opts: opts}
}

func (p *Pipeline) SampleRate() int { return p.opts.SampleRate }

func (p *Pipeline) DefaultLanguage() string { return p.opts.DefaultLanguage }

// Initialize loads the transcription model once. Concurrent callers wait for
// the same attempt, and a failed attempt is returned to every later caller.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.initOnce.Do(func() {
		start := time.Now()
		slog.Info("loading transcription model", "provider", p.provider.Name(), "model", p.opts.Model)
		if l, ok := p.provider.(stt.Loader); ok {
			if err := l.Load(ctx); err != nil {
				p.initErr = fmt.Errorf("load transcription model: %w", err)
				slog.Error("transcription model unavailable", "error", err)
				return
			}
		}
		slog.Info("transcription model ready", "model", p.opts.Model, "elapsed", time.Since(start))
	})
	return p.initErr
}

func (p *Pipeline) language(hint string) string {
	if hint == "" {
		return p.opts.DefaultLanguage
	}
	return hint
}

// TranscribeFile transcribes path as a whole, with word timestamps.
func (p *Pipeline) TranscribeFile(ctx context.Context, path, language string) (*FileResult, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	language = p.language(language)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	var key string
	if p.opts.Cache != nil {
		sum := sha256.Sum256(data)
		key = cache.TranscriptKey(hex.EncodeToString(sum[:]), p.opts.Model, language)
		var cached FileResult
		hit, err := p.opts.Cache.Get(ctx, key, &cached)
		if err != nil {
			slog.Warn("transcript cache lookup failed", "error", err)
		}
		p.opts.Metrics.ObserveCache(hit)
		if hit {
			cached.File = path
			return &cached, nil
		}
	}

	start := time.Now()
	resp, err := p.provider.Transcribe(ctx, stt.TranscriptionRequest{
		FilePath:       filepath.Base(path),
		Audio:          bytes.NewReader(data),
		Language:       language,
		WordTimestamps: true,
	})
	p.opts.Metrics.ObserveTranscription("file", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", filepath.Base(path), err)
	}

	res := &FileResult{
		Text:     resp.Text,
		Segments: nonNil(resp.Segments),
		Language: fallback(resp.Language, language),
		File:     path,
	}
	if p.opts.Cache != nil {
		if err := p.opts.Cache.Set(ctx, key, res); err != nil {
			slog.Warn("transcript cache store failed", "error", err)
		}
	}
	slog.Info("file transcribed", "file", filepath.Base(path), "language", res.Language, "elapsed", time.Since(start))
	return res, nil
}

// TranscribeSamples transcribes mono float32 samples at the pipeline's sample rate.
func (p *Pipeline) TranscribeSamples(ctx context.Context, samples []float32, language string) (*Result, error) {
	return p.transcribeSamples(ctx, samples, language, "samples")
}

func (p *Pipeline) transcribeSamples(ctx context.Context, samples []float32, language, source string) (*Result, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	language = p.language(language)

	wav, err := audio.WAVBytes(samples, p.opts.SampleRate, 1)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.provider.Transcribe(ctx, stt.TranscriptionRequest{
		FilePath:       "utterance.wav",
		Audio:          bytes.NewReader(wav),
		Language:       language,
		WordTimestamps: true,
	})
	p.opts.Metrics.ObserveTranscription(source, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("transcribe utterance: %w", err)
	}

	return &Result{
		Text:     resp.Text,
		Segments: nonNil(resp.Segments),
		Language: fallback(resp.Language, language),
		Duration: float64(len(samples)) / float64(p.opts.SampleRate),
	}, nil
}

func nonNil(s []stt.Segment) []stt.Segment {
	if s == nil {
		return []stt.Segment{}
	}
	return s
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
