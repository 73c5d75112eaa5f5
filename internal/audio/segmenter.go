package audio

import (
	"context"
	"time"
)

type State int

const (
	Idle State = iota
	Speaking
	TrailingSilence
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Speaking:
		return "speaking"
	case TrailingSilence:
		return "trailing_silence"
	}
	return "unknown"
}

type SegmenterConfig struct {
	// Threshold is the chunk RMS above which a chunk counts as speech.
	Threshold         float64
	SilenceDuration   time.Duration
	MinSpeechDuration time.Duration
}

func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		Threshold:         0.01,
		SilenceDuration:   2 * time.Second,
		MinSpeechDuration: 500 * time.Millisecond,
	}
}

// Utterance is the speech accumulated between two silences.
type Utterance struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Segmenter groups a chunk stream into utterances by loudness. Silence is
// timed in stream time, the summed length of the silent chunks, so that the
// outcome depends only on the audio. A Segmenter is owned by one goroutine.
type Segmenter struct {
	cfg         SegmenterConfig
	onSpeechEnd func(Utterance)

	state    State
	speech   [][]float32
	frames   int
	silence  time.Duration
	rate     int
	channels int
}

func NewSegmenter(cfg SegmenterConfig, onSpeechEnd func(Utterance)) *Segmenter {
	def := DefaultSegmenterConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = def.SilenceDuration
	}
	if cfg.MinSpeechDuration < 0 {
		cfg.MinSpeechDuration = 0
	}
	return &Segmenter{cfg: cfg, onSpeechEnd: onSpeechEnd}
}

func (s *Segmenter) State() State { return s.state }

// Push advances the state machine by one chunk.
func (s *Segmenter) Push(c Chunk) {
	loud := RMS(c.Samples) > s.cfg.Threshold

	switch s.state {
	case Idle:
		if loud {
			s.state = Speaking
			s.add(c)
		}
	case Speaking:
		if loud {
			s.add(c)
			return
		}
		s.state = TrailingSilence
		s.silence = c.Duration()
		s.checkSilence()
	case TrailingSilence:
		if loud {
			s.state = Speaking
			s.silence = 0
			s.add(c)
			return
		}
		s.silence += c.Duration()
		s.checkSilence()
	}
}

// Flush ends the current utterance as if the silence timer had expired.
func (s *Segmenter) Flush() {
	if s.state != Idle {
		s.finish()
	}
}

// Run pushes every chunk from in until it closes or ctx is done, then flushes.
func (s *Segmenter) Run(ctx context.Context, in <-chan Chunk) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-in:
			if !ok {
				s.Flush()
				return nil
			}
			s.Push(c)
		}
	}
}

func (s *Segmenter) add(c Chunk) {
	s.speech = append(s.speech, c.Samples)
	s.rate = c.SampleRate
	s.channels = max(c.Channels, 1)
	s.frames += len(c.Samples) / s.channels
}

func (s *Segmenter) checkSilence() {
	if s.silence > s.cfg.SilenceDuration {
		s.finish()
	}
}

func (s *Segmenter) finish() {
	dur := FramesDuration(s.frames, s.rate)
	if dur >= s.cfg.MinSpeechDuration && s.frames > 0 && s.onSpeechEnd != nil {
		s.onSpeechEnd(Utterance{
			Samples:    Concat(s.speech),
			SampleRate: s.rate,
			Channels:   s.channels,
			Duration:   dur,
		})
	}
	s.state = Idle
	s.speech = nil
	s.frames = 0
	s.silence = 0
}
