package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotRecording is returned by Write when the recorder is stopped.
var ErrNotRecording = errors.New("recorder is not recording")

// Device is an input stream that hands interleaved float32 frames to deliver.
// deliver is called on the device's realtime thread and returns promptly.
type Device interface {
	Open(cfg StreamConfig, deliver func(samples []float32)) error
	Start() error
	Stop() error
	Close() error
}

type StreamConfig struct {
	SampleRate    int
	Channels      int
	ChunkDuration time.Duration
}

// DefaultStreamConfig is 16 kHz mono in half-second chunks.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{SampleRate: 16000, Channels: 1, ChunkDuration: 500 * time.Millisecond}
}

// ChunkFrames is the number of frames per delivered chunk.
func (c StreamConfig) ChunkFrames() int {
	return int(float64(c.SampleRate) * c.ChunkDuration.Seconds())
}

type RecorderConfig struct {
	Stream    StreamConfig
	QueueSize int
	OnChunk   func(Chunk)
	OnLevel   func(rms float64)
}

// Recorder turns a device stream, or raw PCM16 bytes written to it, into
// fixed-size chunks. Every chunk is kept in the recording, offered to the
// Chunks queue and measured for loudness.
type Recorder struct {
	cfg RecorderConfig
	dev Device

	mu        sync.Mutex
	recording bool
	stopping  bool
	parts     [][]float32
	queue     chan Chunk
	pending   []float32
	carry     []byte

	dropped atomic.Int64
}

// NewRecorder builds a recorder over dev. dev may be nil when audio only
// arrives through Write.
func NewRecorder(dev Device, cfg RecorderConfig) *Recorder {
	def := DefaultStreamConfig()
	if cfg.Stream.SampleRate <= 0 {
		cfg.Stream.SampleRate = def.SampleRate
	}
	if cfg.Stream.Channels <= 0 {
		cfg.Stream.Channels = def.Channels
	}
	if cfg.Stream.ChunkDuration <= 0 {
		cfg.Stream.ChunkDuration = def.ChunkDuration
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Recorder{cfg: cfg, dev: dev}
}

func (r *Recorder) Config() StreamConfig { return r.cfg.Stream }

// Start opens the device and begins recording. It is a no-op while already recording.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = true
	r.parts = nil
	r.pending = nil
	r.carry = nil
	r.queue = make(chan Chunk, r.cfg.QueueSize)
	r.mu.Unlock()

	if r.dev == nil {
		return nil
	}
	if err := r.dev.Open(r.cfg.Stream, r.deliver); err != nil {
		r.abort()
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := r.dev.Start(); err != nil {
		r.dev.Close()
		r.abort()
		return fmt.Errorf("start input stream: %w", err)
	}
	slog.Info("recording started",
		"sample_rate", r.cfg.Stream.SampleRate,
		"channels", r.cfg.Stream.Channels,
		"chunk_frames", r.cfg.Stream.ChunkFrames())
	return nil
}

func (r *Recorder) abort() {
	r.mu.Lock()
	r.recording = false
	close(r.queue)
	r.mu.Unlock()
}

// Chunks is the consumer queue of the current recording. It is closed by Stop.
func (r *Recorder) Chunks() <-chan Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue
}

// Dropped counts chunks that found the queue full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Stop halts the device and returns everything recorded since Start, or
// nil when the recorder was not running. Of concurrent calls only the first
// stops the recording; the others return nil at once.
func (r *Recorder) Stop() ([]float32, error) {
	r.mu.Lock()
	if !r.recording || r.stopping {
		r.mu.Unlock()
		return nil, nil
	}
	r.stopping = true
	r.mu.Unlock()

	var devErr error
	if r.dev != nil {
		if err := r.dev.Stop(); err != nil {
			devErr = fmt.Errorf("stop input stream: %w", err)
		}
		if err := r.dev.Close(); err != nil && devErr == nil {
			devErr = fmt.Errorf("close input stream: %w", err)
		}
	}

	r.mu.Lock()
	var tail *Chunk
	if len(r.pending) > 0 {
		c := r.appendLocked(r.pending)
		tail = &c
		r.pending = nil
	}
	r.recording = false
	r.stopping = false
	close(r.queue)
	recording := Concat(r.parts)
	r.parts = nil
	r.mu.Unlock()

	if tail != nil {
		r.notify(*tail)
	}
	slog.Info("recording stopped",
		"duration", FramesDuration(len(recording)/r.cfg.Stream.Channels, r.cfg.Stream.SampleRate),
		"dropped_chunks", r.dropped.Load())
	return recording, devErr
}

// Write accepts little-endian PCM16 bytes and reframes them into chunks of
// the configured size. Split samples across calls are carried over.
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return 0, ErrNotRecording
	}
	data := p
	if len(r.carry) > 0 {
		data = append(r.carry, p...)
		r.carry = nil
	}
	if len(data)%2 != 0 {
		r.carry = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}
	samples, _ := PCM16ToFloat32(data)
	r.pending = append(r.pending, samples...)

	size := r.cfg.Stream.ChunkFrames() * r.cfg.Stream.Channels
	var ready []Chunk
	for len(r.pending) >= size {
		ready = append(ready, r.appendLocked(r.pending[:size]))
		r.pending = r.pending[size:]
	}
	r.mu.Unlock()

	for _, c := range ready {
		r.notify(c)
	}
	return len(p), nil
}

func (r *Recorder) deliver(samples []float32) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	c := r.appendLocked(samples)
	r.mu.Unlock()
	r.notify(c)
}

// appendLocked copies samples into the recording and offers them to the queue.
func (r *Recorder) appendLocked(samples []float32) Chunk {
	buf := make([]float32, len(samples))
	copy(buf, samples)
	r.parts = append(r.parts, buf)

	c := Chunk{Samples: buf, SampleRate: r.cfg.Stream.SampleRate, Channels: r.cfg.Stream.Channels}
	select {
	case r.queue <- c:
	default:
		r.dropped.Add(1)
	}
	return c
}

func (r *Recorder) notify(c Chunk) {
	if r.cfg.OnChunk != nil {
		r.cfg.OnChunk(c)
	}
	if r.cfg.OnLevel != nil {
		r.cfg.OnLevel(RMS(c.Samples))
	}
}
