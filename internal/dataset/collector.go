// Package dataset builds voice/text training datasets: it transcribes audio
// files, copies them under one output directory and keeps the metadata log
// that is later saved in the Moshi/Mimi layouts.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nikhilbhutani/voicepro/internal/audio"
	"github.com/nikhilbhutani/voicepro/internal/events"
	"github.com/nikhilbhutani/voicepro/internal/metrics"
	"github.com/nikhilbhutani/voicepro/internal/multimodal/stt"
	"github.com/nikhilbhutani/voicepro/internal/pipeline"
)

const idTimeLayout = "20060102_150405"

// Sample is one collected voice/text pair.
type Sample struct {
	ID         string        `json:"id"`
	AudioFile  string        `json:"audio_file"`
	Text       string        `json:"text"`
	Duration   float64       `json:"duration"`
	SampleRate int           `json:"sample_rate"`
	SpeakerID  string        `json:"speaker_id"`
	Language   string        `json:"language"`
	Segments   []stt.Segment `json:"segments"`
	Timestamp  time.Time     `json:"timestamp"`
}

type Transcriber interface {
	TranscribeFile(ctx context.Context, path, language string) (*pipeline.FileResult, error)
}

// Index is an optional durable store of collected samples.
type Index interface {
	Insert(ctx context.Context, s *Sample) error
	List(ctx context.Context, speakerID string) ([]Sample, error)
}

type Options struct {
	OutputDir   string
	DatasetName string
	Language    string
	// Concurrency bounds CollectBatch.
	Concurrency int
	Index       Index
	Events      events.Publisher
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

type Collector struct {
	transcriber Transcriber
	opts        Options
	audioDir    string

	mu      sync.Mutex
	samples []Sample
	ids     map[string]struct{}
}

func New(transcriber Transcriber, opts Options) (*Collector, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = "./dataset"
	}
	if opts.DatasetName == "" {
		opts.DatasetName = "lbrxVoicePro"
	}
	if opts.Language == "" {
		opts.Language = "pl"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	audioDir := filepath.Join(opts.OutputDir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset directory: %w", err)
	}

	return &Collector{
		transcriber: transcriber,
		opts:        opts,
		audioDir:    audioDir,
		ids:         make(map[string]struct{}),
	}, nil
}

func (c *Collector) OutputDir() string { return c.opts.OutputDir }

// CollectSample transcribes audioPath and adds it to the dataset. The file is
// copied into the dataset's audio directory; a failed collection leaves no
// copy behind and no metadata entry.
func (c *Collector) CollectSample(ctx context.Context, audioPath, speakerID, language string) (*Sample, error) {
	s, err := c.collect(ctx, audioPath, speakerID, language)
	var seconds float64
	if s != nil {
		seconds = s.Duration
	}
	c.opts.Metrics.ObserveSample(seconds, err)
	if err != nil {
		slog.Warn("sample collection failed", "file", filepath.Base(audioPath), "speaker", speakerID, "error", err)
		return nil, err
	}

	if err := c.opts.Events.Publish(ctx, events.SubjectSampleCollected, s); err != nil {
		slog.Warn("publish sample event failed", "id", s.ID, "error", err)
	}
	slog.Info("sample collected", "id", s.ID, "file", s.AudioFile, "duration", s.Duration)
	return s, nil
}

func (c *Collector) collect(ctx context.Context, audioPath, speakerID, language string) (*Sample, error) {
	if speakerID == "" {
		speakerID = "default"
	}
	if language == "" {
		language = c.opts.Language
	}

	info, err := audio.ProbeFile(audioPath)
	if err != nil {
		return nil, err
	}

	res, err := c.transcriber.TranscribeFile(ctx, audioPath, language)
	if err != nil {
		return nil, err
	}

	now := c.opts.Now()
	id := c.reserveID(speakerID + "_" + now.Format(idTimeLayout))

	dest, err := c.copyAudio(audioPath, id)
	if err != nil {
		c.releaseID(id)
		return nil, err
	}

	segments := res.Segments
	if segments == nil {
		segments = []stt.Segment{}
	}
	s := Sample{
		ID:         id,
		AudioFile:  filepath.Base(dest),
		Text:       res.Text,
		Duration:   info.Duration.Seconds(),
		SampleRate: info.SampleRate,
		SpeakerID:  speakerID,
		Language:   language,
		Segments:   segments,
		Timestamp:  now,
	}

	if c.opts.Index != nil {
		if err := c.opts.Index.Insert(ctx, &s); err != nil {
			os.Remove(dest)
			c.releaseID(id)
			return nil, err
		}
	}

	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()

	return &s, nil
}

// reserveID claims base, or base with the first free numeric suffix.
func (c *Collector) reserveID(base string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := base
	for n := 1; ; n++ {
		if _, taken := c.ids[id]; !taken {
			break
		}
		id = base + "_" + strconv.Itoa(n)
	}
	c.ids[id] = struct{}{}
	return id
}

func (c *Collector) releaseID(id string) {
	c.mu.Lock()
	delete(c.ids, id)
	c.mu.Unlock()
}

// copyAudio copies src into the audio directory under its own name, or under
// "<id>_<name>" when that name is already taken.
func (c *Collector) copyAudio(src, id string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer in.Close()

	name := filepath.Base(src)
	dest := filepath.Join(c.audioDir, name)
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		dest = filepath.Join(c.audioDir, id+"_"+name)
		out, err = os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create dataset audio: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("copy audio: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("close dataset audio: %w", err)
	}

	if st, err := in.Stat(); err == nil {
		os.Chtimes(dest, st.ModTime(), st.ModTime())
	}
	return dest, nil
}

// BatchResult is the outcome of collecting one file of a batch. Error
// mirrors Err for JSON clients.
type BatchResult struct {
	Path   string  `json:"path"`
	Sample *Sample `json:"sample,omitempty"`
	Error  string  `json:"error,omitempty"`
	Err    error   `json:"-"`
}

// CollectBatch collects every path concurrently. Results are in input order
// and one failing file does not stop the others.
func (c *Collector) CollectBatch(ctx context.Context, paths []string, speakerID, language string) []BatchResult {
	results := make([]BatchResult, len(paths))

	var waitGroup sync.WaitGroup
	workerPool := make(chan struct{}, c.opts.Concurrency)

	for i, path := range paths {
		waitGroup.Add(1)

		go func(index int, path string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}
			defer func() { <-workerPool }()

			r := BatchResult{Path: path}
			if err := ctx.Err(); err != nil {
				r.Err = err
			} else {
				r.Sample, r.Err = c.CollectSample(ctx, path, speakerID, language)
			}
			if r.Err != nil {
				r.Error = r.Err.Error()
			}
			results[index] = r
		}(i, path)
	}

	waitGroup.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.Info("batch collected", "files", len(paths), "failed", failed)
	return results
}

// Samples returns a copy of the metadata log.
func (c *Collector) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

// ListSamples returns the samples of speakerID, or all samples when it is
// empty, from the index when one is configured.
func (c *Collector) ListSamples(ctx context.Context, speakerID string) ([]Sample, error) {
	if c.opts.Index != nil {
		return c.opts.Index.List(ctx, speakerID)
	}
	all := c.Samples()
	if speakerID == "" {
		return all, nil
	}
	out := make([]Sample, 0, len(all))
	for _, s := range all {
		if s.SpeakerID == speakerID {
			out = append(out, s)
		}
	}
	return out, nil
}
