package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nikhilbhutani/voicepro/internal/multimodal/stt"
)

var ErrUnknownFormat = errors.New("unknown metadata format")

const (
	FormatJSONL = "jsonl"
	FormatJSON  = "json"

	// Export layouts.
	ExportMimi  = "mimi"
	ExportMoshi = "moshi"

	manifestVersion = "1.0"
	manifestFile    = "dataset_moshi.json"
	mimiFile        = "dataset_mimi.json"
)

// Summary aggregates a set of samples.
type Summary struct {
	Version       string   `json:"version"`
	DatasetName   string   `json:"dataset_name"`
	Language      string   `json:"language"`
	TotalDuration float64  `json:"total_duration"`
	TotalSamples  int      `json:"total_samples"`
	Speakers      []string `json:"speakers"`
}

// Manifest is the Moshi dataset description written next to the metadata.
type Manifest struct {
	Summary
	Samples []Sample `json:"samples"`
}

func summarize(name, language string, samples []Sample) Summary {
	s := Summary{
		Version:      manifestVersion,
		DatasetName:  name,
		Language:     language,
		TotalSamples: len(samples),
		Speakers:     []string{},
	}
	seen := make(map[string]struct{})
	for _, sample := range samples {
		s.TotalDuration += sample.Duration
		if _, ok := seen[sample.SpeakerID]; !ok {
			seen[sample.SpeakerID] = struct{}{}
			s.Speakers = append(s.Speakers, sample.SpeakerID)
		}
	}
	sort.Strings(s.Speakers)
	return s
}

func (c *Collector) Summary() Summary {
	return summarize(c.opts.DatasetName, c.opts.Language, c.Samples())
}

// SaveMetadata writes the metadata log to metadata.<format>, the Moshi
// manifest to dataset_moshi.json and the Mimi codec list to
// dataset_mimi.json, returning the metadata path.
func (c *Collector) SaveMetadata(format string) (string, error) {
	samples := c.Samples()

	var buf bytes.Buffer
	switch format {
	case FormatJSONL:
		if err := writeJSONL(&buf, samples); err != nil {
			return "", err
		}
	case FormatJSON:
		if err := writeIndented(&buf, samples); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	path := filepath.Join(c.opts.OutputDir, "metadata."+format)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}

	manifest := Manifest{
		Summary: summarize(c.opts.DatasetName, c.opts.Language, samples),
		Samples: samples,
	}
	buf.Reset()
	if err := writeIndented(&buf, manifest); err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(c.opts.OutputDir, manifestFile), buf.Bytes()); err != nil {
		return "", err
	}

	buf.Reset()
	if err := writeIndented(&buf, ToMimi(samples)); err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(c.opts.OutputDir, mimiFile), buf.Bytes()); err != nil {
		return "", err
	}

	slog.Info("dataset metadata saved", "path", path, "samples", len(samples))
	return path, nil
}

func writeJSONL(w io.Writer, samples []Sample) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, s := range samples {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("marshal sample %d: %w", i, err)
		}
	}
	return nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return nil
}

// writeFileAtomic replaces path with data via a temporary file in the same
// directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadMetadata reads samples back from a metadata.jsonl or metadata.json file.
func LoadMetadata(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	switch strings.TrimPrefix(filepath.Ext(path), ".") {
	case FormatJSONL:
		return readJSONL(f)
	case FormatJSON:
		var samples []Sample
		if err := json.NewDecoder(f).Decode(&samples); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		return samples, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
	}
}

func readJSONL(r io.Reader) ([]Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	var samples []Sample
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var s Sample
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return samples, fmt.Errorf("line %d: invalid JSON: %w", line, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return samples, fmt.Errorf("scan metadata: %w", err)
	}
	return samples, nil
}

// MimiEntry is one sample as consumed by the Mimi codec tooling.
type MimiEntry struct {
	ID        string  `json:"id"`
	AudioFile string  `json:"audio_file"`
	Text      string  `json:"text"`
	Duration  float64 `json:"duration"`
	SpeakerID string  `json:"speaker_id"`
	Language  string  `json:"language"`
}

type MimiDataset struct {
	Codec string      `json:"codec"`
	Data  []MimiEntry `json:"data"`
}

func ToMimi(samples []Sample) MimiDataset {
	out := MimiDataset{Codec: "mimi", Data: make([]MimiEntry, 0, len(samples))}
	for _, s := range samples {
		out.Data = append(out.Data, MimiEntry{
			ID:        s.ID,
			AudioFile: s.AudioFile,
			Text:      s.Text,
			Duration:  s.Duration,
			SpeakerID: s.SpeakerID,
			Language:  s.Language,
		})
	}
	return out
}

// MoshiUtterance is one sample in the Moshi training layout.
type MoshiUtterance struct {
	ID        string        `json:"id"`
	AudioFile string        `json:"audio_file"`
	Text      string        `json:"text"`
	Duration  float64       `json:"duration"`
	SpeakerID string        `json:"speaker_id"`
	Language  string        `json:"language"`
	Segments  []stt.Segment `json:"segments,omitempty"`
}

type MoshiDataset struct {
	Version    string           `json:"version"`
	Utterances []MoshiUtterance `json:"utterances"`
}

func ToMoshi(samples []Sample) MoshiDataset {
	out := MoshiDataset{Version: manifestVersion, Utterances: make([]MoshiUtterance, 0, len(samples))}
	for _, s := range samples {
		out.Utterances = append(out.Utterances, MoshiUtterance{
			ID:        s.ID,
			AudioFile: s.AudioFile,
			Text:      s.Text,
			Duration:  s.Duration,
			SpeakerID: s.SpeakerID,
			Language:  s.Language,
			Segments:  s.Segments,
		})
	}
	return out
}

// Export renders the collected samples in the named layout, ExportMimi or
// ExportMoshi.
func (c *Collector) Export(format string) (any, error) {
	switch format {
	case ExportMimi:
		return ToMimi(c.Samples()), nil
	case ExportMoshi:
		return ToMoshi(c.Samples()), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
