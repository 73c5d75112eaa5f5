package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicepro/internal/audio"
	"github.com/nikhilbhutani/voicepro/internal/multimodal/stt"
	"github.com/nikhilbhutani/voicepro/internal/pipeline"
)

type fakeTranscriber struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (f *fakeTranscriber) TranscribeFile(_ context.Context, path, language string) (*pipeline.FileResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(path))
	err := f.fail[filepath.Base(path)]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &pipeline.FileResult{
		Text:     "dzień dobry " + filepath.Base(path),
		Segments: []stt.Segment{{ID: 0, Start: 0, End: 1.2, Text: "dzień dobry"}},
		Language: language,
		File:     path,
	}, nil
}

type failingIndex struct{ err error }

func (i failingIndex) Insert(context.Context, *Sample) error           { return i.err }
func (i failingIndex) List(context.Context, string) ([]Sample, error) { return nil, i.err }

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func writeWAV(t *testing.T, dir, name string, seconds float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	samples := make([]float32, int(seconds*16000))
	for i := range samples {
		samples[i] = 0.1
	}
	require.NoError(t, audio.SaveRecording(path, samples, 16000, 1))
	return path
}

func newCollector(t *testing.T, tr Transcriber, opts Options) *Collector {
	t.Helper()
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(t.TempDir(), "dataset")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	c, err := New(tr, opts)
	require.NoError(t, err)
	return c
}

func TestNew_CreatesAudioDir(t *testing.T) {
	c := newCollector(t, &fakeTranscriber{}, Options{})
	st, err := os.Stat(filepath.Join(c.OutputDir(), "audio"))
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestCollectSample(t *testing.T) {
	src := writeWAV(t, t.TempDir(), "hello.wav", 2.5)
	c := newCollector(t, &fakeTranscriber{}, Options{})

	s, err := c.CollectSample(context.Background(), src, "anna", "")
	require.NoError(t, err)

	assert.Equal(t, "anna_20250314_092653", s.ID)
	assert.Equal(t, "hello.wav", s.AudioFile)
	assert.InDelta(t, 2.5, s.Duration, 1e-6)
	assert.Equal(t, 16000, s.SampleRate)
	assert.Equal(t, "pl", s.Language)
	assert.Equal(t, "dzień dobry hello.wav", s.Text)
	assert.Len(t, s.Segments, 1)

	original, err := os.ReadFile(src)
	require.NoError(t, err)
	copied, err := os.ReadFile(filepath.Join(c.OutputDir(), "audio", "hello.wav"))
	require.NoError(t, err)
	assert.Equal(t, original, copied)

	require.Len(t, c.Samples(), 1)
}

func TestCollectSample_DefaultSpeaker(t *testing.T) {
	src := writeWAV(t, t.TempDir(), "a.wav", 0.5)
	c := newCollector(t, &fakeTranscriber{}, Options{})

	s, err := c.CollectSample(context.Background(), src, "", "en")
	require.NoError(t, err)
	assert.Equal(t, "default", s.SpeakerID)
	assert.Equal(t, "en", s.Language)
	assert.True(t, strings.HasPrefix(s.ID, "default_"))
}

func TestCollectSample_UniqueIDsAndNames(t *testing.T) {
	first := writeWAV(t, t.TempDir(), "take.wav", 1)
	second := writeWAV(t, t.TempDir(), "take.wav", 2)
	c := newCollector(t, &fakeTranscriber{}, Options{})

	a, err := c.CollectSample(context.Background(), first, "anna", "")
	require.NoError(t, err)
	b, err := c.CollectSample(context.Background(), second, "anna", "")
	require.NoError(t, err)

	assert.Equal(t, "anna_20250314_092653", a.ID)
	assert.Equal(t, "anna_20250314_092653_1", b.ID)
	assert.Equal(t, "take.wav", a.AudioFile)
	assert.Equal(t, b.ID+"_take.wav", b.AudioFile)
	assert.FileExists(t, filepath.Join(c.OutputDir(), "audio", b.AudioFile))
}

func TestCollectSample_NotWAV(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.wav")
	require.NoError(t, os.WriteFile(src, []byte("not audio"), 0o644))
	tr := &fakeTranscriber{}
	c := newCollector(t, tr, Options{})

	_, err := c.CollectSample(context.Background(), src, "anna", "")
	require.Error(t, err)
	assert.Empty(t, tr.calls, "invalid audio is never sent to the model")
	assert.Empty(t, c.Samples())
}

func TestCollectSample_IndexFailureLeavesNothing(t *testing.T) {
	src := writeWAV(t, t.TempDir(), "x.wav", 1)
	c := newCollector(t, &fakeTranscriber{}, Options{Index: failingIndex{err: errors.New("db down")}})

	_, err := c.CollectSample(context.Background(), src, "anna", "")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(c.OutputDir(), "audio", "x.wav"))
	assert.Empty(t, c.Samples())

	// The id is free again for the next attempt.
	c.opts.Index = nil
	s, err := c.CollectSample(context.Background(), src, "anna", "")
	require.NoError(t, err)
	assert.Equal(t, "anna_20250314_092653", s.ID)
}

func TestCollectBatch_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.wav", "b.wav", "c.wav", "d.wav", "e.wav"} {
		paths = append(paths, writeWAV(t, dir, name, 0.5))
	}
	paths = append(paths, filepath.Join(dir, "missing.wav"))

	tr := &fakeTranscriber{fail: map[string]error{"c.wav": errors.New("model crashed")}}
	c := newCollector(t, tr, Options{Concurrency: 2})

	results := c.CollectBatch(context.Background(), paths, "anna", "")
	require.Len(t, results, len(paths))

	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
	}
	for _, i := range []int{0, 1, 3, 4} {
		require.NoError(t, results[i].Err)
		assert.Equal(t, filepath.Base(paths[i]), results[i].Sample.AudioFile)
	}
	assert.EqualError(t, results[2].Err, "model crashed")
	assert.Equal(t, "model crashed", results[2].Error)
	assert.Error(t, results[5].Err)
	assert.Nil(t, results[5].Sample)

	assert.Len(t, c.Samples(), 4)
	ids := map[string]bool{}
	for _, s := range c.Samples() {
		assert.False(t, ids[s.ID], "duplicate id %s", s.ID)
		ids[s.ID] = true
	}
}

func TestCollectBatch_CancelledContext(t *testing.T) {
	src := writeWAV(t, t.TempDir(), "a.wav", 0.5)
	c := newCollector(t, &fakeTranscriber{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := c.CollectBatch(ctx, []string{src}, "anna", "")
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func collectSpeakers(t *testing.T, c *Collector, speakers ...string) {
	t.Helper()
	dir := t.TempDir()
	for i, sp := range speakers {
		src := writeWAV(t, dir, sp+string(rune('0'+i))+".wav", float64(i+1)*0.5)
		_, err := c.CollectSample(context.Background(), src, sp, "")
		require.NoError(t, err)
	}
}

func TestSummary(t *testing.T) {
	c := newCollector(t, &fakeTranscriber{}, Options{})
	collectSpeakers(t, c, "zofia", "anna", "zofia")

	s := c.Summary()
	assert.Equal(t, "1.0", s.Version)
	assert.Equal(t, "lbrxVoicePro", s.DatasetName)
	assert.Equal(t, "pl", s.Language)
	assert.Equal(t, 3, s.TotalSamples)
	assert.InDelta(t, 3.0, s.TotalDuration, 1e-6)
	assert.Equal(t, []string{"anna", "zofia"}, s.Speakers)
}

func TestSummary_Empty(t *testing.T) {
	c := newCollector(t, &fakeTranscriber{}, Options{})
	s := c.Summary()
	assert.Zero(t, s.TotalSamples)
	assert.NotNil(t, s.Speakers)
}

func TestSaveAndLoadMetadata(t *testing.T) {
	for _, format := range []string{FormatJSONL, FormatJSON} {
		t.Run(format, func(t *testing.T) {
			c := newCollector(t, &fakeTranscriber{}, Options{})
			collectSpeakers(t, c, "anna", "jan")

			path, err := c.SaveMetadata(format)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(c.OutputDir(), "metadata."+format), path)

			loaded, err := LoadMetadata(path)
			require.NoError(t, err)
			want := c.Samples()
			require.Len(t, loaded, len(want))
			for i := range want {
				assert.Equal(t, want[i].ID, loaded[i].ID)
				assert.Equal(t, want[i].Text, loaded[i].Text)
				assert.Equal(t, want[i].Segments, loaded[i].Segments)
				assert.True(t, want[i].Timestamp.Equal(loaded[i].Timestamp))
			}

			raw, err := os.ReadFile(filepath.Join(c.OutputDir(), "dataset_moshi.json"))
			require.NoError(t, err)
			var manifest Manifest
			require.NoError(t, json.Unmarshal(raw, &manifest))
			assert.Equal(t, "1.0", manifest.Version)
			assert.Equal(t, 2, manifest.TotalSamples)
			assert.Equal(t, []string{"anna", "jan"}, manifest.Speakers)
			assert.Len(t, manifest.Samples, 2)
			assert.Contains(t, string(raw), "dzień", "non-ascii text is written verbatim")

			raw, err = os.ReadFile(filepath.Join(c.OutputDir(), "dataset_mimi.json"))
			require.NoError(t, err)
			var mimi MimiDataset
			require.NoError(t, json.Unmarshal(raw, &mimi))
			assert.Equal(t, "mimi", mimi.Codec)
			assert.Len(t, mimi.Data, 2)
		})
	}
}

func TestSaveMetadata_Overwrites(t *testing.T) {
	c := newCollector(t, &fakeTranscriber{}, Options{})
	collectSpeakers(t, c, "anna")
	_, err := c.SaveMetadata(FormatJSONL)
	require.NoError(t, err)
	collectSpeakers(t, c, "jan")
	path, err := c.SaveMetadata(FormatJSONL)
	require.NoError(t, err)

	loaded, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	entries, err := os.ReadDir(c.OutputDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "temp file %s left behind", e.Name())
	}
}

func TestSaveMetadata_UnknownFormat(t *testing.T) {
	c := newCollector(t, &fakeTranscriber{}, Options{})
	_, err := c.SaveMetadata("csv")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.NoFileExists(t, filepath.Join(c.OutputDir(), "dataset_moshi.json"))
}

func TestLoadMetadata_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "metadata.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\"id\":\"a\"}\n\nnot json\n"), 0o644))
	_, err := LoadMetadata(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")

	other := filepath.Join(dir, "metadata.csv")
	require.NoError(t, os.WriteFile(other, nil, 0o644))
	_, err = LoadMetadata(other)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestListSamples_FiltersBySpeaker(t *testing.T) {
	c := newCollector(t, &fakeTranscriber{}, Options{})
	collectSpeakers(t, c, "anna", "jan", "anna")

	all, err := c.ListSamples(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	anna, err := c.ListSamples(context.Background(), "anna")
	require.NoError(t, err)
	assert.Len(t, anna, 2)
}

func TestToMimi(t *testing.T) {
	samples := []Sample{{
		ID:        "test_001",
		AudioFile: "test.wav",
		Text:      "Test transcription",
		Duration:  2.5,
		SpeakerID: "test_speaker",
		Language:  "pl",
	}}
	m := ToMimi(samples)
	assert.Equal(t, "mimi", m.Codec)
	require.Len(t, m.Data, 1)
	assert.Equal(t, "test.wav", m.Data[0].AudioFile)
	assert.NotNil(t, ToMimi(nil).Data)
}

func TestToMoshi(t *testing.T) {
	samples := []Sample{{
		ID:        "test_001",
		AudioFile: "test.wav",
		Text:      "Test transcription",
		Duration:  2.5,
		SpeakerID: "test_speaker",
		Language:  "pl",
	}}
	m := ToMoshi(samples)
	assert.Equal(t, "1.0", m.Version)
	require.Len(t, m.Utterances, 1)
	assert.Equal(t, "Test transcription", m.Utterances[0].Text)
	assert.NotNil(t, ToMoshi(nil).Utterances)
}

func TestExport(t *testing.T) {
	c := newCollector(t, &fakeTranscriber{}, Options{})
	collectSpeakers(t, c, "anna", "jan")

	out, err := c.Export(ExportMimi)
	require.NoError(t, err)
	require.IsType(t, MimiDataset{}, out)
	assert.Len(t, out.(MimiDataset).Data, 2)

	out, err = c.Export(ExportMoshi)
	require.NoError(t, err)
	require.IsType(t, MoshiDataset{}, out)
	assert.Len(t, out.(MoshiDataset).Utterances, 2)

	_, err = c.Export("wav2vec")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
