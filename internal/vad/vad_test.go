package vad

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel answers by looking at the first sample: 1 is speech.
type scriptedModel struct {
	calls atomic.Int32
	err   error
}

func (m *scriptedModel) SpeechProbability(_ context.Context, samples []float32, _ int) (float64, error) {
	m.calls.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	if samples[0] == 1 {
		return 0.9, nil
	}
	return 0.1, nil
}

type failingLoader struct{ scriptedModel }

func (*failingLoader) Load(context.Context) error { return errors.New("weights missing") }

func newDetector(t *testing.T, m Model, cfg Config) *Detector {
	t.Helper()
	d, err := New(context.Background(), m, cfg)
	require.NoError(t, err)
	return d
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestIsSpeech_ShortWindowNeverSpeech(t *testing.T) {
	m := &scriptedModel{}
	d := newDetector(t, m, DefaultConfig())

	for _, n := range []int{0, 1, 100, 511} {
		speech, err := d.IsSpeech(context.Background(), filled(n, 1))
		require.NoError(t, err)
		assert.False(t, speech, "window of %d samples", n)
	}
	assert.Zero(t, m.calls.Load(), "short windows never reach the model")

	speech, err := d.IsSpeech(context.Background(), filled(512, 1))
	require.NoError(t, err)
	assert.True(t, speech)
}

func TestIsSpeech_ThresholdInclusive(t *testing.T) {
	d := newDetector(t, &scriptedModel{}, Config{Threshold: 0.9, SampleRate: 16000, MinWindow: 1})

	speech, err := d.IsSpeech(context.Background(), filled(600, 1))
	require.NoError(t, err)
	assert.True(t, speech, "probability equal to the threshold is speech")
}

func TestEnergyModel(t *testing.T) {
	d := newDetector(t, NewEnergyModel(0.01), Config{Threshold: 0.5, SampleRate: 16000, MinWindow: 1})

	speech, err := d.IsSpeech(context.Background(), filled(600, 0.03))
	require.NoError(t, err)
	assert.True(t, speech)

	speech, err = d.IsSpeech(context.Background(), filled(600, 0.005))
	require.NoError(t, err)
	assert.False(t, speech)

	p, err := NewEnergyModel(0.01).SpeechProbability(context.Background(), filled(10, 0.5), 16000)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p, "probability saturates")
}

func TestIsSpeech_ModelError(t *testing.T) {
	d := newDetector(t, &scriptedModel{err: errors.New("boom")}, DefaultConfig())
	_, err := d.IsSpeech(context.Background(), filled(1024, 1))
	assert.Error(t, err)
}

func TestNew_LoadFailureIsFatal(t *testing.T) {
	_, err := New(context.Background(), &failingLoader{}, DefaultConfig())
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, err = New(context.Background(), nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestSpeechSegments(t *testing.T) {
	cfg := Config{Threshold: 0.5, SampleRate: 1000, MinWindow: 1, WindowDuration: 10 * time.Millisecond}
	d := newDetector(t, &scriptedModel{}, cfg)

	// windows of 10 samples: speech, speech, silence, speech, silence, speech, speech (+3 leftover)
	pattern := []float32{1, 1, 0, 1, 0, 1, 1}
	var samples []float32
	for _, v := range pattern {
		samples = append(samples, filled(10, v)...)
	}
	samples = append(samples, filled(3, 1)...)

	segs, err := d.SpeechSegments(context.Background(), samples)
	require.NoError(t, err)
	assert.Equal(t, []Segment{{0, 20}, {30, 40}, {50, 70}}, segs)
}

func TestSpeechSegments_NoSpeech(t *testing.T) {
	cfg := Config{Threshold: 0.5, SampleRate: 1000, MinWindow: 1, WindowDuration: 10 * time.Millisecond}
	d := newDetector(t, &scriptedModel{}, cfg)

	segs, err := d.SpeechSegments(context.Background(), filled(100, 0))
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func frames(pattern ...float32) []float32 {
	// 30 ms frames at 1 kHz are 30 samples.
	var samples []float32
	for _, v := range pattern {
		samples = append(samples, filled(30, v)...)
	}
	return samples
}

func TestMajorityModel(t *testing.T) {
	m := NewMajorityModel(&scriptedModel{})

	p, err := m.SpeechProbability(context.Background(), frames(1, 1, 0, 1), 1000)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p, "three of four frames are speech")

	p, err = m.SpeechProbability(context.Background(), frames(1, 0, 0, 0), 1000)
	require.NoError(t, err)
	assert.Zero(t, p)

	p, err = m.SpeechProbability(context.Background(), filled(10, 1), 1000)
	require.NoError(t, err)
	assert.Zero(t, p)
}

func TestMajorityModel_TieIsSilence(t *testing.T) {
	d := newDetector(t, NewMajorityModel(&scriptedModel{}), Config{Threshold: 0.5, SampleRate: 1000, MinWindow: 1})

	speech, err := d.IsSpeech(context.Background(), frames(1, 1, 0, 0))
	require.NoError(t, err)
	assert.False(t, speech, "half the frames is not a majority")

	speech, err = d.IsSpeech(context.Background(), frames(1, 1, 1, 0))
	require.NoError(t, err)
	assert.True(t, speech)
}

func TestSpeechSegments_DefaultConfigWidensToMinWindow(t *testing.T) {
	d := newDetector(t, NewEnergyModel(0.01), DefaultConfig())

	// 30 ms at 16 kHz is 480 samples, below the 512-sample minimum.
	samples := append(filled(16000, 0.5), filled(16000, 0)...)
	segs, err := d.SpeechSegments(context.Background(), samples)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 0, segs[0].Start)
	assert.Equal(t, 16384, segs[0].End, "the window straddling the end of speech is still loud")
}

func TestHTTPModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/vad":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "16000", r.URL.Query().Get("sample_rate"))
			body, _ := io.ReadAll(r.Body)
			assert.Len(t, body, 2*512)
			w.Write([]byte(`{"probability": 0.8}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := newDetector(t, NewHTTPModel(srv.URL, time.Second), DefaultConfig())
	speech, err := d.IsSpeech(context.Background(), filled(512, 0.2))
	require.NoError(t, err)
	assert.True(t, speech)
}

func TestHTTPModel_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(context.Background(), NewHTTPModel(srv.URL, time.Second), DefaultConfig())
	assert.ErrorIs(t, err, ErrModelUnavailable)
}
