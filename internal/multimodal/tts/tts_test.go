package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicepro/internal/audio"
)

func sineWAV(t *testing.T) []byte {
	t.Helper()
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(0.25 * math.Sin(2*math.Pi*200*float64(i)/16000))
	}
	data, err := audio.WAVBytes(samples, 16000, 1)
	require.NoError(t, err)
	return data
}

func rmsOf(t *testing.T, wav []byte) float64 {
	t.Helper()
	samples, _, err := audio.DecodeWAV(bytes.NewReader(wav))
	require.NoError(t, err)
	return audio.RMS(samples)
}

func TestParsePercent(t *testing.T) {
	for in, want := range map[string]float64{"": 1, "-5%": 0.95, "+10%": 1.1, "25%": 1.25, "0%": 1} {
		got, err := ParsePercent(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	_, err := ParsePercent("loud")
	assert.Error(t, err)
	_, err = ParsePercent("-100%")
	assert.Error(t, err)
}

func TestOpenAITTS_Synthesize(t *testing.T) {
	wav := sineWAV(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tts-1", body["model"])
		assert.Equal(t, "alloy", body["voice"])
		assert.Equal(t, "wav", body["response_format"])
		assert.Equal(t, "Cześć", body["input"])
		assert.InDelta(t, 0.95, body["speed"], 1e-9)

		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer srv.Close()

	p := NewOpenAITTS(OpenAITTSConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	res, err := p.Synthesize(context.Background(), SynthesisRequest{Input: "Cześć", Speed: 0.95, Volume: 2})
	require.NoError(t, err)

	assert.Equal(t, "audio/wav", res.ContentType)
	assert.InDelta(t, 2*rmsOf(t, wav), rmsOf(t, res.Audio), 1e-3)
}

func TestOpenAITTS_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAITTS(OpenAITTSConfig{APIKey: "nope", BaseURL: srv.URL})
	_, err := p.Synthesize(context.Background(), SynthesisRequest{Input: "hi"})
	assert.Error(t, err)
}

func TestLocalTTS_Args(t *testing.T) {
	l := NewLocalTTS(LocalTTSConfig{ModelPath: "pl_PL-darkman.onnx"})

	assert.Equal(t,
		[]string{"--model", "pl_PL-darkman.onnx", "--output_file", "-"},
		l.args(SynthesisRequest{Input: "x", Voice: "marek"}))

	assert.Equal(t,
		[]string{"--model", "pl_PL-darkman.onnx", "--output_file", "-",
			"--speaker", "3", "--length_scale", "0.800", "--noise_scale", "0.700"},
		l.args(SynthesisRequest{Input: "x", Voice: "3", Speed: 1.25, Temperature: 0.7}))
}

func TestLocalTTS_RequiresModel(t *testing.T) {
	_, err := NewLocalTTS(LocalTTSConfig{}).Synthesize(context.Background(), SynthesisRequest{Input: "x"})
	assert.ErrorContains(t, err, "TTS_LOCAL_PIPER_MODEL")
}

func TestLocalTTS_RunsPiper(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for piper")
	}
	dir := t.TempDir()
	fixture := filepath.Join(dir, "out.wav")
	require.NoError(t, os.WriteFile(fixture, sineWAV(t), 0o644))
	bin := filepath.Join(dir, "piper")
	script := "#!/bin/sh\ncat > /dev/null\ncat " + fixture + "\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	l := NewLocalTTS(LocalTTSConfig{PiperBinPath: bin, ModelPath: "voice.onnx"})
	res, err := l.Synthesize(context.Background(), SynthesisRequest{Input: "Dzień dobry"})
	require.NoError(t, err)
	assert.Equal(t, sineWAV(t), res.Audio)
}
