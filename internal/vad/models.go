package vad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nikhilbhutani/voicepro/internal/audio"
)

// EnergyModel maps RMS loudness onto a probability: Reference RMS scores 0.5
// and twice the reference saturates at 1.
type EnergyModel struct {
	Reference float64
}

func NewEnergyModel(reference float64) *EnergyModel {
	if reference <= 0 {
		reference = 0.01
	}
	return &EnergyModel{Reference: reference}
}

func (m *EnergyModel) SpeechProbability(_ context.Context, samples []float32, _ int) (float64, error) {
	return math.Min(1, audio.RMS(samples)/(2*m.Reference)), nil
}

// HTTPModel calls a remote VAD service: POST {base}/vad with little-endian
// PCM16 as the body, answering {"probability": p}.
type HTTPModel struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPModel(baseURL string, timeout time.Duration) *HTTPModel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPModel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Load checks that the service answers its health endpoint.
func (m *HTTPModel) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vad health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vad health check: status %d", resp.StatusCode)
	}
	return nil
}

func (m *HTTPModel) SpeechProbability(ctx context.Context, samples []float32, sampleRate int) (float64, error) {
	url := m.baseURL + "/vad?sample_rate=" + strconv.Itoa(sampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio.Float32ToPCM16(samples)))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("vad request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("vad failed (status %d): %s", resp.StatusCode, string(body))
	}

	var out struct {
		Probability float64 `json:"probability"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("parse vad response: %w", err)
	}
	return out.Probability, nil
}

// MajorityModel splits a window into fixed frames and asks Frame whether each
// frame is speech. The window scores 1 when strictly more than half of its
// frames are speech and 0 otherwise, so a tie is silence.
type MajorityModel struct {
	Frame          Model
	FrameDuration  time.Duration
	FrameThreshold float64
}

func NewMajorityModel(frame Model) *MajorityModel {
	return &MajorityModel{Frame: frame, FrameDuration: 30 * time.Millisecond, FrameThreshold: 0.5}
}

func (m *MajorityModel) Load(ctx context.Context) error {
	if l, ok := m.Frame.(Loader); ok {
		return l.Load(ctx)
	}
	return nil
}

func (m *MajorityModel) SpeechProbability(ctx context.Context, samples []float32, sampleRate int) (float64, error) {
	size := windowSize(sampleRate, m.FrameDuration)
	if size <= 0 || len(samples) < size {
		return 0, nil
	}
	var frames, speech int
	for i := 0; i+size <= len(samples); i += size {
		p, err := m.Frame.SpeechProbability(ctx, samples[i:i+size], sampleRate)
		if err != nil {
			return 0, err
		}
		frames++
		if p >= m.FrameThreshold {
			speech++
		}
	}
	if 2*speech > frames {
		return 1, nil
	}
	return 0, nil
}
