package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// LocalTTSConfig holds configuration for the local Piper TTS backend.
type LocalTTSConfig struct {
	PiperBinPath string // default: "piper"
	ModelPath    string // required: path to the .onnx voice model
}

// LocalTTS synthesizes speech using the Piper binary via subprocess.
type LocalTTS struct {
	cfg LocalTTSConfig
}

// NewLocalTTS creates a LocalTTS backed by a local Piper binary.
func NewLocalTTS(cfg LocalTTSConfig) *LocalTTS {
	if cfg.PiperBinPath == "" {
		cfg.PiperBinPath = "piper"
	}
	return &LocalTTS{cfg: cfg}
}

func (l *LocalTTS) Name() string { return "local-piper" }

// args maps the request onto Piper flags: a numeric voice selects a speaker
// of a multi-speaker model, speed becomes the inverse length scale and
// temperature the generator noise.
func (l *LocalTTS) args(req SynthesisRequest) []string {
	args := []string{"--model", l.cfg.ModelPath, "--output_file", "-"}
	if id, err := strconv.Atoi(req.Voice); err == nil {
		args = append(args, "--speaker", strconv.Itoa(id))
	}
	if req.Speed > 0 {
		args = append(args, "--length_scale", strconv.FormatFloat(1/req.Speed, 'f', 3, 64))
	}
	if req.Temperature > 0 {
		args = append(args, "--noise_scale", strconv.FormatFloat(req.Temperature, 'f', 3, 64))
	}
	return args
}

// Synthesize pipes text into Piper via stdin and returns the WAV output from stdout.
func (l *LocalTTS) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if l.cfg.ModelPath == "" {
		return nil, fmt.Errorf("piper model path is required (set TTS_LOCAL_PIPER_MODEL)")
	}

	cmd := exec.CommandContext(ctx, l.cfg.PiperBinPath, l.args(req)...)
	cmd.Stdin = strings.NewReader(req.Input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("piper failed: %w (stderr: %s)", err, stderr.String())
	}
	return wavResult(stdout.Bytes(), req.Volume)
}
