// Command record captures speech from a microphone, transcribes each
// utterance and optionally adds it to the dataset.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nikhilbhutani/voicepro/internal/app"
	"github.com/nikhilbhutani/voicepro/internal/audio"
	pa "github.com/nikhilbhutani/voicepro/internal/audio/portaudio"
	"github.com/nikhilbhutani/voicepro/internal/config"
	"github.com/nikhilbhutani/voicepro/internal/dataset"
	"github.com/nikhilbhutani/voicepro/internal/metrics"
)

func main() {
	listDevices := flag.Bool("list-devices", false, "list input devices and exit")
	device := flag.Int("device", -1, "input device index (-1 for the default device)")
	language := flag.String("language", "", "transcription language (defaults to the pipeline language)")
	outDir := flag.String("out", "recordings", "directory for utterance WAV files")
	collect := flag.Bool("collect", false, "add every utterance to the dataset")
	speaker := flag.String("speaker", "default", "speaker id for collected samples")
	threshold := flag.Float64("threshold", 0.01, "chunk RMS that counts as speech")
	silence := flag.Duration("silence", 2*time.Second, "silence that ends an utterance")
	minSpeech := flag.Duration("min-speech", 500*time.Millisecond, "shortest utterance kept")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	app.SetupLogger(cfg)

	if err := pa.Init(); err != nil {
		slog.Error("audio unavailable", "error", err)
		os.Exit(1)
	}
	defer pa.Terminate()

	if *listDevices {
		devices, err := pa.Devices()
		if err != nil {
			slog.Error("failed to list devices", "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(devices)
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		slog.Error("failed to create output dir", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra := app.Connect(ctx, cfg)
	defer infra.Close()
	m := metrics.New()

	p, err := app.NewPipeline(ctx, cfg, infra, m)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	if err := p.Initialize(ctx); err != nil {
		slog.Error("transcription model unavailable", "error", err)
		os.Exit(1)
	}

	var collector *dataset.Collector
	if *collect {
		opts := dataset.Options{
			OutputDir:   cfg.Dataset.OutputDir,
			DatasetName: cfg.Dataset.Name,
			Language:    cfg.Dataset.Language,
			Events:      infra.Events,
			Metrics:     m,
		}
		if infra.DB != nil {
			opts.Index = dataset.NewPGIndex(infra.DB, cfg.Dataset.Name)
		}
		if collector, err = dataset.New(p, opts); err != nil {
			slog.Error("failed to open dataset", "error", err)
			os.Exit(1)
		}
	}

	stream := audio.StreamConfig{SampleRate: p.SampleRate(), Channels: 1, ChunkDuration: 100 * time.Millisecond}
	rec := audio.NewRecorder(pa.NewInput(*device), audio.RecorderConfig{
		Stream:  stream,
		OnLevel: func(rms float64) { slog.Debug("input level", "rms", rms) },
	})

	if err := rec.Start(); err != nil {
		slog.Error("failed to start recording", "error", err)
		os.Exit(1)
	}
	slog.Info("listening, press Ctrl+C to stop", "device", *device, "sample_rate", stream.SampleRate)

	segCfg := audio.SegmenterConfig{
		Threshold:         *threshold,
		SilenceDuration:   *silence,
		MinSpeechDuration: *minSpeech,
	}
	sessionPath := filepath.Join(*outDir, "session_"+time.Now().Format("20060102_150405")+".wav")

	// Transcription outlives the signal so queued utterances finish.
	work := context.Background()
	_, err = runSession(ctx, rec, segCfg, sessionPath, func(n int, u audio.Utterance) {
		res, err := p.TranscribeSamples(work, u.Samples, *language)
		if err != nil {
			slog.Error("transcription failed", "utterance", n, "error", err)
			return
		}
		fmt.Printf("[%s] %s\n", u.Duration.Round(100*time.Millisecond), res.Text)

		if collector == nil {
			return
		}
		path := filepath.Join(*outDir, fmt.Sprintf("utterance_%s_%03d.wav", time.Now().Format("20060102_150405"), n))
		if err := audio.SaveRecording(path, u.Samples, u.SampleRate, u.Channels); err != nil {
			slog.Error("save utterance", "error", err)
			return
		}
		if _, err := collector.CollectSample(work, path, *speaker, *language); err != nil {
			slog.Error("collect utterance", "path", path, "error", err)
		}
	})
	if err != nil {
		slog.Error("save session recording", "error", err)
	}

	if collector != nil && len(collector.Samples()) > 0 {
		path, err := collector.SaveMetadata(dataset.FormatJSONL)
		if err != nil {
			slog.Error("save dataset metadata", "error", err)
			os.Exit(1)
		}
		slog.Info("dataset metadata saved", "path", path, "samples", len(collector.Samples()))
	}
}
