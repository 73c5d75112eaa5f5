package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/voicepro/internal/api"
	"github.com/nikhilbhutani/voicepro/internal/app"
	"github.com/nikhilbhutani/voicepro/internal/config"
	"github.com/nikhilbhutani/voicepro/internal/dataset"
	"github.com/nikhilbhutani/voicepro/internal/metrics"
	"github.com/nikhilbhutani/voicepro/internal/queue"
	"github.com/nikhilbhutani/voicepro/internal/rag"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	app.SetupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	m := metrics.New()

	// Database, Redis and NATS are optional; missing ones disable their features.
	infra := app.Connect(ctx, cfg)
	defer infra.Close()

	p, err := app.NewPipeline(ctx, cfg, infra, m)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	if err := p.Initialize(ctx); err != nil {
		slog.Error("transcription model unavailable", "error", err)
		os.Exit(1)
	}

	synth, err := app.NewTTS(cfg.TTS)
	if err != nil {
		slog.Error("failed to build synthesizer", "error", err)
		os.Exit(1)
	}

	opts := dataset.Options{
		OutputDir:   cfg.Dataset.OutputDir,
		DatasetName: cfg.Dataset.Name,
		Language:    cfg.Dataset.Language,
		Concurrency: cfg.Dataset.Concurrency,
		Events:      infra.Events,
		Metrics:     m,
	}
	if infra.DB != nil {
		opts.Index = dataset.NewPGIndex(infra.DB, cfg.Dataset.Name)
	}
	collector, err := dataset.New(p, opts)
	if err != nil {
		slog.Error("failed to open dataset", "error", err)
		os.Exit(1)
	}

	deps := api.Deps{
		Config:    cfg,
		Pipeline:  p,
		TTS:       synth,
		Collector: collector,
		RAG:       rag.NewClient(cfg.RAG.BaseURL),
		Metrics:   m,
		DB:        infra.DB,
		Redis:     infra.Redis,
	}
	if infra.Redis != nil {
		jobs := queue.NewClient(cfg.Redis)
		defer jobs.Close()
		deps.Jobs = jobs
	}

	router := api.NewRouter(deps)
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "stt", cfg.STT.Backend, "tts", cfg.TTS.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	if n := len(collector.Samples()); n > 0 {
		if path, err := collector.SaveMetadata(dataset.FormatJSONL); err != nil {
			slog.Error("save dataset metadata", "error", err)
		} else {
			slog.Info("dataset metadata saved on shutdown", "path", path, "samples", n)
		}
	}
	slog.Info("server stopped")
}
