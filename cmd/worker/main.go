package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/voicepro/internal/app"
	"github.com/nikhilbhutani/voicepro/internal/config"
	"github.com/nikhilbhutani/voicepro/internal/metrics"
	"github.com/nikhilbhutani/voicepro/internal/queue"
	"github.com/nikhilbhutani/voicepro/internal/queue/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	app.SetupLogger(cfg)

	ctx := context.Background()
	infra := app.Connect(ctx, cfg)
	defer infra.Close()

	p, err := app.NewPipeline(ctx, cfg, infra, metrics.New())
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	if err := p.Initialize(ctx); err != nil {
		slog.Error("transcription model unavailable", "error", err)
		os.Exit(1)
	}

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues:      queue.Queues(),
		},
	)

	registry := queue.NewHandlersRegistry()

	// Register workers
	transcribeWorker := workers.NewTranscribeWorker(p)

	registry.Register(queue.TypeTranscribeFile, asynq.HandlerFunc(transcribeWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", cfg.Queue.Concurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
