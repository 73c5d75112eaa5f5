// Package app assembles the voice services from configuration for the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/voicepro/internal/cache"
	"github.com/nikhilbhutani/voicepro/internal/config"
	"github.com/nikhilbhutani/voicepro/internal/database"
	"github.com/nikhilbhutani/voicepro/internal/events"
	"github.com/nikhilbhutani/voicepro/internal/metrics"
	"github.com/nikhilbhutani/voicepro/internal/multimodal/stt"
	"github.com/nikhilbhutani/voicepro/internal/multimodal/tts"
	"github.com/nikhilbhutani/voicepro/internal/pipeline"
	"github.com/nikhilbhutani/voicepro/internal/vad"
)

// SetupLogger installs a JSON slog logger at the configured level.
func SetupLogger(cfg *config.Config) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
}

func NewSTT(cfg config.STTConfig) (stt.STTProvider, error) {
	switch cfg.Backend {
	case "openai", "":
		return stt.NewOpenAISTT(stt.OpenAISTTConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.Model,
		}), nil
	case "local":
		return stt.NewLocalSTT(stt.LocalSTTConfig{BaseURL: cfg.LocalBaseURL, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unknown STT backend %q", cfg.Backend)
	}
}

func NewTTS(cfg config.TTSConfig) (tts.TTSProvider, error) {
	switch cfg.Backend {
	case "openai", "":
		return tts.NewOpenAITTS(tts.OpenAITTSConfig{
			APIKey:       cfg.OpenAIKey,
			BaseURL:      cfg.OpenAIBaseURL,
			Model:        cfg.OpenAIModel,
			DefaultVoice: cfg.DefaultVoice,
		}), nil
	case "local":
		return tts.NewLocalTTS(tts.LocalTTSConfig{PiperBinPath: cfg.LocalBinPath, ModelPath: cfg.LocalModel}), nil
	default:
		return nil, fmt.Errorf("unknown TTS backend %q", cfg.Backend)
	}
}

// NewDetector builds and loads the configured voice activity model.
func NewDetector(ctx context.Context, cfg *config.Config) (*vad.Detector, error) {
	var model vad.Model
	switch cfg.VAD.Backend {
	case "energy", "":
		model = vad.NewEnergyModel(cfg.VAD.EnergyReference)
	case "http":
		model = vad.NewHTTPModel(cfg.VAD.URL, 10*time.Second)
	default:
		return nil, fmt.Errorf("unknown VAD backend %q", cfg.VAD.Backend)
	}
	if cfg.VAD.Majority {
		model = vad.NewMajorityModel(model)
	}

	vcfg := vad.DefaultConfig()
	vcfg.Threshold = cfg.VAD.Threshold
	vcfg.SampleRate = cfg.Pipeline.SampleRate
	vcfg.MinWindow = cfg.VAD.MinWindow
	return vad.New(ctx, model, vcfg)
}

// Infra holds the optional backing services. Each field is nil when the
// service is not configured or unreachable.
type Infra struct {
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Events events.Publisher
	nats   *events.NATSPublisher
}

// Connect opens the optional backing services. Failures are logged and the
// service is left out.
func Connect(ctx context.Context, cfg *config.Config) *Infra {
	infra := &Infra{Events: events.Nop{}}

	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, running without sample index", "error", err)
		} else {
			infra.DB = db
			if n, err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
				slog.Warn("migrations failed", "error", err)
			} else if n > 0 {
				slog.Info("database migrated", "applied", n)
			}
		}
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, running without cache and jobs", "error", err)
			rdb.Close()
		} else {
			infra.Redis = rdb
		}
	}

	if cfg.NATS.URL != "" {
		pub, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, events disabled", "error", err)
		} else {
			infra.nats = pub
			infra.Events = pub
		}
	}

	return infra
}

func (i *Infra) Close() {
	if i.nats != nil {
		if err := i.nats.Close(); err != nil {
			slog.Warn("close nats", "error", err)
		}
	}
	if i.Redis != nil {
		i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// NewPipeline wires the transcription pipeline with the cache and events
// available in infra.
func NewPipeline(ctx context.Context, cfg *config.Config, infra *Infra, m *metrics.Metrics) (*pipeline.Pipeline, error) {
	provider, err := NewSTT(cfg.STT)
	if err != nil {
		return nil, err
	}
	detector, err := NewDetector(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Model:           cfg.STT.Model,
		DefaultLanguage: cfg.Pipeline.DefaultLanguage,
		SampleRate:      cfg.Pipeline.SampleRate,
		FlushOnClose:    cfg.Pipeline.FlushOnClose,
		Events:          infra.Events,
		Metrics:         m,
	}
	if infra.Redis != nil && cfg.Redis.CacheTTLMinutes > 0 {
		opts.Cache = cache.NewCache(infra.Redis, time.Duration(cfg.Redis.CacheTTLMinutes)*time.Minute)
	}
	return pipeline.New(provider, detector, opts), nil
}
