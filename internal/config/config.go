package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Auth     AuthConfig     `toml:"auth"`
	STT      STTConfig      `toml:"stt"`
	TTS      TTSConfig      `toml:"tts"`
	VAD      VADConfig      `toml:"vad"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Dataset  DatasetConfig  `toml:"dataset"`
	Queue    QueueConfig    `toml:"queue"`
	NATS     NATSConfig     `toml:"nats"`
	RAG      RAGConfig      `toml:"rag"`
}

type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	RateLimit      int      `toml:"rate_limit"`
	RateBurst      int      `toml:"rate_burst"`
	MaxUpload      int      `toml:"max_upload_mb"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type DatabaseConfig struct {
	URL            string `toml:"url"`
	MaxConns       int    `toml:"max_conns"`
	MinConns       int    `toml:"min_conns"`
	MigrationsPath string `toml:"migrations_path"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	// CacheTTLMinutes is how long file transcriptions stay cached. 0 disables the cache.
	CacheTTLMinutes int `toml:"cache_ttl_minutes"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"` // empty disables auth
}

type STTConfig struct {
	Backend       string `toml:"backend"` // "openai" or "local"
	OpenAIKey     string `toml:"openai_key"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	Model         string `toml:"model"`
	LocalBaseURL  string `toml:"local_base_url"` // default: "http://localhost:8178"
}

type TTSConfig struct {
	Backend       string `toml:"backend"` // "openai" or "local"
	OpenAIKey     string `toml:"openai_key"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	OpenAIModel   string `toml:"openai_model"`
	DefaultVoice  string `toml:"default_voice"`
	LocalBinPath  string `toml:"local_bin_path"` // default: "piper"
	LocalModel    string `toml:"local_model"`    // required when backend=local
}

type VADConfig struct {
	Backend   string  `toml:"backend"` // "energy" or "http"
	URL       string  `toml:"url"`
	Threshold float64 `toml:"threshold"`
	MinWindow int     `toml:"min_window"`
	// EnergyReference is the RMS the energy model maps to probability 0.5.
	EnergyReference float64 `toml:"energy_reference"`
	Majority        bool    `toml:"majority"`
}

type PipelineConfig struct {
	SampleRate      int    `toml:"sample_rate"`
	DefaultLanguage string `toml:"default_language"`
	FlushOnClose    bool   `toml:"flush_on_close"`
}

type DatasetConfig struct {
	OutputDir   string `toml:"output_dir"`
	Name        string `toml:"name"`
	Language    string `toml:"language"`
	Concurrency int    `toml:"concurrency"`
}

type QueueConfig struct {
	SpoolDir    string `toml:"spool_dir"`
	Concurrency int    `toml:"concurrency"`
}

type NATSConfig struct {
	URL string `toml:"url"` // empty disables event publishing
}

type RAGConfig struct {
	BaseURL string `toml:"base_url"` // empty disables the /rag routes
}

// Load builds the configuration from defaults, an optional TOML file named
// by CONFIG_FILE and the environment, in increasing order of precedence.
// A .env file in the working directory is loaded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RateLimit:      100,
			RateBurst:      200,
			MaxUpload:      32,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			MaxConns:       10,
			MinConns:       1,
			MigrationsPath: "migrations",
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			CacheTTLMinutes: 60,
		},
		STT: STTConfig{
			Backend:      "openai",
			Model:        "whisper-1",
			LocalBaseURL: "http://localhost:8178",
		},
		TTS: TTSConfig{
			Backend:      "openai",
			OpenAIModel:  "tts-1",
			DefaultVoice: "alloy",
			LocalBinPath: "piper",
		},
		VAD: VADConfig{
			Backend:         "energy",
			Threshold:       0.5,
			MinWindow:       512,
			EnergyReference: 0.01,
		},
		Pipeline: PipelineConfig{
			SampleRate:      16000,
			DefaultLanguage: "pl",
			FlushOnClose:    true,
		},
		Dataset: DatasetConfig{
			OutputDir:   "./dataset",
			Name:        "lbrxVoicePro",
			Language:    "pl",
			Concurrency: 4,
		},
		Queue: QueueConfig{
			SpoolDir:    os.TempDir(),
			Concurrency: 4,
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	slog.Debug("loaded config file", "path", path)
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	ints := []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &c.Server.Port},
		{"RATE_LIMIT_RPS", &c.Server.RateLimit},
		{"RATE_LIMIT_BURST", &c.Server.RateBurst},
		{"MAX_UPLOAD_MB", &c.Server.MaxUpload},
		{"DB_MAX_CONNS", &c.Database.MaxConns},
		{"DB_MIN_CONNS", &c.Database.MinConns},
		{"REDIS_DB", &c.Redis.DB},
		{"CACHE_TTL_MINUTES", &c.Redis.CacheTTLMinutes},
		{"VAD_MIN_WINDOW", &c.VAD.MinWindow},
		{"SAMPLE_RATE", &c.Pipeline.SampleRate},
		{"DATASET_CONCURRENCY", &c.Dataset.Concurrency},
		{"WORKER_CONCURRENCY", &c.Queue.Concurrency},
	}
	for _, v := range ints {
		if *v.dst, err = getEnvInt(v.key, *v.dst); err != nil {
			return fmt.Errorf("invalid %s: %w", v.key, err)
		}
	}

	if c.VAD.Threshold, err = getEnvFloat("VAD_THRESHOLD", c.VAD.Threshold); err != nil {
		return fmt.Errorf("invalid VAD_THRESHOLD: %w", err)
	}
	if c.VAD.EnergyReference, err = getEnvFloat("VAD_ENERGY_REFERENCE", c.VAD.EnergyReference); err != nil {
		return fmt.Errorf("invalid VAD_ENERGY_REFERENCE: %w", err)
	}
	if c.VAD.Majority, err = getEnvBool("VAD_MAJORITY", c.VAD.Majority); err != nil {
		return fmt.Errorf("invalid VAD_MAJORITY: %w", err)
	}
	if c.Pipeline.FlushOnClose, err = getEnvBool("STREAM_FLUSH_ON_CLOSE", c.Pipeline.FlushOnClose); err != nil {
		return fmt.Errorf("invalid STREAM_FLUSH_ON_CLOSE: %w", err)
	}

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", c.Database.MigrationsPath)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)

	c.STT.Backend = getEnv("STT_BACKEND", c.STT.Backend)
	c.STT.OpenAIKey = getEnv("OPENAI_API_KEY", c.STT.OpenAIKey)
	c.STT.OpenAIBaseURL = getEnv("STT_OPENAI_BASE_URL", c.STT.OpenAIBaseURL)
	c.STT.Model = getEnv("STT_MODEL", c.STT.Model)
	c.STT.LocalBaseURL = getEnv("STT_LOCAL_BASE_URL", c.STT.LocalBaseURL)

	c.TTS.Backend = getEnv("TTS_BACKEND", c.TTS.Backend)
	c.TTS.OpenAIKey = getEnv("OPENAI_API_KEY", c.TTS.OpenAIKey)
	c.TTS.OpenAIBaseURL = getEnv("TTS_OPENAI_BASE_URL", c.TTS.OpenAIBaseURL)
	c.TTS.OpenAIModel = getEnv("TTS_OPENAI_MODEL", c.TTS.OpenAIModel)
	c.TTS.DefaultVoice = getEnv("TTS_DEFAULT_VOICE", c.TTS.DefaultVoice)
	c.TTS.LocalBinPath = getEnv("TTS_LOCAL_PIPER_BIN", c.TTS.LocalBinPath)
	c.TTS.LocalModel = getEnv("TTS_LOCAL_PIPER_MODEL", c.TTS.LocalModel)

	c.VAD.Backend = getEnv("VAD_BACKEND", c.VAD.Backend)
	c.VAD.URL = getEnv("VAD_URL", c.VAD.URL)

	c.Pipeline.DefaultLanguage = getEnv("DEFAULT_LANGUAGE", c.Pipeline.DefaultLanguage)

	c.Dataset.OutputDir = getEnv("DATASET_DIR", c.Dataset.OutputDir)
	c.Dataset.Name = getEnv("DATASET_NAME", c.Dataset.Name)
	c.Dataset.Language = getEnv("DATASET_LANGUAGE", c.Dataset.Language)

	c.Queue.SpoolDir = getEnv("SPOOL_DIR", c.Queue.SpoolDir)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.RAG.BaseURL = getEnv("RAG_BASE_URL", c.RAG.BaseURL)
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var problems []string
	switch c.STT.Backend {
	case "openai":
		if c.STT.OpenAIKey == "" && c.STT.OpenAIBaseURL == "" {
			problems = append(problems, "OPENAI_API_KEY is required for STT_BACKEND=openai")
		}
	case "local":
	default:
		problems = append(problems, fmt.Sprintf("unknown STT_BACKEND %q", c.STT.Backend))
	}
	switch c.TTS.Backend {
	case "openai":
	case "local":
		if c.TTS.LocalModel == "" {
			problems = append(problems, "TTS_LOCAL_PIPER_MODEL is required for TTS_BACKEND=local")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown TTS_BACKEND %q", c.TTS.Backend))
	}
	switch c.VAD.Backend {
	case "energy":
	case "http":
		if c.VAD.URL == "" {
			problems = append(problems, "VAD_URL is required for VAD_BACKEND=http")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown VAD_BACKEND %q", c.VAD.Backend))
	}
	if c.Pipeline.SampleRate <= 0 {
		problems = append(problems, "SAMPLE_RATE must be positive")
	}
	if c.VAD.Threshold < 0 || c.VAD.Threshold > 1 {
		problems = append(problems, "VAD_THRESHOLD must be within [0, 1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SlogLevel maps Log.Level onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}
