package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 16000, cfg.Pipeline.SampleRate)
	assert.Equal(t, "pl", cfg.Pipeline.DefaultLanguage)
	assert.True(t, cfg.Pipeline.FlushOnClose)
	assert.Equal(t, 0.5, cfg.VAD.Threshold)
	assert.Equal(t, 512, cfg.VAD.MinWindow)
	assert.Equal(t, "./dataset", cfg.Dataset.OutputDir)
	assert.Equal(t, "lbrxVoicePro", cfg.Dataset.Name)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voicepro.toml")
	content := `
[server]
port = 9100

[vad]
backend = "http"
url = "http://vad:9000"
threshold = 0.6

[dataset]
output_dir = "/data/voice"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("VAD_THRESHOLD", "0.7")
	t.Setenv("DEFAULT_LANGUAGE", "en")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "http", cfg.VAD.Backend)
	assert.Equal(t, "http://vad:9000", cfg.VAD.URL)
	assert.Equal(t, 0.7, cfg.VAD.Threshold, "env overrides the file")
	assert.Equal(t, "/data/voice", cfg.Dataset.OutputDir)
	assert.Equal(t, "en", cfg.Pipeline.DefaultLanguage)
	assert.Equal(t, 512, cfg.VAD.MinWindow, "defaults survive a partial file")
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT")
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0o644))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.STT.OpenAIKey = "sk-test"
	require.NoError(t, cfg.Validate())

	cfg.VAD.Backend = "http"
	cfg.TTS.Backend = "local"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAD_URL")
	assert.Contains(t, err.Error(), "TTS_LOCAL_PIPER_MODEL")

	cfg = Defaults()
	cfg.STT.Backend = "sphinx"
	require.Error(t, cfg.Validate())
}

func TestSlogLevel(t *testing.T) {
	cfg := Defaults()
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		cfg.Log.Level = level
		assert.Equal(t, want, cfg.SlogLevel(), level)
	}
}
