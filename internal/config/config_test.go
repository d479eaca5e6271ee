package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9090"
database:
  driver: postgres
  dsn: "postgres://localhost/autopost?sslmode=disable"
runner:
  token: file-token
  interval: 30s
  call_timeout: 10s
  rate_per_sec: 5
generation:
  gemini:
    api_key: gkey
    model: gemini-2.5-flash
  huggingface:
    api_keys: [hf1, hf2]
publisher:
  kind: bridge
  bridge:
    url: http://localhost:3000/tweet
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "file-token", cfg.Runner.Token)
	assert.Equal(t, 5, cfg.Runner.RatePerSec)
	assert.Equal(t, "gkey", cfg.Generation.Gemini.APIKey)
	assert.Equal(t, []string{"hf1", "hf2"}, cfg.Generation.HuggingFace.APIKeys)
	assert.Equal(t, "http://localhost:3000/tweet", cfg.Publisher.Bridge.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)

	interval, err := cfg.Interval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, interval)
	timeout, err := cfg.CallTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)

	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "autopost.db", cfg.Database.DSN)
	assert.Equal(t, 2, cfg.Runner.RatePerSec)
	assert.Equal(t, "bridge", cfg.Publisher.Kind)
	assert.Equal(t, "info", cfg.Logging.Level)

	interval, err := cfg.Interval()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, interval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
runner:
  token: file-token
generation:
  huggingface:
    api_keys: [from-file]
`)
	t.Setenv("RUNNER_TOKEN", "env-token")
	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("HUGGINGFACE_API_KEY1", "env-hf1")
	t.Setenv("HUGGINGFACE_API_KEY2", "env-hf2")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-tg")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Runner.Token)
	assert.Equal(t, "env-gemini", cfg.Generation.Gemini.APIKey)
	// Env keys extend the file's list.
	assert.Equal(t, []string{"from-file", "env-hf1", "env-hf2"}, cfg.Generation.HuggingFace.APIKeys)
	assert.Equal(t, "env-tg", cfg.Publisher.Telegram.Token)
}

func TestValidateRequiresToken(t *testing.T) {
	t.Setenv("RUNNER_TOKEN", "")
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Publisher.Bridge.URL = "http://localhost:3000/tweet"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner token")
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Runner.Token = "t"
	cfg.Publisher.Bridge.URL = "http://localhost:3000/tweet"
	cfg.Database.Driver = "oracle"

	assert.Error(t, cfg.Validate())
}

func TestValidateTelegramPublisher(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Runner.Token = "t"
	cfg.Publisher.Kind = "telegram"

	assert.Error(t, cfg.Validate())

	cfg.Publisher.Telegram.Token = "bot-token"
	assert.Error(t, cfg.Validate())

	cfg.Publisher.Telegram.ChatID = 12345
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadDuration(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Runner.Token = "t"
	cfg.Publisher.Bridge.URL = "http://localhost:3000/tweet"
	cfg.Runner.Interval = "sometimes"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestDurationZeroFallsBackToDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Runner.Interval = "0s"

	interval, err := cfg.Interval()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, interval)
}
