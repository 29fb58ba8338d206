package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, "default", cfg.Chat.UserID)
	assert.Equal(t, 6, cfg.Chat.SummarizeEvery)
	assert.InDelta(t, 0.35, cfg.Memory.SemanticThreshold, 1e-9)
	assert.InDelta(t, 0.2, cfg.Memory.LongTermThreshold, 1e-9)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
redis:
  url: redis://redis.internal:6380
  dial_backoff: 2s
chat:
  user_id: alice
log_level: debug
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis://redis.internal:6380", cfg.Redis.URL)
	assert.Equal(t, 2*time.Second, cfg.Redis.DialBackoff)
	assert.Equal(t, "alice", cfg.Chat.UserID)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	// Untouched values keep their defaults.
	assert.Equal(t, 3, cfg.Redis.DialAttempts)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  user_id: from-file\n"), 0o600))

	t.Setenv("MNEMO_USER_ID", "from-env")
	t.Setenv("MNEMO_SUMMARIZE_EVERY", "3")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Chat.UserID)
	assert.Equal(t, 3, cfg.Chat.SummarizeEvery)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty redis url", func(c *config.Config) { c.Redis.URL = "" }},
		{"zero dial attempts", func(c *config.Config) { c.Redis.DialAttempts = 0 }},
		{"negative threshold", func(c *config.Config) { c.Memory.SemanticThreshold = -1 }},
		{"empty user", func(c *config.Config) { c.Chat.UserID = "" }},
		{"bogus log level", func(c *config.Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
