// Package config loads mnemo's configuration from a YAML file with
// environment-variable overrides. Environment values always win, so secrets
// like API keys never need to live in the file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Redis     RedisConfig     `yaml:"redis"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Memory    MemoryConfig    `yaml:"memory"`
	Chat      ChatConfig      `yaml:"chat"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"MNEMO_LOG_LEVEL"`
}

// RedisConfig configures the store connection.
type RedisConfig struct {
	URL          string        `yaml:"url" env:"MNEMO_REDIS_URL"`
	DialAttempts int           `yaml:"dial_attempts" env:"MNEMO_REDIS_DIAL_ATTEMPTS"`
	DialBackoff  time.Duration `yaml:"dial_backoff" env:"MNEMO_REDIS_DIAL_BACKOFF"`
}

// AnthropicConfig configures the chat model provider.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key" env:"ANTHROPIC_API_KEY"`
	Model     string `yaml:"model" env:"MNEMO_ANTHROPIC_MODEL"`
	MaxTokens int    `yaml:"max_tokens" env:"MNEMO_ANTHROPIC_MAX_TOKENS"`
}

// OpenAIConfig configures the embedding provider.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model  string `yaml:"model" env:"MNEMO_OPENAI_EMBED_MODEL"`
}

// MemoryConfig tunes the memory tiers.
type MemoryConfig struct {
	SemanticThreshold float64 `yaml:"semantic_threshold" env:"MNEMO_SEMANTIC_THRESHOLD"`
	EpisodicThreshold float64 `yaml:"episodic_threshold" env:"MNEMO_EPISODIC_THRESHOLD"`
	LongTermThreshold float64 `yaml:"long_term_threshold" env:"MNEMO_LONG_TERM_THRESHOLD"`

	// SemanticTTL expires cached answers; zero keeps them forever.
	SemanticTTL time.Duration `yaml:"semantic_ttl" env:"MNEMO_SEMANTIC_TTL"`

	// CacheSize bounds the embedding cache entry count.
	CacheSize int64 `yaml:"cache_size" env:"MNEMO_EMBED_CACHE_SIZE"`
}

// ChatConfig tunes the conversation controller.
type ChatConfig struct {
	UserID         string `yaml:"user_id" env:"MNEMO_USER_ID"`
	SummarizeEvery int    `yaml:"summarize_every" env:"MNEMO_SUMMARIZE_EVERY"`
	MaxToolTurns   int    `yaml:"max_tool_turns" env:"MNEMO_MAX_TOOL_TURNS"`
	HistoryLimit   int    `yaml:"history_limit" env:"MNEMO_HISTORY_LIMIT"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Redis: RedisConfig{
			URL:          "redis://localhost:6379",
			DialAttempts: 3,
			DialBackoff:  500 * time.Millisecond,
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 1024,
		},
		OpenAI: OpenAIConfig{
			Model: "text-embedding-3-small",
		},
		Memory: MemoryConfig{
			SemanticThreshold: 0.35,
			EpisodicThreshold: 0.35,
			LongTermThreshold: 0.2,
			CacheSize:         10_000,
		},
		Chat: ChatConfig{
			UserID:         "default",
			SummarizeEvery: 6,
			MaxToolTurns:   5,
			HistoryLimit:   20,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty it must exist), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that can never work.
func (c Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("config: redis.url is required")
	}
	if c.Redis.DialAttempts <= 0 {
		return fmt.Errorf("config: redis.dial_attempts must be positive")
	}
	for name, v := range map[string]float64{
		"memory.semantic_threshold":  c.Memory.SemanticThreshold,
		"memory.episodic_threshold":  c.Memory.EpisodicThreshold,
		"memory.long_term_threshold": c.Memory.LongTermThreshold,
	} {
		if v <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.Chat.UserID == "" {
		return fmt.Errorf("config: chat.user_id is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured level onto slog.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
