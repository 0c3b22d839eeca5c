// Package config defines Summaru's configuration: YAML file with layered
// defaults, .env loading, and keyring → environment → file secret
// resolution.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/summaru/pkg/summaru/dispatch"
	"github.com/jholhewres/summaru/pkg/summaru/history"
	"github.com/jholhewres/summaru/pkg/summaru/ratelimit"
)

// DiscordConfig holds the platform connection settings.
type DiscordConfig struct {
	// Token is the Discord bot token. Resolved via keyring/env if empty.
	Token string `yaml:"token"`

	// ApplicationID is the bot's application id, needed for slash command
	// registration.
	ApplicationID string `yaml:"application_id"`

	// TestGuildID scopes slash command registration to one guild for fast
	// iteration. Empty means register globally.
	TestGuildID string `yaml:"test_guild_id"`

	// MaxDays bounds the days option on slash commands (hours follow as
	// MaxDays*24).
	MaxDays int `yaml:"max_days"`
}

// GeminiConfig holds the generation backend settings.
type GeminiConfig struct {
	// APIKey is the Google AI API key. Resolved via keyring/env if empty.
	APIKey string `yaml:"api_key"`

	// Generation holds model-independent sampling parameters.
	Generation dispatch.GeminiConfig `yaml:"generation"`

	// Fallback lists the models in priority order with cooldown tuning.
	Fallback dispatch.Config `yaml:"fallback"`
}

// CacheConfig bounds the per-channel message cache and its startup backfill.
type CacheConfig struct {
	// SizePerChannel is the cache capacity C per channel.
	SizePerChannel int `yaml:"size_per_channel"`

	// Backfill bounds the startup population.
	Backfill history.SyncConfig `yaml:"backfill"`
}

// EmbedConfig controls reply rendering.
type EmbedConfig struct {
	// Color is the embed accent color.
	Color int `yaml:"color"`

	// MaxChars caps the embed description (Discord limit: 4096).
	MaxChars int `yaml:"max_chars"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	// Name is the assistant name shown in replies.
	Name string `yaml:"name"`

	// Discord configures the platform connection.
	Discord DiscordConfig `yaml:"discord"`

	// Gemini configures the generation backend and model fallback.
	Gemini GeminiConfig `yaml:"gemini"`

	// Cache configures the per-channel message cache.
	Cache CacheConfig `yaml:"cache"`

	// Retrieve bounds context retrieval.
	Retrieve history.RetrieveConfig `yaml:"retrieve"`

	// RateLimit configures the per-user command quota.
	RateLimit ratelimit.Config `yaml:"rate_limit"`

	// Embed configures reply rendering.
	Embed EmbedConfig `yaml:"embed"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the stock configuration. Values mirror the platform
// limits: 100 messages per fetch is the API maximum, 4096 chars the embed
// maximum.
func Default() Config {
	const maxMessages = 30000
	return Config{
		Name: "Summaru",
		Discord: DiscordConfig{
			MaxDays: 365,
		},
		Gemini: GeminiConfig{
			Generation: dispatch.DefaultGeminiConfig(),
			Fallback: dispatch.Config{
				Models: []string{
					"gemini-2.5-flash-preview-09-2025",
					"gemini-2.5-pro",
					"gemini-2.5-flash-lite-preview-09-2025",
					"gemini-2.0-flash",
					"gemini-2.0-flash-lite",
				},
				ShortCooldown: time.Minute,
				LongCooldown:  6 * time.Hour,
			},
		},
		Cache: CacheConfig{
			SizePerChannel: maxMessages,
			Backfill: history.SyncConfig{
				PageSize:         100,
				PopulationAmount: maxMessages,
				MaxFetch:         2 * maxMessages,
			},
		},
		Retrieve: history.RetrieveConfig{
			MaxMessages:      maxMessages,
			PageSize:         100,
			BufferMultiplier: 1.5,
			LowerFetchFloor:  2000,
		},
		RateLimit: ratelimit.DefaultConfig(),
		Embed: EmbedConfig{
			Color:    0x0099FF,
			MaxChars: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file at path (if it exists) over the defaults, then
// resolves secrets. A .env file in the working directory is loaded first so
// environment overrides work in development too.
func Load(path string) (Config, error) {
	// Best effort: absence of a .env file is not an error.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.Discord.Token = ResolveSecret(SecretDiscordToken, "DISCORD_TOKEN", cfg.Discord.Token)
	cfg.Gemini.APIKey = ResolveSecret(SecretGeminiKey, "GEMINI_API_KEY", cfg.Gemini.APIKey)

	if v := os.Getenv("CLIENT_ID"); v != "" {
		cfg.Discord.ApplicationID = v
	}
	if v := os.Getenv("TEST_GUILD_ID"); v != "" {
		cfg.Discord.TestGuildID = v
	}

	return cfg, nil
}

// Validate checks that the configuration can actually run.
func (c Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("config: discord token is required (DISCORD_TOKEN or discord.token)")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("config: gemini api key is required (GEMINI_API_KEY or gemini.api_key)")
	}
	if len(c.Gemini.Fallback.Models) == 0 {
		return fmt.Errorf("config: at least one model is required")
	}
	if c.Cache.SizePerChannel <= 0 {
		return fmt.Errorf("config: cache.size_per_channel must be positive")
	}
	if c.Retrieve.MaxMessages <= 0 || c.Retrieve.PageSize <= 0 {
		return fmt.Errorf("config: retrieve limits must be positive")
	}
	return nil
}
