package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Name != "Summaru" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Cache.SizePerChannel != 30000 {
		t.Errorf("SizePerChannel = %d, want 30000", cfg.Cache.SizePerChannel)
	}
	if cfg.Retrieve.PageSize != 100 {
		t.Errorf("PageSize = %d, want the API maximum 100", cfg.Retrieve.PageSize)
	}
	if cfg.Retrieve.BufferMultiplier != 1.5 || cfg.Retrieve.LowerFetchFloor != 2000 {
		t.Errorf("fetch budget defaults wrong: %v / %d",
			cfg.Retrieve.BufferMultiplier, cfg.Retrieve.LowerFetchFloor)
	}
	if len(cfg.Gemini.Fallback.Models) != 5 {
		t.Errorf("expected 5 fallback models, got %d", len(cfg.Gemini.Fallback.Models))
	}
	if cfg.Gemini.Fallback.ShortCooldown != time.Minute || cfg.Gemini.Fallback.LongCooldown != 6*time.Hour {
		t.Errorf("cooldowns wrong: %v / %v",
			cfg.Gemini.Fallback.ShortCooldown, cfg.Gemini.Fallback.LongCooldown)
	}
	if cfg.RateLimit.Count != 30 || cfg.RateLimit.Window != 10*time.Minute {
		t.Errorf("rate limit defaults wrong: %d per %v", cfg.RateLimit.Count, cfg.RateLimit.Window)
	}
	if cfg.Embed.Color != 0x0099FF || cfg.Embed.MaxChars != 4096 {
		t.Errorf("embed defaults wrong: %#x / %d", cfg.Embed.Color, cfg.Embed.MaxChars)
	}
	if cfg.Discord.MaxDays != 365 {
		t.Errorf("MaxDays = %d, want 365", cfg.Discord.MaxDays)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
name: TestBot
cache:
  size_per_channel: 500
gemini:
  fallback:
    short_cooldown: 30s
rate_limit:
  count: 5
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Name != "TestBot" {
		t.Errorf("Name = %q, want TestBot", cfg.Name)
	}
	if cfg.Cache.SizePerChannel != 500 {
		t.Errorf("SizePerChannel = %d, want 500", cfg.Cache.SizePerChannel)
	}
	if cfg.Gemini.Fallback.ShortCooldown != 30*time.Second {
		t.Errorf("ShortCooldown = %v, want 30s", cfg.Gemini.Fallback.ShortCooldown)
	}
	if cfg.RateLimit.Count != 5 {
		t.Errorf("rate limit count = %d, want 5", cfg.RateLimit.Count)
	}
	// Untouched fields keep their defaults.
	if cfg.Embed.MaxChars != 4096 {
		t.Errorf("MaxChars = %d, default should survive partial files", cfg.Embed.MaxChars)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("a missing config file is not an error: %v", err)
	}
	if cfg.Name != "Summaru" {
		t.Errorf("Name = %q, want default", cfg.Name)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CLIENT_ID", "app-123")
	t.Setenv("TEST_GUILD_ID", "guild-456")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Discord.ApplicationID != "app-123" {
		t.Errorf("ApplicationID = %q", cfg.Discord.ApplicationID)
	}
	if cfg.Discord.TestGuildID != "guild-456" {
		t.Errorf("TestGuildID = %q", cfg.Discord.TestGuildID)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Discord.Token = "tok"
	valid.Gemini.APIKey = "key"

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing token", func(c *Config) { c.Discord.Token = "" }, true},
		{"missing api key", func(c *Config) { c.Gemini.APIKey = "" }, true},
		{"no models", func(c *Config) { c.Gemini.Fallback.Models = nil }, true},
		{"zero cache", func(c *Config) { c.Cache.SizePerChannel = 0 }, true},
		{"zero page size", func(c *Config) { c.Retrieve.PageSize = 0 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
