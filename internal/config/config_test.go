package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max tokens", func(c *Config) { c.Messages.MaxTokens = 0 }},
		{"empty chat delimiter", func(c *Config) { c.Messages.ChatDelimiter = "" }},
		{"no chunk delimiters", func(c *Config) { c.Messages.ChunkDelimiters = nil }},
		{"threshold above one", func(c *Config) { c.Messages.Repetition.Threshold = 1.5 }},
		{"negative lookback", func(c *Config) { c.Messages.Repetition.Lookback = -1 }},
		{"bad throttle scope", func(c *Config) { c.Messages.Repetition.ThrottleScope = "sometimes" }},
		{"base chance above max", func(c *Config) {
			c.Messages.SelectiveResponse = true
			c.Messages.BaseChance = 0.9
			c.Messages.MaxChance = 0.5
		}},
		{"zero ramp with selective response", func(c *Config) {
			c.Messages.SelectiveResponse = true
			c.Messages.ChanceRampUpMS = 0
		}},
		{"zero response interval", func(c *Config) { c.Messages.ResponseIntervalMS = 0 }},
		{"empty backend url", func(c *Config) { c.Backend.BaseURL = "" }},
		{"drawing without trigger", func(c *Config) {
			c.Drawing.Enabled = true
			c.Drawing.Trigger = ""
		}},
		{"overlay without file", func(c *Config) {
			c.Overlay.Enabled = true
			c.Overlay.ResponseFile = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg := Defaults()
	cfg.Messages.MaxTokens = 1234
	cfg.Channels.Twitch.Enabled = true
	cfg.Channels.Twitch.Channel = "somestream"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Messages.MaxTokens != 1234 {
		t.Fatalf("MaxTokens = %d, want 1234", loaded.Messages.MaxTokens)
	}
	if !loaded.Channels.Twitch.Enabled || loaded.Channels.Twitch.Channel != "somestream" {
		t.Fatalf("twitch config lost: %+v", loaded.Channels.Twitch)
	}
}

func TestLoadAppliesDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	minimal := "messages:\n  max-tokens: 512\n"
	if err := os.WriteFile(path, []byte(minimal), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Messages.MaxTokens != 512 {
		t.Fatalf("explicit value lost: %d", cfg.Messages.MaxTokens)
	}
	if cfg.Backend.BaseURL == "" || len(cfg.Messages.ChunkDelimiters) == 0 {
		t.Fatal("defaults not applied for missing keys")
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	bad := "messages:\n  max-tokens: -5\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("invalid config loaded without error")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Defaults()
	if cfg.Messages.ResponseInterval().Milliseconds() != int64(cfg.Messages.ResponseIntervalMS) {
		t.Fatal("ResponseInterval conversion wrong")
	}
	if cfg.Backend.RequestTimeout().Milliseconds() != int64(cfg.Backend.RequestTimeoutMS) {
		t.Fatal("RequestTimeout conversion wrong")
	}
}
