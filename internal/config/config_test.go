package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Assistant.Command != "claude" {
		t.Errorf("expected default command 'claude', got %q", cfg.Assistant.Command)
	}
	if _, ok := cfg.Assistant.Pricing[cfg.Assistant.Model]; !ok {
		t.Errorf("default model %q must have a pricing entry", cfg.Assistant.Model)
	}
	if cfg.Platforms.Discord.Enabled || cfg.Platforms.Telegram.Enabled {
		t.Error("platforms must be disabled by default")
	}
	if !cfg.Router.Mirror {
		t.Error("mirroring should be on by default")
	}
	if cfg.Router.InputTimeoutSeconds != 300 {
		t.Errorf("expected 300s input timeout, got %d", cfg.Router.InputTimeoutSeconds)
	}
	if cfg.Usage.RetentionDays != 90 {
		t.Errorf("expected 90-day retention, got %d", cfg.Usage.RetentionDays)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected info log level, got %q", cfg.Log.Level)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoadFromMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `assistant:
  command: my-assistant
platforms:
  telegram:
    enabled: true
    token: "123:abc"
    chatId: "42"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Assistant.Command != "my-assistant" {
		t.Errorf("file value should win, got %q", cfg.Assistant.Command)
	}
	if cfg.Platforms.Telegram.BotToken != "123:abc" {
		t.Errorf("unexpected token %q", cfg.Platforms.Telegram.BotToken)
	}

	// Everything the file omits keeps its default.
	if cfg.Router.InputTimeoutSeconds != 300 {
		t.Errorf("omitted fields should keep defaults, got %d", cfg.Router.InputTimeoutSeconds)
	}
	if cfg.Usage.RetentionDays != 90 {
		t.Errorf("omitted retention should default to 90, got %d", cfg.Usage.RetentionDays)
	}
}

func TestLoadFromInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("assistant: [not: valid"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("expected an error for malformed yaml")
	}
}

func TestValidateDefaultIsValid(t *testing.T) {
	result := Default().Validate()
	if !result.IsValid() {
		t.Errorf("default config should validate, errors: %v", result.Errors)
	}
}

func TestValidateMissingCommand(t *testing.T) {
	cfg := Default()
	cfg.Assistant.Command = ""

	result := cfg.Validate()
	if result.IsValid() {
		t.Error("empty assistant command must be an error")
	}
}

func TestValidateEnabledPlatformNeedsToken(t *testing.T) {
	cfg := Default()
	cfg.Platforms.Discord.Enabled = true
	cfg.Platforms.Telegram.Enabled = true

	result := cfg.Validate()
	if result.IsValid() {
		t.Fatal("enabled platforms without tokens must fail validation")
	}
	if len(result.Errors) != 2 {
		t.Errorf("expected an error per platform, got %v", result.Errors)
	}
}

func TestValidateOpenFilterWarns(t *testing.T) {
	cfg := Default()
	cfg.Platforms.Telegram.Enabled = true
	cfg.Platforms.Telegram.BotToken = "123:abc"

	result := cfg.Validate()
	if !result.IsValid() {
		t.Fatalf("token is set, expected no errors: %v", result.Errors)
	}

	var warned bool
	for _, w := range result.Warnings {
		if strings.Contains(w, "insecure") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("open inbound filter should warn, got %v", result.Warnings)
	}
}

func TestValidateUnknownModelWarns(t *testing.T) {
	cfg := Default()
	cfg.Assistant.Model = "some-unlisted-model"

	result := cfg.Validate()
	if !result.IsValid() {
		t.Fatalf("unknown model is a warning, not an error: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a pricing warning for an unlisted model")
	}
}

func TestValidateRetentionWarning(t *testing.T) {
	cfg := Default()
	cfg.Usage.RetentionDays = 0

	if result := cfg.Validate(); len(result.Warnings) == 0 {
		t.Error("retention below 1 day should warn")
	}
}

func TestValidateHeartbeatIntervalWarning(t *testing.T) {
	cfg := Default()
	cfg.Heartbeat.Enabled = true
	cfg.Heartbeat.IntervalMinutes = 0

	if result := cfg.Validate(); len(result.Warnings) == 0 {
		t.Error("sub-minute heartbeat should warn")
	}
}
