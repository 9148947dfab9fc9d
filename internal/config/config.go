package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Assistant AssistantConfig `yaml:"assistant"`
	Platforms PlatformsConfig `yaml:"platforms"`
	Router    RouterConfig    `yaml:"router"`
	Usage     UsageConfig     `yaml:"usage"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: info)
}

// AssistantConfig describes the local assistant CLI invocation.
type AssistantConfig struct {
	Command string                  `yaml:"command"` // executable name or path (default: claude)
	WorkDir string                  `yaml:"workDir"` // working directory for the spawned process
	Model   string                  `yaml:"model"`   // pricing key used for cost estimation
	Pricing map[string]ModelPricing `yaml:"pricing"` // per-model price per million tokens
}

// ModelPricing is the price per million tokens for one model.
type ModelPricing struct {
	InputPerMTok  float64 `yaml:"inputPerMTok"`
	OutputPerMTok float64 `yaml:"outputPerMTok"`
}

type PlatformsConfig struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// DiscordConfig holds Discord adapter settings. With neither ChannelID
// nor UserID set the adapter accepts every non-bot message; that mode
// exists for testing only and is insecure in production.
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"token"`
	ChannelID string `yaml:"channelId"`
	UserID    string `yaml:"userId"`
}

// TelegramConfig holds Telegram adapter settings. Filter semantics
// match Discord: no ChatID and no UserID means accept everything.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"token"`
	ChatID   string `yaml:"chatId"`
	UserID   string `yaml:"userId"`
}

// RouterConfig controls outbound mirroring and inbound throttling.
type RouterConfig struct {
	Mirror              bool `yaml:"mirror"`              // mirror assistant replies to chat platforms
	RateLimit           int  `yaml:"rateLimit"`           // max inbound chat messages per minute per user (0 = disabled)
	InputTimeoutSeconds int  `yaml:"inputTimeoutSeconds"` // default requestInput timeout (default: 300)
}

// UsageConfig controls the usage ledger persistence.
type UsageConfig struct {
	DBPath        string `yaml:"dbPath"`        // sqlite path (default: ~/.echobridge/echobridge.db)
	RetentionDays int    `yaml:"retentionDays"` // daily bucket retention (default: 90)
}

// HeartbeatConfig controls periodic status updates to chat.
type HeartbeatConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"intervalMinutes"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

func Default() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Command: "claude",
			Model:   "claude-sonnet-4-20250514",
			Pricing: map[string]ModelPricing{
				"claude-sonnet-4-20250514":  {InputPerMTok: 3.0, OutputPerMTok: 15.0},
				"claude-opus-4-20250514":    {InputPerMTok: 15.0, OutputPerMTok: 75.0},
				"claude-3-5-haiku-20241022": {InputPerMTok: 0.8, OutputPerMTok: 4.0},
			},
		},
		Platforms: PlatformsConfig{
			Discord:  DiscordConfig{Enabled: false},
			Telegram: TelegramConfig{Enabled: false},
		},
		Router: RouterConfig{
			Mirror:              true,
			RateLimit:           0,
			InputTimeoutSeconds: 300,
		},
		Usage: UsageConfig{
			RetentionDays: 90,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         false,
			IntervalMinutes: 60,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Bind:    "localhost",
			Port:    18790,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".echobridge")
}

func configPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultDBPath returns the default sqlite database path.
func DefaultDBPath() string {
	return filepath.Join(configDir(), "echobridge.db")
}

func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom reads a config file from an explicit path, applying defaults
// for everything the file leaves unset.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config not found: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ValidationResult holds the result of config validation
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// Validate checks the configuration for required fields and common issues
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if c.Assistant.Command == "" {
		result.Errors = append(result.Errors, "Assistant command required: set assistant.command")
	}

	if c.Platforms.Discord.Enabled {
		if c.Platforms.Discord.BotToken == "" {
			result.Errors = append(result.Errors, "Discord enabled but token not set: set platforms.discord.token")
		}
		if c.Platforms.Discord.ChannelID == "" && c.Platforms.Discord.UserID == "" {
			result.Warnings = append(result.Warnings, "Discord has no channelId or userId filter: every non-bot message will be accepted (testing only, insecure in production)")
		}
	}

	if c.Platforms.Telegram.Enabled {
		if c.Platforms.Telegram.BotToken == "" {
			result.Errors = append(result.Errors, "Telegram enabled but token not set: set platforms.telegram.token")
		}
		if c.Platforms.Telegram.ChatID == "" && c.Platforms.Telegram.UserID == "" {
			result.Warnings = append(result.Warnings, "Telegram has no chatId or userId filter: every non-bot message will be accepted (testing only, insecure in production)")
		}
	}

	if c.Assistant.Model != "" {
		if _, ok := c.Assistant.Pricing[c.Assistant.Model]; !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("No pricing entry for model '%s': cost estimates will be zero", c.Assistant.Model))
		}
	}

	if c.Usage.RetentionDays < 1 {
		result.Warnings = append(result.Warnings, "usage.retentionDays < 1, using default of 90")
	}

	if c.Heartbeat.Enabled && c.Heartbeat.IntervalMinutes < 1 {
		result.Warnings = append(result.Warnings, "Heartbeat interval < 1 minute, may flood chat platforms")
	}

	if c.Router.RateLimit > 100 {
		result.Warnings = append(result.Warnings, "Rate limit > 100 msg/min - consider lower limit for safety")
	}

	return result
}

func Save(cfg *Config) (string, error) {
	dir := configDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	path := configPath()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}

	return path, nil
}
