package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	Budgets   BudgetsConfig   `toml:"budgets"`
	Retention RetentionConfig `toml:"retention"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	ArtifactsDir string `toml:"artifacts_dir"`
	WorkDir      string `toml:"work_dir"`
	DatabasePath string `toml:"database_path"`
}

// AnthropicConfig holds model API settings. The API key itself never lives in
// the config file; it comes from the ANTHROPIC_API_KEY environment variable
// (optionally via a .env file).
type AnthropicConfig struct {
	Model          string   `toml:"model"`
	FallbackModels []string `toml:"fallback_models"`
	MaxTokens      int      `toml:"max_tokens"`
	BaseURL        string   `toml:"base_url"`
}

// BudgetsConfig bounds a single run
type BudgetsConfig struct {
	MaxDurationSeconds int `toml:"max_duration_seconds"`
	MaxSteps           int `toml:"max_steps"`
	MaxRetries         int `toml:"max_retries"`
	ToolTimeoutSeconds int `toml:"tool_timeout_seconds"`
}

// RetentionConfig controls cleanup of old run artifacts in watch mode
type RetentionConfig struct {
	Cron     string `toml:"cron"`
	KeepDays int    `toml:"keep_days"`
}

// MaxDuration returns the wall-clock budget as a duration (0 = unbounded)
func (b BudgetsConfig) MaxDuration() time.Duration {
	return time.Duration(b.MaxDurationSeconds) * time.Second
}

// ToolTimeout returns the per-command timeout as a duration (0 = unbounded)
func (b BudgetsConfig) ToolTimeout() time.Duration {
	return time.Duration(b.ToolTimeoutSeconds) * time.Second
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			ArtifactsDir: filepath.Join(home, ".fixbench", "artifacts"),
			WorkDir:      filepath.Join(home, ".fixbench", "work"),
			DatabasePath: filepath.Join(home, ".fixbench", "runner.db"),
		},
		Anthropic: AnthropicConfig{
			Model: "claude-3-5-sonnet-20240620",
			FallbackModels: []string{
				"claude-3-haiku-20240307",
				"claude-3-opus-20240229",
			},
			MaxTokens: 4096,
		},
		Budgets: BudgetsConfig{
			MaxDurationSeconds: 1800,
			MaxSteps:           50,
			MaxRetries:         3,
			ToolTimeoutSeconds: 300,
		},
		Retention: RetentionConfig{
			Cron:     "0 3 * * *",
			KeepDays: 14,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.ArtifactsDir = ExpandPath(cfg.General.ArtifactsDir)
	cfg.General.WorkDir = ExpandPath(cfg.General.WorkDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "fixbench", "config.toml")
}
