// Package config loads the agent's runtime configuration and credentials.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/triad/internal/domain"
)

// Config holds the agent's runtime configuration.
type Config struct {
	RootDir               string  `json:"root_dir"`
	DBPath                string  `json:"db_path"`
	EnvFile               string  `json:"env_file"`
	Provider              string  `json:"provider"`
	Model                 string  `json:"model"`
	Temperature           float64 `json:"temperature"`
	MaxTokens             int     `json:"max_tokens"`
	MaxFixIterations      int     `json:"max_fix_iterations"`
	MaxTurns              int     `json:"max_turns"`
	StageTimeoutSeconds   int     `json:"stage_timeout_seconds"`
	CommandTimeoutSeconds int     `json:"command_timeout_seconds"`
	LintThreshold         float64 `json:"lint_threshold"`
	SharedMemory          bool    `json:"shared_memory"`
	UsageWarnTokens       int64   `json:"usage_warn_tokens"`
}

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a JSON config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RootDir == "" {
		c.RootDir = "."
	}
	if c.DBPath == "" {
		c.DBPath = "triad.db"
	}
	if c.EnvFile == "" {
		c.EnvFile = ".env"
	}
	if c.Provider == "" {
		c.Provider = "anthropic"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.MaxFixIterations == 0 {
		c.MaxFixIterations = 3
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = 50
	}
	if c.StageTimeoutSeconds == 0 {
		c.StageTimeoutSeconds = 300
	}
	if c.CommandTimeoutSeconds == 0 {
		c.CommandTimeoutSeconds = 30
	}
	if c.LintThreshold == 0 {
		c.LintThreshold = 8.0
	}
	if c.UsageWarnTokens == 0 {
		c.UsageWarnTokens = 200000
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.Temperature < 0 || c.Temperature > 2 {
		problems = append(problems, "temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		problems = append(problems, "max_tokens must not be negative")
	}
	if c.MaxFixIterations < 0 {
		problems = append(problems, "max_fix_iterations must not be negative")
	}
	if c.MaxTurns < 0 {
		problems = append(problems, "max_turns must not be negative")
	}
	if c.StageTimeoutSeconds < 0 {
		problems = append(problems, "stage_timeout_seconds must not be negative")
	}
	if c.CommandTimeoutSeconds < 0 {
		problems = append(problems, "command_timeout_seconds must not be negative")
	}
	if c.LintThreshold < 0 || c.LintThreshold > 10 {
		problems = append(problems, "lint_threshold must be between 0 and 10")
	}

	if len(problems) > 0 {
		return &domain.AgentError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// StageTimeout returns the per-stage deadline as a duration.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSeconds) * time.Second
}

// CommandTimeout returns the shell command deadline as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}
