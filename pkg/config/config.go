// Package config holds orchestrator-wide configuration: workspace layout,
// polling cadence, reaping policy, and competition defaults. It is loaded
// from a YAML file at <workspace_root>/rembrandt.yaml when present, falling
// back to DefaultConfig for anything the file omits.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     logrus.Level `json:"log_level" yaml:"-"`
	LogLevelName string       `json:"-" yaml:"log_level"`
	OutputFormat string       `json:"output_format" yaml:"output_format"`

	// PollInterval bounds how often the session manager polls child
	// processes for exit/output (§4.3).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	// ReapGrace is how long a terminal session's entry is kept before the
	// manager removes it from the registry (§4.3).
	ReapGrace time.Duration `json:"reap_grace" yaml:"reap_grace"`
	// KillGrace is how long `kill` waits after SIGTERM before escalating to
	// SIGKILL (§5).
	KillGrace time.Duration `json:"kill_grace" yaml:"kill_grace"`
	// ScrollbackBytes is the per-session ring buffer capacity (§3).
	ScrollbackBytes int `json:"scrollback_bytes" yaml:"scrollback_bytes"`

	// CompetitionDeadline is the default per-competition timeout (§4.5.2).
	CompetitionDeadline time.Duration `json:"competition_deadline" yaml:"competition_deadline"`
	// RequireCommit resolves the completion Open Question in §9: a
	// competitor only counts as complete once it has exited zero AND
	// produced at least one commit on its branch.
	RequireCommit bool `json:"require_commit" yaml:"require_commit"`

	// ConstraintCommand runs Stage 1c's repo-wide constraint check (§4.5.1).
	// Empty means no constraint is configured and the stage always passes.
	ConstraintCommand []string `json:"constraint_command" yaml:"constraint_command"`
	// TypeCheckCommand runs Stage 3's type check (§4.5.1), e.g. ["go",
	// "build", "./..."]. Empty means the stage always passes.
	TypeCheckCommand []string `json:"type_check_command" yaml:"type_check_command"`
	// TestCommand runs Stage 4's test suite (§4.5.1), e.g. ["go", "test",
	// "./..."]. Empty means the stage always passes.
	TestCommand []string `json:"test_command" yaml:"test_command"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:            logrus.InfoLevel,
		LogLevelName:        "info",
		OutputFormat:        "table", // table, json, csv
		PollInterval:        50 * time.Millisecond,
		ReapGrace:           3 * time.Second,
		KillGrace:           2 * time.Second,
		ScrollbackBytes:     1 << 20,
		CompetitionDeadline: 30 * time.Minute,
		RequireCommit:       true,
	}
}

// Load reads a YAML config file at path, starting from DefaultConfig and
// overlaying whatever the file sets. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.LogLevelName != "" {
		level, err := logrus.ParseLevel(cfg.LogLevelName)
		if err != nil {
			return nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevelName, err)
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
