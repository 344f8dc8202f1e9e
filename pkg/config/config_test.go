package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.ReapGrace)
	assert.Equal(t, 2*time.Second, cfg.KillGrace)
	assert.Equal(t, 1<<20, cfg.ScrollbackBytes)
	assert.Equal(t, 30*time.Minute, cfg.CompetitionDeadline)
	assert.True(t, cfg.RequireCommit)
	assert.Equal(t, "table", cfg.OutputFormat)
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: logrus.WarnLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: logrus.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_CustomValues(t *testing.T) {
	cfg := &Config{
		LogLevel:            logrus.DebugLevel,
		PollInterval:        10 * time.Millisecond,
		ReapGrace:           time.Second,
		ScrollbackBytes:     4096,
		CompetitionDeadline: 5 * time.Minute,
		OutputFormat:        "json",
	}

	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.ReapGrace)
	assert.Equal(t, 4096, cfg.ScrollbackBytes)
	assert.Equal(t, 5*time.Minute, cfg.CompetitionDeadline)
	assert.Equal(t, "json", cfg.OutputFormat)

	logger := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name         string
		outputFormat string
		valid        bool
	}{
		{
			name:         "table format is valid",
			outputFormat: "table",
			valid:        true,
		},
		{
			name:         "json format is valid",
			outputFormat: "json",
			valid:        true,
		},
		{
			name:         "csv format is valid",
			outputFormat: "csv",
			valid:        true,
		},
		{
			name:         "unknown format",
			outputFormat: "xml",
			valid:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				OutputFormat: tt.outputFormat,
			}

			// Test that we can identify valid formats
			validFormats := []string{"table", "json", "csv"}
			isValid := false
			for _, format := range validFormats {
				if cfg.OutputFormat == format {
					isValid = true
					break
				}
			}

			assert.Equal(t, tt.valid, isValid)
		})
	}
}

func TestConfig_ZeroValues(t *testing.T) {
	cfg := &Config{}

	// Test that zero values don't cause panics
	logger := cfg.NewLogger()
	assert.NotNil(t, logger)

	// Zero log level should default to PanicLevel (0)
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())

	// Zero durations
	assert.Equal(t, time.Duration(0), cfg.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.ReapGrace)

	// Empty output format
	assert.Equal(t, "", cfg.OutputFormat)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverlaysFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rembrandt.yaml")
	require.NoError(t, writeFile(path, `
log_level: debug
output_format: json
poll_interval: 25ms
require_commit: false
`))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 25*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.RequireCommit)
	// Unset fields keep their DefaultConfig values.
	assert.Equal(t, 3*time.Second, cfg.ReapGrace)
}

func TestLoad_OverlaysPipelineCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rembrandt.yaml")
	require.NoError(t, writeFile(path, `
type_check_command: ["go", "build", "./..."]
test_command: ["go", "test", "./..."]
constraint_command: ["true"]
`))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"go", "build", "./..."}, cfg.TypeCheckCommand)
	assert.Equal(t, []string{"go", "test", "./..."}, cfg.TestCommand)
	assert.Equal(t, []string{"true"}, cfg.ConstraintCommand)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rembrandt.yaml")
	require.NoError(t, writeFile(path, "log_level: not-a-level\n"))

	_, err := Load(path)
	require.Error(t, err)
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}

func BenchmarkConfig_NewLogger(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.NewLogger()
	}
}
