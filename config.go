package neemo

// Configuration for the neemo CLI: a YAML file with sensible defaults and
// NEEMO_* environment-variable overrides.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level CLI configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	CLI      CLIConfig      `yaml:"cli"`
}

// DatabaseConfig selects the database directory.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CLIConfig holds interactive-session settings.
type CLIConfig struct {
	Prompt      string `yaml:"prompt"`
	HistoryFile string `yaml:"historyFile"`
}

// LoadConfig reads a YAML config file (if provided) and applies
// environment-variable overrides on top of defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "neemo_db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		CLI: CLIConfig{
			Prompt:      "neemo> ",
			HistoryFile: "",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEEMO_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NEEMO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NEEMO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("NEEMO_HISTORY"); v != "" {
		cfg.CLI.HistoryFile = v
	}
}
