package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of an eval run. Every field can also be set by
// the flag of the same name; flags win over the config file.
type Config struct {
	// Libraries are directories or zip archives of ELM JSON files, searched
	// in order.
	Libraries   []string `yaml:"libraries"`
	Context     string   `yaml:"context"`
	Data        string   `yaml:"data"`
	Caching     bool     `yaml:"caching"`
	Concurrency int      `yaml:"concurrency"`
	LogLevel    string   `yaml:"logLevel"`
}

func DefaultConfig() *Config {
	return &Config{
		Context:     "Patient",
		Caching:     true,
		Concurrency: 8,
		LogLevel:    "info",
	}
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if len(c.Libraries) == 0 {
		return fmt.Errorf("no library path configured")
	}
	if c.Context == "" {
		return fmt.Errorf("context must not be empty")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}
