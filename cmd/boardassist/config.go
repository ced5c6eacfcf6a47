package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/board-assistant/board"
	"github.com/tailored-agentic-units/board-assistant/kernel"
	"github.com/tailored-agentic-units/board-assistant/notify"
	"github.com/tailored-agentic-units/board-assistant/server"
)

// Config is the full service configuration.
type Config struct {
	Kernel    kernel.Config `yaml:"kernel"`
	Server    server.Config `yaml:"server"`
	Notify    notify.Config `yaml:"notify"`
	Board     board.Config  `yaml:"board"`
	Observers []string      `yaml:"observers,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Kernel:    kernel.DefaultConfig(),
		Server:    server.DefaultConfig(),
		Notify:    notify.DefaultConfig(),
		Board:     board.DefaultConfig(),
		Observers: []string{"slog"},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Kernel.Merge(&source.Kernel)
	c.Server.Merge(&source.Server)
	c.Notify.Merge(&source.Notify)
	c.Board.Merge(&source.Board)
	if len(source.Observers) > 0 {
		c.Observers = source.Observers
	}
}

// LoadConfig reads a YAML (or JSON) config file and merges it over the
// defaults. An empty filename returns the defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
