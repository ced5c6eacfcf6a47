package kernel

import (
	"time"

	"github.com/tailored-agentic-units/board-assistant/agent"
	"github.com/tailored-agentic-units/board-assistant/memory"
	"github.com/tailored-agentic-units/board-assistant/session"
)

const (
	defaultMaxToolCalls     = 10
	defaultModelIdleTimeout = 60 * time.Second
)

// Config holds initialization parameters for the kernel and the subsystems
// it creates. Each subsystem section delegates to that subsystem's
// config-driven constructor.
type Config struct {
	MaxToolCalls     int                     `json:"max_tool_calls,omitempty" yaml:"max_tool_calls,omitempty"`
	ModelIdleTimeout time.Duration           `json:"model_idle_timeout,omitempty" yaml:"model_idle_timeout,omitempty"`
	SystemPrompt     string                  `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	DefaultModel     string                  `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	Models           map[string]agent.Config `json:"models,omitempty" yaml:"models,omitempty"`
	Session          session.Config          `json:"session" yaml:"session"`
	Memory           memory.Config           `json:"memory" yaml:"memory"`
}

// DefaultConfig returns a Config with the default tool-call cap and idle
// timeout, an in-memory session store, guidance disabled, and a single
// "mock" echo model.
func DefaultConfig() Config {
	return Config{
		MaxToolCalls:     defaultMaxToolCalls,
		ModelIdleTimeout: defaultModelIdleTimeout,
		SystemPrompt:     defaultSystemPrompt,
		DefaultModel:     "mock",
		Models: map[string]agent.Config{
			"mock": {Provider: "mock"},
		},
		Session: session.DefaultConfig(),
		Memory:  memory.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c. A non-empty Models map
// replaces the current one.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)
	c.Memory.Merge(&source.Memory)

	if source.MaxToolCalls > 0 {
		c.MaxToolCalls = source.MaxToolCalls
	}
	if source.ModelIdleTimeout > 0 {
		c.ModelIdleTimeout = source.ModelIdleTimeout
	}
	if source.SystemPrompt != "" {
		c.SystemPrompt = source.SystemPrompt
	}
	if source.DefaultModel != "" {
		c.DefaultModel = source.DefaultModel
	}
	if len(source.Models) > 0 {
		c.Models = source.Models
	}
}

const defaultSystemPrompt = `You are the board assistant. You help the current user manage tasks on the current board.
Use the available tools to read or change the board instead of guessing its contents.
Keep answers short and say what you changed.`
