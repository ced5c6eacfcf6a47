package agent

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// Config describes one model endpoint.
type Config struct {
	Provider    string   `json:"provider" yaml:"provider"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL     string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKeyEnv   string   `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// APIKey resolves the key from the environment variable named by APIKeyEnv.
func (c *Config) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.APIKeyEnv != "" {
		c.APIKeyEnv = source.APIKeyEnv
	}
	if source.Temperature != nil {
		t := *source.Temperature
		c.Temperature = &t
	}
	if source.MaxTokens > 0 {
		c.MaxTokens = source.MaxTokens
	}
}

// Factory creates a Model from configuration.
type Factory func(cfg *Config) (Model, error)

var (
	providers   = map[string]Factory{}
	providersMu sync.RWMutex
)

// RegisterProvider makes a provider available to New. Providers call it from
// init.
func RegisterProvider(name string, factory Factory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// Providers lists the registered provider names.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a Model through the factory registered for cfg.Provider.
func New(cfg *Config) (Model, error) {
	if cfg.Provider == "" {
		return nil, ErrProviderRequired
	}

	providersMu.RLock()
	factory, ok := providers[cfg.Provider]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	return factory(cfg)
}
