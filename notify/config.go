package notify

import (
	"log/slog"
	"time"
)

// Config selects the notifiers. The slog notifier is always present; the
// webhook is added when WebhookURL is set.
type Config struct {
	WebhookURL string        `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultConfig returns a log-only configuration.
func DefaultConfig() Config {
	return Config{Timeout: 5 * time.Second}
}

// Merge applies non-zero values from source.
func (c *Config) Merge(source *Config) {
	if source.WebhookURL != "" {
		c.WebhookURL = source.WebhookURL
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
}

// New creates the notifier for cfg.
func New(cfg *Config, logger *slog.Logger) Notifier {
	n := Multi{NewSlog(logger)}
	if cfg.WebhookURL != "" {
		n = append(n, NewWebhook(cfg.WebhookURL, cfg.Timeout, nil))
	}
	return n
}
