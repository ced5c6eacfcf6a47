package session

import "fmt"

// Storage drivers accepted by Config.Driver.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config holds session store initialization parameters.
type Config struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"` // SQLite database file.
}

// DefaultConfig returns the default session configuration (in-memory).
func DefaultConfig() Config {
	return Config{Driver: DriverMemory}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Driver != "" {
		c.Driver = source.Driver
	}
	if source.Path != "" {
		c.Path = source.Path
	}
}

// New creates a Store from configuration.
func New(cfg *Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("session: sqlite driver requires a path")
		}
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}
