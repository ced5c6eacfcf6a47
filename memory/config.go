package memory

// Config holds guidance store parameters.
type Config struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // FileStore root; empty disables guidance.
}

// DefaultConfig returns the default configuration (guidance disabled).
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
}

// NewStore creates a Store from configuration. It returns a nil Store when
// Path is empty.
func NewStore(cfg *Config) Store {
	if cfg.Path == "" {
		return nil
	}
	return NewFileStore(cfg.Path)
}
