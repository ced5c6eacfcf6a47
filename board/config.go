package board

// Config seeds the in-memory boards.
type Config struct {
	Boards []Board `json:"boards" yaml:"boards"`
}

// DefaultConfig returns a single open demo board.
func DefaultConfig() Config {
	return Config{
		Boards: []Board{{
			ID:      "demo",
			Name:    "Demo board",
			Columns: []string{"todo", "doing", "done"},
		}},
	}
}

// Merge applies non-zero values from source.
func (c *Config) Merge(source *Config) {
	if len(source.Boards) > 0 {
		c.Boards = source.Boards
	}
}
