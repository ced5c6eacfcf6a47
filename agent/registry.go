package agent

import (
	"fmt"
	"sort"
	"sync"
)

// ModelInfo describes a registered model.
type ModelInfo struct {
	Name     string
	Provider string
	Model    string
	Default  bool
}

// Registry maps model identifiers, as named by chat requests, to model
// configurations. Models are instantiated on first Get and cached. Safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	configs  map[string]Config
	models   map[string]Model
	fallback string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		configs: make(map[string]Config),
		models:  make(map[string]Model),
	}
}

// Register adds a named configuration. The model is not instantiated until
// Get is called. The first registered name becomes the default.
func (r *Registry) Register(name string, cfg Config) error {
	if name == "" {
		return ErrEmptyModelName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; exists {
		return fmt.Errorf("%w: %s", ErrModelExists, name)
	}

	r.configs[name] = cfg
	if r.fallback == "" {
		r.fallback = name
	}
	return nil
}

// Put registers an already constructed model under name, replacing any
// previous registration.
func (r *Registry) Put(name string, m Model) error {
	if name == "" {
		return ErrEmptyModelName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[name] = Config{Provider: "static", Model: m.ID()}
	r.models[name] = m
	if r.fallback == "" {
		r.fallback = name
	}
	return nil
}

// SetDefault selects the model used when a request names none.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	r.fallback = name
	return nil
}

// Get retrieves a named model, instantiating it on first access. An empty
// name resolves to the default model.
func (r *Registry) Get(name string) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		if r.fallback == "" {
			return nil, ErrNoDefaultModel
		}
		name = r.fallback
	}

	cfg, registered := r.configs[name]
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	if m, exists := r.models[name]; exists {
		return m, nil
	}

	m, err := New(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model %q: %w", name, err)
	}

	r.models[name] = m
	return m, nil
}

// Replace updates the configuration of an existing model and drops any
// cached instance.
func (r *Registry) Replace(name string, cfg Config) error {
	if name == "" {
		return ErrEmptyModelName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	r.configs[name] = cfg
	delete(r.models, name)
	return nil
}

// Unregister removes a named model. Removing the default clears it.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	delete(r.configs, name)
	delete(r.models, name)
	if r.fallback == name {
		r.fallback = ""
	}
	return nil
}

// List returns the registered models sorted by name.
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ModelInfo, 0, len(r.configs))
	for name, cfg := range r.configs {
		infos = append(infos, ModelInfo{
			Name:     name,
			Provider: cfg.Provider,
			Model:    cfg.Model,
			Default:  name == r.fallback,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return infos
}
