package observability

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(nil),
	}
	mutex sync.RWMutex
)

// GetObserver returns a registered observer by name. "noop" and "slog" are
// pre-registered; "slog" writes to slog.Default.
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// RegisterObserver adds or replaces a named observer.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}

// Resolve builds one observer from a list of names, fanning out when more
// than one is named. An empty list resolves to the default slog observer.
func Resolve(names []string, logger *slog.Logger) (Observer, error) {
	if len(names) == 0 {
		return NewSlogObserver(logger), nil
	}

	resolved := make([]Observer, 0, len(names))
	for _, name := range names {
		if name == "slog" && logger != nil {
			resolved = append(resolved, NewSlogObserver(logger))
			continue
		}
		obs, err := GetObserver(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, obs)
	}

	if len(resolved) == 1 {
		return resolved[0], nil
	}
	return NewMultiObserver(resolved...), nil
}

// Names lists the registered observer names.
func Names() []string {
	mutex.RLock()
	defer mutex.RUnlock()

	names := make([]string, 0, len(observers))
	for name := range observers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
