package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// MapStore is an in-memory Store. Safe for concurrent use.
type MapStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMapStore creates a MapStore seeded with docs.
func NewMapStore(docs ...Document) *MapStore {
	s := &MapStore{docs: make(map[string][]byte, len(docs))}
	for _, d := range docs {
		s.Put(d.Key, d.Body)
	}
	return s
}

// Put adds or replaces a document.
func (s *MapStore) Put(key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = slices.Clone(body)
}

func (s *MapStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MapStore) Load(_ context.Context, keys ...string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(keys))
	for _, k := range keys {
		body, ok := s.docs[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, k)
		}
		docs = append(docs, Document{Key: k, Body: slices.Clone(body)})
	}
	return docs, nil
}
