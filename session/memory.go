package session

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/board-assistant/core/protocol"
)

type memoryStore struct {
	sessions map[string]*Session
	messages map[string][]Message
	current  map[string]string
	mu       sync.RWMutex
	now      func() time.Time
}

// NewMemoryStore creates a Store backed by in-process maps. Contents are
// lost when the process exits.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
		current:  make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *memoryStore) CreateSession(_ context.Context, boardID, ownerID string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        newID(),
		BoardID:   boardID,
		OwnerID:   ownerID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess

	out := *sess
	return &out, nil
}

func (s *memoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *sess
	return &out, nil
}

func (s *memoryStore) ListSessions(_ context.Context, boardID, ownerID string) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.current[boardID]
	var out []Summary
	for _, sess := range s.sessions {
		if sess.BoardID != boardID || sess.OwnerID != ownerID {
			continue
		}
		out = append(out, Summary{
			Session:      *sess,
			Current:      sess.ID == current,
			MessageCount: len(s.messages[sess.ID]),
		})
	}

	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *memoryStore) CurrentSession(ctx context.Context, boardID string) (*Session, error) {
	s.mu.RLock()
	id, ok := s.current[boardID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no current session for board %s", ErrNotFound, boardID)
	}
	return s.GetSession(ctx, id)
}

func (s *memoryStore) SetCurrent(_ context.Context, boardID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.BoardID != boardID {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	s.current[boardID] = sessionID
	return nil
}

func (s *memoryStore) Messages(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	stored := s.messages[sessionID]
	out := make([]Message, len(stored))
	for i, m := range stored {
		m.Message = m.Message.Clone()
		out[i] = m
	}
	return out, nil
}

func (s *memoryStore) CountMessages(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return len(s.messages[sessionID]), nil
}

func (s *memoryStore) AppendMessages(_ context.Context, sessionID string, msgs ...protocol.Message) ([]Message, error) {
	for _, m := range msgs {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	log := s.messages[sessionID]
	var next int64 = 1
	if n := len(log); n > 0 {
		next = log[n-1].Order + 1
	}

	now := s.now()
	stored := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		stored = append(stored, Message{
			Message:   m.Clone(),
			ID:        newID(),
			SessionID: sessionID,
			Order:     next,
			CreatedAt: now,
		})
		next++
	}

	s.messages[sessionID] = append(log, stored...)
	sess.UpdatedAt = now

	out := make([]Message, len(stored))
	for i, m := range stored {
		m.Message = m.Message.Clone()
		out[i] = m
	}
	return out, nil
}

func (s *memoryStore) Close() error {
	return nil
}
