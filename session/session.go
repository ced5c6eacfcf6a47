// Package session is the durable per-board, per-user conversation log.
//
// Sessions own an append-only, strictly ordered list of messages. Every
// persisted message gets the next unused Order of its session; Orders are
// unique per session and never reassigned.
package session

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"
)

// Session is one conversation thread scoped to a board and its owner.
type Session struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	OwnerID   string    `json:"ownerId"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a persisted conversation turn.
type Message struct {
	protocol.Message
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Order     int64     `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary describes a session in a board listing.
type Summary struct {
	Session
	Current      bool `json:"current"`
	MessageCount int  `json:"messageCount"`
}

// Store persists sessions and their ordered message logs. Implementations
// must be safe for concurrent use and must serialize Order assignment per
// session.
type Store interface {
	// CreateSession creates an active session for boardID owned by ownerID.
	CreateSession(ctx context.Context, boardID, ownerID string) (*Session, error)
	// GetSession returns the session or ErrNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns the owner's sessions on a board, most recently
	// updated first, with the board's current-session marker set.
	ListSessions(ctx context.Context, boardID, ownerID string) ([]Summary, error)
	// CurrentSession returns the board's current session or ErrNotFound.
	CurrentSession(ctx context.Context, boardID string) (*Session, error)
	// SetCurrent points the board's current session at sessionID.
	SetCurrent(ctx context.Context, boardID, sessionID string) error
	// Messages returns the session's messages ordered by Order ascending.
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	// CountMessages returns the number of persisted messages in a session.
	CountMessages(ctx context.Context, sessionID string) (int, error)
	// AppendMessages persists msgs in order, assigning each the next unused
	// Order, and bumps the session's UpdatedAt. All or nothing.
	AppendMessages(ctx context.Context, sessionID string, msgs ...protocol.Message) ([]Message, error)
	// Close releases the store's resources.
	Close() error
}

// Authorize loads a session and checks that it belongs to userID on
// boardID. A session on another board is reported as ErrNotFound; one
// owned by another user as ErrAccessDenied.
func Authorize(ctx context.Context, store Store, sessionID, userID, boardID string) (*Session, error) {
	s, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if boardID != "" && s.BoardID != boardID {
		return nil, ErrNotFound
	}
	if s.OwnerID != userID {
		return nil, ErrAccessDenied
	}
	return s, nil
}

// Visible drops system messages, which are never shown to users.
func Visible(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == protocol.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Protocol strips persistence metadata, returning the model-facing messages.
func Protocol(msgs []Message) []protocol.Message {
	out := make([]protocol.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message.Clone()
	}
	return out
}
