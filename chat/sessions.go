package chat

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/board-assistant/observability"
	"github.com/tailored-agentic-units/board-assistant/session"
)

func (s *Service) startSession(ctx context.Context, boardID, userID string) (*session.Session, error) {
	store := s.kernel.Store()

	sess, err := store.CreateSession(ctx, boardID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.makeCurrent(ctx, boardID, sess.ID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) makeCurrent(ctx context.Context, boardID, sessionID string) error {
	if err := s.kernel.Store().SetCurrent(ctx, boardID, sessionID); err != nil {
		return fmt.Errorf("failed to set current session: %w", err)
	}
	observability.Logger(ctx, s.logger).Info("session started", "session_id", sessionID, "board_id", boardID)
	return nil
}

// CreateSession starts a session on a board and makes it current. Prior
// sessions are kept.
func (s *Service) CreateSession(ctx context.Context, boardID, userID string) (*session.Session, error) {
	if s.access != nil {
		if err := s.access.Access(ctx, boardID, userID); err != nil {
			return nil, err
		}
	}
	return s.startSession(ctx, boardID, userID)
}

// ListSessions returns the user's sessions on a board, most recent first.
func (s *Service) ListSessions(ctx context.Context, boardID, userID string) ([]session.Summary, error) {
	if s.access != nil {
		if err := s.access.Access(ctx, boardID, userID); err != nil {
			return nil, err
		}
	}
	return s.kernel.Store().ListSessions(ctx, boardID, userID)
}

// SetCurrent switches the board's current session to one of the user's
// sessions on that board.
func (s *Service) SetCurrent(ctx context.Context, boardID, userID, sessionID string) error {
	if _, err := session.Authorize(ctx, s.kernel.Store(), sessionID, userID, boardID); err != nil {
		return err
	}
	return s.kernel.Store().SetCurrent(ctx, boardID, sessionID)
}

// Messages returns the user-visible history of a session. System messages
// are never returned.
func (s *Service) Messages(ctx context.Context, userID, sessionID string) ([]session.Message, error) {
	if _, err := session.Authorize(ctx, s.kernel.Store(), sessionID, userID, ""); err != nil {
		return nil, err
	}
	msgs, err := s.kernel.Store().Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Visible(msgs), nil
}
