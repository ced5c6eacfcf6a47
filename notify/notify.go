// Package notify tells the outside world that a conversation changed a
// board, so other clients can refresh.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier publishes board-changed signals.
type Notifier interface {
	BoardChanged(ctx context.Context, boardID, sessionID string) error
}

// NoOp discards every signal.
type NoOp struct{}

func (NoOp) BoardChanged(context.Context, string, string) error { return nil }

// Slog logs every signal.
type Slog struct {
	logger *slog.Logger
}

// NewSlog creates a Slog notifier. A nil logger uses slog.Default.
func NewSlog(logger *slog.Logger) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{logger: logger}
}

func (n *Slog) BoardChanged(ctx context.Context, boardID, sessionID string) error {
	n.logger.InfoContext(ctx, "board changed", "board_id", boardID, "session_id", sessionID)
	return nil
}

// Multi fans a signal out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) BoardChanged(ctx context.Context, boardID, sessionID string) error {
	var errs []error
	for _, n := range m {
		if err := n.BoardChanged(ctx, boardID, sessionID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
