package session

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"
)

// Delta returns the messages of produced that are not yet durable.
//
// produced is the full list the loop ended with. Its first baseline+preamble
// entries are the persisted history and the synthesized preamble (0 or 1),
// followed by the user message, which was persisted before the loop started.
// Everything from index baseline+preamble+1 onward is new.
func Delta(baseline, preamble int, produced []protocol.Message) ([]protocol.Message, error) {
	if baseline < 0 || preamble < 0 || preamble > 1 {
		return nil, fmt.Errorf("%w: baseline=%d preamble=%d", ErrInvalidDelta, baseline, preamble)
	}

	skip := baseline + preamble + 1
	if len(produced) < skip {
		return nil, fmt.Errorf("%w: have %d, skip %d", ErrInvalidDelta, len(produced), skip)
	}

	return produced[skip:], nil
}

// Reconcile persists the delta of produced to sessionID and returns the
// stored messages. Nothing is written when the delta is empty.
func Reconcile(ctx context.Context, store Store, sessionID string, baseline, preamble int, produced []protocol.Message) ([]Message, error) {
	delta, err := Delta(baseline, preamble, produced)
	if err != nil {
		return nil, err
	}
	if len(delta) == 0 {
		return nil, nil
	}

	stored, err := store.AppendMessages(ctx, sessionID, delta...)
	if err != nil {
		return nil, fmt.Errorf("failed to persist %d messages: %w", len(delta), err)
	}
	return stored, nil
}
