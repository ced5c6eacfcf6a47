package kernel

import (
	"context"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"
	"github.com/tailored-agentic-units/board-assistant/memory"
	"github.com/tailored-agentic-units/board-assistant/observability"
	"github.com/tailored-agentic-units/board-assistant/session"
)

// AssembleInput identifies the turn being assembled.
type AssembleInput struct {
	SessionID string
	UserID    string
	BoardID   string
	Utterance string
	Tools     []protocol.Tool
}

// Conversation is the message list handed to Run together with the counts
// reconciliation needs to skip what is already durable.
type Conversation struct {
	Messages []protocol.Message
	Baseline int // persisted history messages in Messages
	Preamble int // 1 when a system preamble was synthesized, else 0
}

// Utterance returns the user message that ends the conversation.
func (c *Conversation) Utterance() protocol.Message {
	return c.Messages[len(c.Messages)-1]
}

// Assemble builds the conversation for one turn: the session history in
// Order, a synthesized system preamble placed first when the history holds
// no system message, and the user utterance last. It reads the store but
// never writes it. Access is checked before anything else, so a turn for a
// missing or foreign session fails before any model call.
func (k *Kernel) Assemble(ctx context.Context, in AssembleInput) (*Conversation, error) {
	if strings.TrimSpace(in.Utterance) == "" {
		return nil, ErrEmptyUtterance
	}

	if _, err := session.Authorize(ctx, k.store, in.SessionID, in.UserID, in.BoardID); err != nil {
		return nil, err
	}

	stored, err := k.store.Messages(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	history := session.Protocol(stored)

	conv := &Conversation{Baseline: len(history)}
	msgs := make([]protocol.Message, 0, len(history)+2)

	if !hasSystem(history) {
		guidance, err := memory.Guidance(ctx, k.guidance, in.BoardID)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, protocol.NewMessage(protocol.RoleSystem, k.preamble(in, guidance)))
		conv.Preamble = 1
	}

	msgs = append(msgs, history...)
	msgs = append(msgs, protocol.NewMessage(protocol.RoleUser, in.Utterance))
	conv.Messages = msgs

	k.observer.OnEvent(ctx, observability.NewEvent(EventAssemble, observability.LevelVerbose, "kernel.Assemble", map[string]any{
		"session_id": in.SessionID,
		"baseline":   conv.Baseline,
		"preamble":   conv.Preamble,
		"tools":      len(in.Tools),
	}))

	return conv, nil
}

func hasSystem(msgs []protocol.Message) bool {
	for _, m := range msgs {
		if m.Role == protocol.RoleSystem {
			return true
		}
	}
	return false
}

func (k *Kernel) preamble(in AssembleInput, guidance string) string {
	var b strings.Builder

	if k.systemPrompt != "" {
		b.WriteString(k.systemPrompt)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Current user: %s\nCurrent board: %s\n\n", in.UserID, in.BoardID)

	if len(in.Tools) == 0 {
		b.WriteString("No tools are available.")
	} else {
		b.WriteString("Available tools:")
		for _, t := range in.Tools {
			fmt.Fprintf(&b, "\n- %s: %s", t.Name, t.Description)
		}
	}

	if guidance != "" {
		b.WriteString("\n\n")
		b.WriteString(guidance)
	}

	return b.String()
}
