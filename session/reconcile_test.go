package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"
	"github.com/tailored-agentic-units/board-assistant/session"
)

func numbered(n int) []protocol.Message {
	msgs := make([]protocol.Message, n)
	for i := range msgs {
		msgs[i] = protocol.NewMessage(protocol.RoleAssistant, fmt.Sprintf("m%d", i))
	}
	return msgs
}

func TestDelta(t *testing.T) {
	tests := []struct {
		name     string
		baseline int
		preamble int
		produced int
		want     []string
	}{
		{name: "history with preamble", baseline: 5, preamble: 1, produced: 9, want: []string{"m7", "m8"}},
		{name: "history without preamble", baseline: 5, preamble: 0, produced: 9, want: []string{"m6", "m7", "m8"}},
		{name: "fresh session", baseline: 0, preamble: 1, produced: 4, want: []string{"m2", "m3"}},
		{name: "nothing new", baseline: 2, preamble: 1, produced: 4, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, err := session.Delta(tt.baseline, tt.preamble, numbered(tt.produced))
			if err != nil {
				t.Fatalf("Delta failed: %v", err)
			}
			if len(delta) != len(tt.want) {
				t.Fatalf("got %d messages, want %d", len(delta), len(tt.want))
			}
			for i, m := range delta {
				if m.Content != tt.want[i] {
					t.Errorf("delta[%d] = %q, want %q", i, m.Content, tt.want[i])
				}
			}
		})
	}
}

func TestDelta_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		baseline int
		preamble int
		produced int
	}{
		{name: "shorter than skip", baseline: 5, preamble: 1, produced: 6},
		{name: "negative baseline", baseline: -1, preamble: 0, produced: 3},
		{name: "preamble above one", baseline: 0, preamble: 2, produced: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.Delta(tt.baseline, tt.preamble, numbered(tt.produced))
			if !errors.Is(err, session.ErrInvalidDelta) {
				t.Errorf("got error %v, want %v", err, session.ErrInvalidDelta)
			}
		})
	}
}

func TestReconcile_PersistsOnlyDelta(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	sess, err := store.CreateSession(ctx, "board-1", "user-1")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	history := numbered(5)
	if _, err := store.AppendMessages(ctx, sess.ID, history...); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	user := protocol.NewMessage(protocol.RoleUser, "new question")
	if _, err := store.AppendMessages(ctx, sess.ID, user); err != nil {
		t.Fatalf("user append failed: %v", err)
	}

	produced := append([]protocol.Message{}, history...)
	produced = append(produced, protocol.NewMessage(protocol.RoleSystem, "preamble"), user)
	produced = append(produced,
		protocol.NewMessage(protocol.RoleAssistant, "answer part 1"),
		protocol.NewMessage(protocol.RoleAssistant, "answer part 2"),
	)

	stored, err := session.Reconcile(ctx, store, sess.ID, 5, 1, produced)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(stored))
	}

	msgs, err := store.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 8 {
		t.Fatalf("session has %d messages, want 8", len(msgs))
	}
	for _, m := range msgs {
		if m.Role == protocol.RoleSystem {
			t.Error("synthesized preamble must never be persisted")
		}
	}
	if msgs[7].Content != "answer part 2" {
		t.Errorf("last message = %q, want %q", msgs[7].Content, "answer part 2")
	}
}

func TestReconcile_EmptyDeltaWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	sess, _ := store.CreateSession(ctx, "board-1", "user-1")

	produced := []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, "preamble"),
		protocol.NewMessage(protocol.RoleUser, "hi"),
	}

	stored, err := session.Reconcile(ctx, store, sess.ID, 0, 1, produced)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("stored %d messages, want 0", len(stored))
	}
}
