package kernel_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/board-assistant/agent/mock"
	"github.com/tailored-agentic-units/board-assistant/core/protocol"
	"github.com/tailored-agentic-units/board-assistant/kernel"
	"github.com/tailored-agentic-units/board-assistant/memory"
	"github.com/tailored-agentic-units/board-assistant/session"
)

func newSession(t *testing.T, store session.Store) *session.Session {
	t.Helper()
	sess, err := store.CreateSession(context.Background(), principal.BoardID, principal.UserID)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return sess
}

func TestAssemble_FreshSession(t *testing.T) {
	store := session.NewMemoryStore()
	guidance := memory.NewMapStore(
		memory.Document{Key: "global/tone.md", Body: []byte("Answer in one sentence.")},
		memory.Document{Key: memory.BoardPrefix("board-1") + "ctx.md", Body: []byte("This board tracks the launch.")},
		memory.Document{Key: memory.BoardPrefix("board-2") + "ctx.md", Body: []byte("Unrelated board.")},
	)
	k := newKernel(t, kernelOpts{store: store, guidance: guidance})
	sess := newSession(t, store)

	conv, err := k.Assemble(context.Background(), kernel.AssembleInput{
		SessionID: sess.ID,
		UserID:    principal.UserID,
		BoardID:   principal.BoardID,
		Utterance: "What is left to do?",
		Tools:     newToolbox(t).List(),
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if conv.Baseline != 0 || conv.Preamble != 1 {
		t.Errorf("baseline=%d preamble=%d, want 0 and 1", conv.Baseline, conv.Preamble)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(conv.Messages))
	}

	pre := conv.Messages[0]
	if pre.Role != protocol.RoleSystem {
		t.Fatalf("first message role = %s, want system", pre.Role)
	}
	for _, want := range []string{
		"You are a test assistant.",
		"Current user: alice",
		"Current board: board-1",
		"- echo: Echo the input back",
		"- move_task: Move a task",
		"Answer in one sentence.",
		"This board tracks the launch.",
	} {
		if !strings.Contains(pre.Content, want) {
			t.Errorf("preamble missing %q:\n%s", want, pre.Content)
		}
	}
	if strings.Contains(pre.Content, "Unrelated board.") {
		t.Error("preamble includes another board's guidance")
	}

	if u := conv.Utterance(); u.Role != protocol.RoleUser || u.Content != "What is left to do?" {
		t.Errorf("last message = %+v, want the utterance", u)
	}

	if n, _ := store.CountMessages(context.Background(), sess.ID); n != 0 {
		t.Errorf("Assemble wrote %d messages, want none", n)
	}
}

func TestAssemble_PreambleNeverInsertedTwice(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	k := newKernel(t, kernelOpts{store: store})
	sess := newSession(t, store)

	_, err := store.AppendMessages(ctx, sess.ID,
		protocol.NewMessage(protocol.RoleSystem, "stored system prompt"),
		protocol.NewMessage(protocol.RoleUser, "earlier"),
		protocol.NewMessage(protocol.RoleAssistant, "reply"),
	)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	conv, err := k.Assemble(ctx, kernel.AssembleInput{
		SessionID: sess.ID, UserID: principal.UserID, BoardID: principal.BoardID, Utterance: "next",
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if conv.Preamble != 0 || conv.Baseline != 3 {
		t.Errorf("baseline=%d preamble=%d, want 3 and 0", conv.Baseline, conv.Preamble)
	}
	var systems int
	for _, m := range conv.Messages {
		if m.Role == protocol.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Errorf("found %d system messages, want exactly 1", systems)
	}
	if conv.Messages[0].Content != "stored system prompt" {
		t.Errorf("history order changed: %+v", conv.Messages[0])
	}
}

func TestAssemble_HistoryInOrder(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	k := newKernel(t, kernelOpts{store: store})
	sess := newSession(t, store)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := store.AppendMessages(ctx, sess.ID, protocol.NewMessage(protocol.RoleUser, text)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	conv, err := k.Assemble(ctx, kernel.AssembleInput{
		SessionID: sess.ID, UserID: principal.UserID, BoardID: principal.BoardID, Utterance: "four",
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	var got []string
	for _, m := range conv.Messages[1:] {
		got = append(got, m.Content)
	}
	if strings.Join(got, ",") != "one,two,three,four" {
		t.Errorf("order = %v", got)
	}
}

func TestAssemble_InputErrors(t *testing.T) {
	store := session.NewMemoryStore()
	k := newKernel(t, kernelOpts{store: store})
	sess := newSession(t, store)

	tests := []struct {
		name string
		in   kernel.AssembleInput
		want error
	}{
		{
			name: "missing session",
			in:   kernel.AssembleInput{SessionID: "nope", UserID: "alice", BoardID: "board-1", Utterance: "hi"},
			want: session.ErrNotFound,
		},
		{
			name: "wrong board",
			in:   kernel.AssembleInput{SessionID: sess.ID, UserID: "alice", BoardID: "board-2", Utterance: "hi"},
			want: session.ErrNotFound,
		},
		{
			name: "other user",
			in:   kernel.AssembleInput{SessionID: sess.ID, UserID: "mallory", BoardID: "board-1", Utterance: "hi"},
			want: session.ErrAccessDenied,
		},
		{
			name: "blank utterance",
			in:   kernel.AssembleInput{SessionID: sess.ID, UserID: "alice", BoardID: "board-1", Utterance: "  "},
			want: kernel.ErrEmptyUtterance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := k.Assemble(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if kernel.Classify(err) != kernel.KindInput {
				t.Errorf("kind = %s, want input", kernel.Classify(err))
			}
		})
	}
}

// A full turn persisted through Reconcile leaves the store holding exactly
// history + utterance + new messages, and the next turn synthesizes the
// preamble again because it was never stored.
func TestAssembleRunReconcile(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	k := newKernel(t, kernelOpts{store: store})
	sess := newSession(t, store)
	tb := newToolbox(t)

	m := mock.New(
		mock.Calls(protocol.NewToolCall("c1", "echo", `{"input":"x"}`)),
		mock.Text("first answer"),
		mock.Text("second answer"),
	)

	turn := func(utterance string) *kernel.Conversation {
		conv, err := k.Assemble(ctx, kernel.AssembleInput{
			SessionID: sess.ID, UserID: principal.UserID, BoardID: principal.BoardID,
			Utterance: utterance, Tools: tb.List(),
		})
		if err != nil {
			t.Fatalf("Assemble failed: %v", err)
		}
		if _, err := store.AppendMessages(ctx, sess.ID, conv.Utterance()); err != nil {
			t.Fatalf("persist utterance failed: %v", err)
		}
		result, err := k.Run(ctx, kernel.RunInput{Model: m, Tools: tb, Messages: conv.Messages, Sink: kernel.Discard})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if _, err := session.Reconcile(ctx, store, sess.ID, conv.Baseline, conv.Preamble, result.Messages); err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		return conv
	}

	first := turn("use a tool")
	if first.Baseline != 0 || first.Preamble != 1 {
		t.Errorf("first turn baseline=%d preamble=%d", first.Baseline, first.Preamble)
	}
	if n, _ := store.CountMessages(ctx, sess.ID); n != 4 {
		t.Fatalf("after first turn store has %d messages, want 4", n)
	}

	second := turn("and again")
	if second.Baseline != 4 || second.Preamble != 1 {
		t.Errorf("second turn baseline=%d preamble=%d, want 4 and 1", second.Baseline, second.Preamble)
	}

	msgs, _ := store.Messages(ctx, sess.ID)
	want := []protocol.Role{
		protocol.RoleUser, protocol.RoleAssistant, protocol.RoleTool, protocol.RoleAssistant,
		protocol.RoleUser, protocol.RoleAssistant,
	}
	if len(msgs) != len(want) {
		t.Fatalf("store has %d messages, want %d", len(msgs), len(want))
	}
	for i, msg := range msgs {
		if msg.Role != want[i] {
			t.Errorf("message %d role = %s, want %s", i, msg.Role, want[i])
		}
	}
}
