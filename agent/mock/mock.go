// Package mock provides a scripted agent.Model for tests and local
// development. Each Stream call consumes the next Turn of the script.
package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/board-assistant/agent"
	"github.com/tailored-agentic-units/board-assistant/core/protocol"
)

// ErrScriptExhausted is returned by Stream once every scripted turn has been
// consumed and no fallback is set.
var ErrScriptExhausted = errors.New("mock script exhausted")

func init() {
	agent.RegisterProvider("mock", func(cfg *agent.Config) (agent.Model, error) {
		id := cfg.Model
		if id == "" {
			id = "mock-echo"
		}
		return New().WithID(id).WithFallback(Echo), nil
	})
}

// Turn scripts one model response.
type Turn struct {
	Chunks  []agent.Chunk
	Delay   time.Duration // wait before each chunk
	Err     error         // stream error after the chunks
	OpenErr error         // returned by Stream itself
	Hang    bool          // block after the chunks until the context ends
}

// Text scripts a response streamed as the given text increments.
func Text(parts ...string) Turn {
	chunks := make([]agent.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = agent.Chunk{Text: p}
	}
	return Turn{Chunks: chunks}
}

// Calls scripts a response requesting the given tool calls.
func Calls(calls ...protocol.ToolCall) Turn {
	return Turn{Chunks: []agent.Chunk{{ToolCalls: calls}}}
}

// TextThenCalls scripts a response with leading text and tool calls.
func TextThenCalls(text string, calls ...protocol.ToolCall) Turn {
	return Turn{Chunks: []agent.Chunk{{Text: text}, {ToolCalls: calls}}}
}

// Model is a scripted agent.Model. Safe for concurrent use.
type Model struct {
	id       string
	mu       sync.Mutex
	turns    []Turn
	next     int
	requests []agent.Request
	fallback func(agent.Request) Turn
}

// New creates a Model that plays turns in order.
func New(turns ...Turn) *Model {
	return &Model{id: "mock", turns: turns}
}

// WithID sets the model identifier.
func (m *Model) WithID(id string) *Model {
	m.id = id
	return m
}

// WithFallback sets the responder used once the script is exhausted.
func (m *Model) WithFallback(fn func(agent.Request) Turn) *Model {
	m.fallback = fn
	return m
}

func (m *Model) ID() string { return m.id }

func (m *Model) Stream(ctx context.Context, req agent.Request) (agent.Stream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, agent.Request{
		Messages: protocol.CloneMessages(req.Messages),
		Tools:    append([]protocol.Tool(nil), req.Tools...),
	})

	var turn Turn
	switch {
	case m.next < len(m.turns):
		turn = m.turns[m.next]
		m.next++
	case m.fallback != nil:
		turn = m.fallback(req)
	default:
		m.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	m.mu.Unlock()

	if turn.OpenErr != nil {
		return nil, turn.OpenErr
	}
	return &stream{ctx: ctx, turn: turn}, nil
}

// Requests returns every request received, in order.
func (m *Model) Requests() []agent.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]agent.Request(nil), m.requests...)
}

// Calls reports how many times Stream was called.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type stream struct {
	ctx     context.Context
	turn    Turn
	pos     int
	current agent.Chunk
	err     error
	done    bool
}

func (s *stream) Next() bool {
	if s.done {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		return s.fail(context.Cause(s.ctx))
	}

	if s.pos < len(s.turn.Chunks) {
		if s.turn.Delay > 0 {
			timer := time.NewTimer(s.turn.Delay)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return s.fail(context.Cause(s.ctx))
			case <-timer.C:
			}
		}
		s.current = s.turn.Chunks[s.pos]
		s.pos++
		return true
	}

	if s.turn.Hang {
		<-s.ctx.Done()
		return s.fail(context.Cause(s.ctx))
	}
	if s.turn.Err != nil {
		return s.fail(s.turn.Err)
	}

	s.done = true
	return false
}

func (s *stream) fail(err error) bool {
	s.err = err
	s.done = true
	return false
}

func (s *stream) Chunk() agent.Chunk { return s.current }
func (s *stream) Err() error         { return s.err }
func (s *stream) Close() error       { return nil }

// Echo is the fallback used by the "mock" provider. It echoes the last user
// message word by word. A user message of the form "/call <tool> <json>"
// requests that tool instead, and a trailing tool result is acknowledged.
func Echo(req agent.Request) Turn {
	if len(req.Messages) == 0 {
		return Text("Hello.")
	}

	last := req.Messages[len(req.Messages)-1]
	switch last.Role {
	case protocol.RoleTool:
		return Text("Tool returned: ", last.Content)
	case protocol.RoleUser:
		if rest, ok := strings.CutPrefix(last.Content, "/call "); ok {
			name, args, _ := strings.Cut(strings.TrimSpace(rest), " ")
			if args == "" {
				args = "{}"
			}
			return Calls(protocol.NewToolCall("", name, args))
		}
		words := strings.Fields(last.Content)
		parts := make([]string, 0, len(words)+1)
		parts = append(parts, "You said:")
		for _, w := range words {
			parts = append(parts, " "+w)
		}
		return Text(parts...)
	default:
		return Text(fmt.Sprintf("Nothing to answer after a %s message.", last.Role))
	}
}
