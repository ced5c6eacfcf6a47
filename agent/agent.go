// Package agent abstracts the language model behind a streaming interface.
// A Model turns a message list plus tool definitions into a Stream of text
// increments and tool-call requests. Concrete providers live in
// subpackages and register themselves by name:
//
//	import _ "github.com/tailored-agentic-units/board-assistant/agent/openai"
//
//	m, err := agent.New(&agent.Config{Provider: "openai", Model: "gpt-4o-mini"})
package agent

import (
	"context"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"
)

// Request is one model call.
type Request struct {
	Messages []protocol.Message
	Tools    []protocol.Tool
}

// Chunk is one increment of a model response. A chunk carries text, tool
// calls, or both. Tool calls are delivered complete, never partially.
type Chunk struct {
	Text      string
	ToolCalls []protocol.ToolCall
}

// Stream yields the chunks of one model response. Next blocks until a chunk
// is available, the response ends, or the context that opened the stream is
// cancelled. After Next returns false, Err reports why.
type Stream interface {
	Next() bool
	Chunk() Chunk
	Err() error
	Close() error
}

// Model is a streaming, tool-capable language model.
type Model interface {
	ID() string
	Stream(ctx context.Context, req Request) (Stream, error)
}
