package stream

import (
	"context"
	"strings"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"
	"github.com/tailored-agentic-units/board-assistant/kernel"
)

// Entry is one finalized line of the client transcript.
type Entry struct {
	Role       protocol.Role      `json:"role"`
	Content    string             `json:"content"`
	ToolCall   *protocol.ToolCall `json:"toolCall,omitempty"`   // assistant entry requesting a tool
	ToolCallID string             `json:"toolCallId,omitempty"` // tool entry answering that call
	ToolName   string             `json:"toolName,omitempty"`
}

// Reducer folds stream events into a transcript. Streamed text accumulates
// in a buffer that is finalized into an assistant entry when the stream
// leaves the text state. Reducer is not safe for concurrent use.
type Reducer struct {
	transcript []Entry
	buffer     strings.Builder
	state      kernel.State
	sessionID  string
	done       bool
	err        *kernel.Event
	onChange   func(kernel.Event)
}

// NewReducer creates an empty Reducer.
func NewReducer() *Reducer {
	return &Reducer{state: kernel.StateIdle}
}

// OnEvent registers fn to run after each applied event. Renderers use it
// to draw incrementally.
func (r *Reducer) OnEvent(fn func(kernel.Event)) {
	r.onChange = fn
}

// Send appends the user's utterance to the transcript before the request
// is sent.
func (r *Reducer) Send(utterance string) {
	r.transcript = append(r.transcript, Entry{Role: protocol.RoleUser, Content: utterance})
}

// Apply folds one event into the transcript. Events after an error are
// ignored.
func (r *Reducer) Apply(e kernel.Event) {
	if r.err != nil {
		return
	}

	switch e.Type {
	case kernel.EventStateChange:
		r.state = e.State
		if e.State != kernel.StateStreamingText {
			r.flush()
		}
	case kernel.EventTextContent:
		r.buffer.WriteString(e.TextDelta)
	case kernel.EventToolCall:
		r.flush()
		entry := Entry{Role: protocol.RoleAssistant}
		if e.ToolCall != nil {
			tc := *e.ToolCall
			entry.ToolCall = &tc
			entry.ToolName = tc.Name
		}
		r.transcript = append(r.transcript, entry)
	case kernel.EventToolResult:
		entry := Entry{Role: protocol.RoleTool, Content: e.ToolResult}
		if e.ToolCall != nil {
			entry.ToolCallID = e.ToolCall.ID
			entry.ToolName = e.ToolCall.Name
		}
		r.transcript = append(r.transcript, entry)
	case kernel.EventDone:
		r.flush()
		r.done = true
		r.sessionID = e.SessionID
	case kernel.EventError:
		r.flush()
		ev := e
		r.err = &ev
	default:
		return
	}

	if r.onChange != nil {
		r.onChange(e)
	}
}

// Consume applies events from rd until the stream ends, an error event
// arrives, or ctx is done. A stream that ends early is not an error for
// the transcript: the partial buffer stays visible. The returned error is
// ctx's error or the reader's.
func (r *Reducer) Consume(ctx context.Context, rd *Reader) error {
	for rd.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Apply(rd.Event())
		if r.done || r.err != nil {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return rd.Err()
}

func (r *Reducer) flush() {
	if r.buffer.Len() == 0 {
		return
	}
	r.transcript = append(r.transcript, Entry{Role: protocol.RoleAssistant, Content: r.buffer.String()})
	r.buffer.Reset()
}

// Transcript returns the finalized entries.
func (r *Reducer) Transcript() []Entry {
	return append([]Entry(nil), r.transcript...)
}

// Buffer returns the text streamed since the last finalized entry.
func (r *Reducer) Buffer() string { return r.buffer.String() }

// View returns the finalized entries followed by the in-progress buffer as
// a provisional assistant entry.
func (r *Reducer) View() []Entry {
	view := r.Transcript()
	if r.buffer.Len() > 0 {
		view = append(view, Entry{Role: protocol.RoleAssistant, Content: r.buffer.String()})
	}
	return view
}

// State returns the last streamed loop state.
func (r *Reducer) State() kernel.State { return r.state }

// Done reports whether the done event arrived.
func (r *Reducer) Done() bool { return r.done }

// SessionID returns the session id carried by the done event.
func (r *Reducer) SessionID() string { return r.sessionID }

// Err returns the error event that stopped the reducer, or nil.
func (r *Reducer) Err() *kernel.Event { return r.err }
