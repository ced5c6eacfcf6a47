package kernel

import (
	"context"
	"errors"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"
	"github.com/tailored-agentic-units/board-assistant/session"
)

// EventType tags a stream event on the wire.
type EventType string

const (
	EventStateChange EventType = "StateChange"
	EventTextContent EventType = "TextContent"
	EventToolCall    EventType = "ToolCall"
	EventToolResult  EventType = "ToolResult"
	EventError       EventType = "error"
	EventDone        EventType = "done"
)

// ErrorKind classifies an error event so clients can tell a failed model
// call from a transcript that streamed but was not saved.
type ErrorKind string

const (
	KindModel       ErrorKind = "model"
	KindToolLimit   ErrorKind = "tool_limit"
	KindCancelled   ErrorKind = "cancelled"
	KindPersistence ErrorKind = "persistence"
	KindInput       ErrorKind = "input"
)

// Event is one transient unit of the client stream. Only the fields of its
// Type are set.
type Event struct {
	Type EventType

	State      State              // StateChange
	TextDelta  string             // TextContent
	ToolCall   *protocol.ToolCall // ToolCall, and the linkage of ToolResult
	ToolResult string             // ToolResult
	Error      string             // error
	Kind       ErrorKind          // error
	SessionID  string             // done
}

// EventSink receives events in production order. Send must deliver the
// event (write and flush) before returning.
type EventSink interface {
	Send(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Send(ctx context.Context, event Event) error { return f(ctx, event) }

// Discard drops every event.
var Discard EventSink = SinkFunc(func(context.Context, Event) error { return nil })

// StateEvent builds a StateChange event.
func StateEvent(s State) Event {
	return Event{Type: EventStateChange, State: s}
}

// DoneEvent builds the terminal done event.
func DoneEvent(sessionID string) Event {
	return Event{Type: EventDone, SessionID: sessionID}
}

// ErrorEvent builds an error event, classifying err.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Error: err.Error(), Kind: Classify(err)}
}

// Classify maps err onto the error kind reported to clients.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrToolCallLimit):
		return KindToolLimit
	case errors.Is(err, ErrModelStalled):
		return KindModel
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrAccessDenied),
		errors.Is(err, ErrEmptyUtterance):
		return KindInput
	default:
		return KindModel
	}
}
