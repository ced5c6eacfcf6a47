// Package stream carries agent loop events to a client and rebuilds the
// transcript on the client side.
//
// The wire format is Server-Sent Events: each event is framed as
//
//	event: <type>
//	data: <json>
//
// followed by a blank line. Writer produces that framing over an
// http.ResponseWriter, flushing every event; Reader parses it; Reducer turns
// the parsed events back into a transcript.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"
	"github.com/tailored-agentic-units/board-assistant/kernel"
)

// ErrUnknownEvent is returned when decoding an event type the wire format
// does not define.
var ErrUnknownEvent = errors.New("unknown event type")

type stateChange struct {
	State kernel.State `json:"state"`
}

type textContent struct {
	TextDelta string `json:"textDelta"`
}

type toolCall struct {
	ToolCall protocol.ToolCall `json:"toolCall"`
}

type toolResult struct {
	ToolResult string `json:"toolResult"`
	ToolCall   string `json:"toolCall"`
	ToolName   string `json:"toolName"`
}

type errorPayload struct {
	Error string           `json:"error"`
	Kind  kernel.ErrorKind `json:"kind,omitempty"`
}

type done struct {
	SessionID string `json:"sessionId"`
}

// Marshal encodes the payload of e.
func Marshal(e kernel.Event) ([]byte, error) {
	var payload any

	switch e.Type {
	case kernel.EventStateChange:
		payload = stateChange{State: e.State}
	case kernel.EventTextContent:
		payload = textContent{TextDelta: e.TextDelta}
	case kernel.EventToolCall:
		if e.ToolCall == nil {
			return nil, fmt.Errorf("%s event without tool call", e.Type)
		}
		payload = toolCall{ToolCall: *e.ToolCall}
	case kernel.EventToolResult:
		if e.ToolCall == nil {
			return nil, fmt.Errorf("%s event without tool call", e.Type)
		}
		payload = toolResult{ToolResult: e.ToolResult, ToolCall: e.ToolCall.ID, ToolName: e.ToolCall.Name}
	case kernel.EventError:
		payload = errorPayload{Error: e.Error, Kind: e.Kind}
	case kernel.EventDone:
		payload = done{SessionID: e.SessionID}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}

	return json.Marshal(payload)
}

// Unmarshal decodes an event of type typ from its payload.
func Unmarshal(typ string, data []byte) (kernel.Event, error) {
	e := kernel.Event{Type: kernel.EventType(typ)}

	switch e.Type {
	case kernel.EventStateChange:
		var p stateChange
		if err := json.Unmarshal(data, &p); err != nil {
			return e, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		e.State = p.State
	case kernel.EventTextContent:
		var p textContent
		if err := json.Unmarshal(data, &p); err != nil {
			return e, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		e.TextDelta = p.TextDelta
	case kernel.EventToolCall:
		var p toolCall
		if err := json.Unmarshal(data, &p); err != nil {
			return e, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		e.ToolCall = &p.ToolCall
	case kernel.EventToolResult:
		var p toolResult
		if err := json.Unmarshal(data, &p); err != nil {
			return e, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		e.ToolResult = p.ToolResult
		e.ToolCall = &protocol.ToolCall{ID: p.ToolCall, Name: p.ToolName}
	case kernel.EventError:
		var p errorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return e, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		e.Error = p.Error
		e.Kind = p.Kind
	case kernel.EventDone:
		var p done
		if err := json.Unmarshal(data, &p); err != nil {
			return e, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		e.SessionID = p.SessionID
	default:
		return e, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
	}

	return e, nil
}
