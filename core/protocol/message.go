// Package protocol defines the conversation types shared by the model
// adapters, the agent loop, the session store and the event stream.
package protocol

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a single capability invocation requested by the model.
// ID is the linkage token: the tool message answering this call carries
// the same value in Message.ToolCallID.
//
// Fields are flat (ID, Name, Arguments). UnmarshalJSON also accepts the
// nested provider format (function.name, function.arguments).
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewToolCall creates a ToolCall with the given linkage token, tool name
// and raw JSON arguments.
func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: arguments}
}

// UnmarshalJSON handles both the nested provider format
// ({id, function: {name, arguments}}) and the flat format.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var nested struct {
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}

	if nested.Function.Name != "" {
		tc.ID = nested.ID
		tc.Name = nested.Function.Name
		tc.Arguments = nested.Function.Arguments
		return nil
	}

	type plain ToolCall
	return json.Unmarshal(data, (*plain)(tc))
}

// Message is one turn of a conversation as exchanged with the model.
//
// Assistant messages that request capabilities carry ToolCalls; tool
// messages answering one carry its ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// NewMessage creates a Message with the given role and text content.
//
//	msg := protocol.NewMessage(protocol.RoleUser, "Move the login task to done")
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// NewToolMessage creates the tool message answering the call identified
// by toolCallID.
func NewToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// Clone returns a copy of m that shares no slices with the original.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return m
}

// CloneMessages copies a message slice, including nested tool calls.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
