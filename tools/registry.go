// Package tools implements the capability registry the agent loop
// dispatches model tool calls through.
//
// A Registry is bound to one Principal when it is created. Every handler
// registered on it receives that principal, so a conversation can never
// invoke a tool on behalf of another identity.
//
//	reg := tools.New(tools.Principal{UserID: "u1", BoardID: "b1"})
//	err := tools.Register(reg, tools.Definition{Name: "list_tasks"}, listTasks)
//	result := reg.Dispatch(ctx, "list_tasks", json.RawMessage(`{}`))
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tailored-agentic-units/board-assistant/core/protocol"
)

// Principal is the identity a registry's tools act for.
type Principal struct {
	UserID  string
	BoardID string
}

// Definition describes a tool at registration time. Mutating marks tools
// that change board state; a successful call sets Result.Mutated.
type Definition struct {
	Name        string
	Description string
	Mutating    bool
}

// Handler is a typed tool implementation. Args has already been decoded
// and validated against the declared shape when the handler runs.
type Handler[A, R any] func(ctx context.Context, principal Principal, args A) (R, error)

// Validator is implemented by argument types that need checks beyond the
// JSON shape. It runs at the registry boundary before the handler.
type Validator interface {
	Validate() error
}

// Result is the tool execution output that becomes the content of the
// paired tool message. IsError results carry a structured failure the
// model can read and correct itself from.
type Result struct {
	Content string
	IsError bool
	Mutated bool
}

type failure struct {
	Error string `json:"error"`
	Tool  string `json:"tool"`
}

func failed(name string, err error) Result {
	data, _ := json.Marshal(failure{Error: err.Error(), Tool: name})
	return Result{Content: string(data), IsError: true}
}

type entry struct {
	tool     protocol.Tool
	mutating bool
	invoke   func(ctx context.Context, raw json.RawMessage) (any, error)
}

// Registry maps tool names to principal-bound capabilities.
// Safe for concurrent use.
type Registry struct {
	principal Principal
	entries   map[string]entry
	mu        sync.RWMutex
}

// New creates an empty registry bound to principal.
func New(principal Principal) *Registry {
	return &Registry{
		principal: principal,
		entries:   make(map[string]entry),
	}
}

// Principal returns the identity the registry is bound to.
func (r *Registry) Principal() Principal {
	return r.principal
}

// Register adds a typed tool to r. The argument schema sent to the model is
// reflected from A, which must be a struct or a string-keyed map. Returns
// ErrEmptyName, ErrArgumentKind or ErrAlreadyExists.
func Register[A, R any](r *Registry, def Definition, fn Handler[A, R]) error {
	if def.Name == "" {
		return ErrEmptyName
	}

	params, required, err := schemaFor[A]()
	if err != nil {
		return fmt.Errorf("tool %s: %w", def.Name, err)
	}

	principal := r.principal
	invoke := func(ctx context.Context, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[A](raw, required)
		if err != nil {
			return nil, err
		}
		return fn(ctx, principal, args)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, def.Name)
	}

	r.entries[def.Name] = entry{
		tool: protocol.Tool{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  params,
		},
		mutating: def.Mutating,
		invoke:   invoke,
	}
	return nil
}

// List returns the definitions of all registered tools sorted by name.
func (r *Registry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]protocol.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e.tool)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Has reports whether a tool named name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Dispatch runs the named tool with raw model-provided arguments. It never
// returns an error: unknown tools, malformed arguments, handler errors and
// handler panics all become IsError results.
func (r *Registry) Dispatch(ctx context.Context, name string, raw json.RawMessage) (result Result) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return failed(name, fmt.Errorf("%w: %s", ErrNotFound, name))
	}

	defer func() {
		if p := recover(); p != nil {
			result = failed(name, fmt.Errorf("tool %s panicked: %v", name, p))
		}
	}()

	out, err := e.invoke(ctx, raw)
	if err != nil {
		return failed(name, err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return failed(name, fmt.Errorf("failed to encode result: %w", err))
	}

	return Result{Content: string(data), Mutated: e.mutating}
}

func decodeArgs[A any](raw json.RawMessage, required []string) (A, error) {
	var args A

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return args, fmt.Errorf("%w: arguments must be a JSON object: %v", ErrInvalidArguments, err)
	}

	for _, name := range required {
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return args, fmt.Errorf("%w: missing required field %q", ErrInvalidArguments, name)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return args, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	if v, ok := any(&args).(Validator); ok {
		if err := v.Validate(); err != nil {
			return args, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
	}

	return args, nil
}
