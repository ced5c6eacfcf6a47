package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tailored-agentic-units/board-assistant/tools"
)

type echoArgs struct {
	Input string `json:"input"`
	Count int    `json:"count,omitempty"`
}

type echoResult struct {
	Input  string `json:"input"`
	UserID string `json:"user_id"`
}

func echoHandler(_ context.Context, p tools.Principal, args echoArgs) (echoResult, error) {
	return echoResult{Input: args.Input, UserID: p.UserID}, nil
}

type positiveArgs struct {
	N int `json:"n"`
}

func (a positiveArgs) Validate() error {
	if a.N <= 0 {
		return errors.New("n must be positive")
	}
	return nil
}

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.New(tools.Principal{UserID: "user-1", BoardID: "board-1"})
	if err := tools.Register(reg, tools.Definition{Name: "echo", Description: "echo input"}, echoHandler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return reg
}

func decodeFailure(t *testing.T, content string) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		t.Fatalf("failure content is not JSON: %q", content)
	}
	return out
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		def     tools.Definition
		wantErr error
	}{
		{name: "valid tool", def: tools.Definition{Name: "valid"}},
		{name: "empty name", def: tools.Definition{Name: ""}, wantErr: tools.ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := tools.New(tools.Principal{UserID: "u"})
			err := tools.Register(reg, tt.def, echoHandler)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Register() unexpected error: %v", err)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg := newRegistry(t)

	err := tools.Register(reg, tools.Definition{Name: "echo"}, echoHandler)
	if !errors.Is(err, tools.ErrAlreadyExists) {
		t.Errorf("second Register() error = %v, want %v", err, tools.ErrAlreadyExists)
	}
}

func TestList_SchemaReflected(t *testing.T) {
	reg := newRegistry(t)

	list := reg.List()
	if len(list) != 1 {
		t.Fatalf("got %d tools, want 1", len(list))
	}

	tool := list[0]
	if tool.Name != "echo" || tool.Description != "echo input" {
		t.Errorf("got %+v", tool)
	}
	if tool.Parameters["type"] != "object" {
		t.Errorf("schema type = %v, want object", tool.Parameters["type"])
	}

	props, ok := tool.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", tool.Parameters)
	}
	if _, ok := props["input"]; !ok {
		t.Error("input property missing from schema")
	}
	if _, ok := props["count"]; !ok {
		t.Error("count property missing from schema")
	}

	required, _ := tool.Parameters["required"].([]any)
	if len(required) != 1 || required[0] != "input" {
		t.Errorf("required = %v, want [input]", required)
	}
}

func TestList_Sorted(t *testing.T) {
	reg := tools.New(tools.Principal{})
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := tools.Register(reg, tools.Definition{Name: name}, echoHandler); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}

	list := reg.List()
	got := []string{list[0].Name, list[1].Name, list[2].Name}
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatch_Success(t *testing.T) {
	reg := newRegistry(t)

	result := reg.Dispatch(context.Background(), "echo", json.RawMessage(`{"input":"hello"}`))
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content != `{"input":"hello","user_id":"user-1"}` {
		t.Errorf("got content %s", result.Content)
	}
	if result.Mutated {
		t.Error("non-mutating tool reported Mutated")
	}
}

func TestDispatch_PrincipalFixedAtRegistration(t *testing.T) {
	reg := tools.New(tools.Principal{UserID: "alice"})
	if err := tools.Register(reg, tools.Definition{Name: "echo"}, echoHandler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Arguments cannot smuggle in another identity.
	result := reg.Dispatch(context.Background(), "echo", json.RawMessage(`{"input":"x","user_id":"mallory"}`))
	if !result.IsError {
		t.Fatalf("unknown field should be rejected, got %s", result.Content)
	}

	result = reg.Dispatch(context.Background(), "echo", json.RawMessage(`{"input":"x"}`))
	if !strings.Contains(result.Content, `"user_id":"alice"`) {
		t.Errorf("handler did not receive bound principal: %s", result.Content)
	}
}

func TestDispatch_MalformedArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "invalid json", raw: `{invalid`, want: "invalid arguments"},
		{name: "not an object", raw: `[1,2]`, want: "must be a JSON object"},
		{name: "missing required", raw: `{"count":2}`, want: `missing required field "input"`},
		{name: "null required", raw: `{"input":null}`, want: `missing required field "input"`},
		{name: "wrong type", raw: `{"input":42}`, want: "invalid arguments"},
		{name: "unknown field", raw: `{"input":"a","extra":1}`, want: "unknown field"},
	}

	reg := newRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := reg.Dispatch(context.Background(), "echo", json.RawMessage(tt.raw))
			if !result.IsError {
				t.Fatalf("expected error result, got %s", result.Content)
			}
			failure := decodeFailure(t, result.Content)
			if !strings.Contains(failure["error"], tt.want) {
				t.Errorf("error = %q, want it to contain %q", failure["error"], tt.want)
			}
			if failure["tool"] != "echo" {
				t.Errorf("tool = %q, want echo", failure["tool"])
			}
		})
	}
}

func TestDispatch_EmptyArgumentsAsObject(t *testing.T) {
	reg := tools.New(tools.Principal{})
	err := tools.Register(reg, tools.Definition{Name: "noop"},
		func(context.Context, tools.Principal, struct{}) (string, error) { return "ok", nil })
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	for _, raw := range []string{"", "null", "{}"} {
		result := reg.Dispatch(context.Background(), "noop", json.RawMessage(raw))
		if result.IsError {
			t.Errorf("Dispatch(%q) returned error: %s", raw, result.Content)
		}
	}
}

func TestRegister_UnnamedArgumentTypes(t *testing.T) {
	reg := tools.New(tools.Principal{})

	err := tools.Register(reg, tools.Definition{Name: "inline"},
		func(_ context.Context, _ tools.Principal, a struct {
			Title string `json:"title"`
		}) (string, error) {
			return a.Title, nil
		})
	if err != nil {
		t.Fatalf("Register anonymous struct failed: %v", err)
	}

	err = tools.Register(reg, tools.Definition{Name: "loose"},
		func(_ context.Context, _ tools.Principal, a map[string]any) (int, error) { return len(a), nil })
	if err != nil {
		t.Fatalf("Register map failed: %v", err)
	}

	for _, tool := range reg.List() {
		if tool.Parameters["type"] != "object" {
			t.Errorf("%s schema type = %v, want object", tool.Name, tool.Parameters["type"])
		}
		if _, ok := tool.Parameters["properties"].(map[string]any); !ok {
			t.Errorf("%s properties missing: %v", tool.Name, tool.Parameters)
		}
	}

	if result := reg.Dispatch(context.Background(), "inline", json.RawMessage(`{"title":"ship"}`)); result.Content != `"ship"` {
		t.Errorf("inline content = %q, want %q", result.Content, `"ship"`)
	}
	if result := reg.Dispatch(context.Background(), "loose", json.RawMessage(`{"a":1,"b":2}`)); result.Content != "2" {
		t.Errorf("loose content = %q, want 2", result.Content)
	}
}

func TestRegister_NonObjectArguments(t *testing.T) {
	reg := tools.New(tools.Principal{})

	err := tools.Register(reg, tools.Definition{Name: "scalar"},
		func(_ context.Context, _ tools.Principal, s string) (string, error) { return s, nil })
	if !errors.Is(err, tools.ErrArgumentKind) {
		t.Errorf("err = %v, want ErrArgumentKind", err)
	}
	if len(reg.List()) != 0 {
		t.Error("rejected tool should not be registered")
	}
}

func TestDispatch_Validator(t *testing.T) {
	reg := tools.New(tools.Principal{})
	err := tools.Register(reg, tools.Definition{Name: "positive"},
		func(_ context.Context, _ tools.Principal, a positiveArgs) (int, error) { return a.N, nil })
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result := reg.Dispatch(context.Background(), "positive", json.RawMessage(`{"n":-1}`))
	if !result.IsError || !strings.Contains(result.Content, "n must be positive") {
		t.Errorf("got %+v, want validation failure", result)
	}

	result = reg.Dispatch(context.Background(), "positive", json.RawMessage(`{"n":3}`))
	if result.IsError || result.Content != "3" {
		t.Errorf("got %+v, want content 3", result)
	}
}

func TestDispatch_NotFound(t *testing.T) {
	reg := newRegistry(t)

	result := reg.Dispatch(context.Background(), "missing", nil)
	if !result.IsError {
		t.Fatal("expected error result for unknown tool")
	}
	if !strings.Contains(result.Content, tools.ErrNotFound.Error()) {
		t.Errorf("content %q does not mention %q", result.Content, tools.ErrNotFound)
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	reg := tools.New(tools.Principal{})
	err := tools.Register(reg, tools.Definition{Name: "fail", Mutating: true},
		func(context.Context, tools.Principal, struct{}) (string, error) {
			return "", errors.New("task is archived")
		})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result := reg.Dispatch(context.Background(), "fail", nil)
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if result.Mutated {
		t.Error("failed mutating tool should not report Mutated")
	}
	if failure := decodeFailure(t, result.Content); failure["error"] != "task is archived" {
		t.Errorf("error = %q", failure["error"])
	}
}

func TestDispatch_HandlerPanic(t *testing.T) {
	reg := tools.New(tools.Principal{})
	err := tools.Register(reg, tools.Definition{Name: "boom"},
		func(context.Context, tools.Principal, struct{}) (string, error) { panic("kaboom") })
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result := reg.Dispatch(context.Background(), "boom", nil)
	if !result.IsError || !strings.Contains(result.Content, "kaboom") {
		t.Errorf("got %+v, want recovered panic", result)
	}
}

func TestDispatch_Mutating(t *testing.T) {
	reg := tools.New(tools.Principal{})
	err := tools.Register(reg, tools.Definition{Name: "create", Mutating: true},
		func(context.Context, tools.Principal, struct{}) (map[string]string, error) {
			return map[string]string{"id": "t1"}, nil
		})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result := reg.Dispatch(context.Background(), "create", nil)
	if result.IsError || !result.Mutated {
		t.Errorf("got %+v, want successful mutation", result)
	}
}

func TestDispatch_Concurrent(t *testing.T) {
	reg := newRegistry(t)
	const n = 50

	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			if r := reg.Dispatch(context.Background(), "echo", json.RawMessage(`{"input":"x"}`)); r.IsError {
				t.Errorf("concurrent dispatch failed: %s", r.Content)
			}
		}()
	}
	wg.Wait()
}
