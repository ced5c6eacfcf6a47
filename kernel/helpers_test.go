package kernel_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tailored-agentic-units/board-assistant/agent"
	"github.com/tailored-agentic-units/board-assistant/core/protocol"
	"github.com/tailored-agentic-units/board-assistant/kernel"
	"github.com/tailored-agentic-units/board-assistant/memory"
	"github.com/tailored-agentic-units/board-assistant/observability"
	"github.com/tailored-agentic-units/board-assistant/session"
	"github.com/tailored-agentic-units/board-assistant/tools"
)

var principal = tools.Principal{UserID: "alice", BoardID: "board-1"}

type echoArgs struct {
	Input string `json:"input"`
}

type echoResult struct {
	Echo string `json:"echo"`
}

type moveArgs struct {
	TaskID string `json:"task_id"`
	Column string `json:"column"`
}

type moveResult struct {
	Moved bool `json:"moved"`
}

// toolbox is a principal-bound registry with an "echo" tool, a mutating
// "move_task" tool and a dispatch counter.
type toolbox struct {
	*tools.Registry
	dispatched atomic.Int32
	onDispatch func(ctx context.Context)
}

func newToolbox(t *testing.T) *toolbox {
	t.Helper()
	tb := &toolbox{Registry: tools.New(principal)}

	err := tools.Register(tb.Registry, tools.Definition{Name: "echo", Description: "Echo the input back"},
		func(ctx context.Context, _ tools.Principal, a echoArgs) (echoResult, error) {
			tb.dispatched.Add(1)
			if tb.onDispatch != nil {
				tb.onDispatch(ctx)
			}
			return echoResult{Echo: a.Input}, nil
		})
	if err != nil {
		t.Fatalf("Register echo failed: %v", err)
	}

	err = tools.Register(tb.Registry, tools.Definition{Name: "move_task", Description: "Move a task", Mutating: true},
		func(_ context.Context, _ tools.Principal, a moveArgs) (moveResult, error) {
			tb.dispatched.Add(1)
			return moveResult{Moved: true}, nil
		})
	if err != nil {
		t.Fatalf("Register move_task failed: %v", err)
	}

	return tb
}

// eventLog is an EventSink that records every event.
type eventLog struct {
	mu     sync.Mutex
	events []kernel.Event
	fail   func(kernel.Event) error
}

func (l *eventLog) Send(_ context.Context, e kernel.Event) error {
	if l.fail != nil {
		if err := l.fail(e); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) Events() []kernel.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]kernel.Event(nil), l.events...)
}

func (l *eventLog) States() []kernel.State {
	var states []kernel.State
	for _, e := range l.Events() {
		if e.Type == kernel.EventStateChange {
			states = append(states, e.State)
		}
	}
	return states
}

type kernelOpts struct {
	maxToolCalls int
	idleTimeout  time.Duration
	store        session.Store
	guidance     memory.Store
	observer     observability.Observer
}

func newKernel(t *testing.T, o kernelOpts) *kernel.Kernel {
	t.Helper()

	cfg := kernel.DefaultConfig()
	cfg.SystemPrompt = "You are a test assistant."
	if o.maxToolCalls > 0 {
		cfg.MaxToolCalls = o.maxToolCalls
	}
	if o.idleTimeout > 0 {
		cfg.ModelIdleTimeout = o.idleTimeout
	}

	opts := []kernel.Option{kernel.WithObserver(observability.NoOpObserver{})}
	if o.store != nil {
		opts = append(opts, kernel.WithStore(o.store))
	}
	if o.guidance != nil {
		opts = append(opts, kernel.WithGuidance(o.guidance))
	}
	if o.observer != nil {
		opts = append(opts, kernel.WithObserver(o.observer))
	}

	k, err := kernel.New(&cfg, opts...)
	if err != nil {
		t.Fatalf("kernel.New failed: %v", err)
	}
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func userTurn(text string) []protocol.Message {
	return []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, "preamble"),
		protocol.NewMessage(protocol.RoleUser, text),
	}
}

func run(t *testing.T, k *kernel.Kernel, m agent.Model, tb kernel.ToolExecutor, msgs []protocol.Message) (*kernel.Result, *eventLog, error) {
	t.Helper()
	log := &eventLog{}
	result, err := k.Run(context.Background(), kernel.RunInput{Model: m, Tools: tb, Messages: msgs, Sink: log})
	if result == nil {
		t.Fatal("Run returned nil result")
	}
	return result, log, err
}

// assertPaired fails when any assistant tool call lacks exactly one
// answering tool message, or a tool message answers no call.
func assertPaired(t *testing.T, msgs []protocol.Message) {
	t.Helper()

	requested := map[string]int{}
	answered := map[string]int{}
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			requested[tc.ID]++
		}
		if m.Role == protocol.RoleTool {
			answered[m.ToolCallID]++
		}
	}

	for id, n := range requested {
		if n != 1 || answered[id] != 1 {
			t.Errorf("call %s requested %d times, answered %d times", id, n, answered[id])
		}
	}
	for id := range answered {
		if requested[id] == 0 {
			t.Errorf("tool message answers unknown call %s", id)
		}
	}
}
