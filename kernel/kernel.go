// Package kernel implements the streaming, tool-calling agent loop of the
// board assistant and the assembler that prepares its input.
//
// The kernel initializes from configuration via New, creating the model
// registry, the session store and the guidance store. Functional options
// override any of them for tests.
//
//	k, err := kernel.New(&cfg)
//	conv, err := k.Assemble(ctx, kernel.AssembleInput{...})
//	result, err := k.Run(ctx, kernel.RunInput{Model: m, Tools: reg, Messages: conv.Messages, Sink: sink})
//
// Run has no durable side effects. Its Result carries the produced message
// list so the caller can reconcile the delta against the session store.
package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/board-assistant/agent"
	"github.com/tailored-agentic-units/board-assistant/core/protocol"
	"github.com/tailored-agentic-units/board-assistant/memory"
	"github.com/tailored-agentic-units/board-assistant/observability"
	"github.com/tailored-agentic-units/board-assistant/session"
	"github.com/tailored-agentic-units/board-assistant/tools"
)

// ToolExecutor lists and dispatches the tools offered to the model.
// *tools.Registry implements it.
type ToolExecutor interface {
	List() []protocol.Tool
	Dispatch(ctx context.Context, name string, args json.RawMessage) tools.Result
}

// RunInput is the input of one run.
type RunInput struct {
	Model    agent.Model
	Tools    ToolExecutor
	Messages []protocol.Message // assembled conversation, user utterance last
	Sink     EventSink
}

// ToolCallRecord logs one dispatched tool invocation.
type ToolCallRecord struct {
	protocol.ToolCall
	Iteration int
	Result    string
	IsError   bool
	Mutated   bool
}

// Result holds the outcome of a run.
type Result struct {
	Messages     []protocol.Message // assembled input followed by every finalized message
	NewMessages  []protocol.Message // finalized messages produced by this run
	ToolCalls    []ToolCallRecord
	Iterations   int // model calls made
	State        State
	BoardChanged bool // a mutating tool succeeded
}

// Option configures a Kernel after config-driven initialization.
type Option func(*Kernel)

// WithModels overrides the config-created model registry.
func WithModels(r *agent.Registry) Option {
	return func(k *Kernel) { k.models = r }
}

// WithStore overrides the config-created session store.
func WithStore(s session.Store) Option {
	return func(k *Kernel) { k.store = s }
}

// WithGuidance overrides the config-created guidance store.
func WithGuidance(s memory.Store) Option {
	return func(k *Kernel) { k.guidance = s }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.observer = o }
}

// Kernel runs agent loops. One Kernel serves many concurrent runs; runs
// share nothing but the session store.
type Kernel struct {
	models       *agent.Registry
	store        session.Store
	guidance     memory.Store
	observer     observability.Observer
	maxToolCalls int
	idleTimeout  time.Duration
	systemPrompt string
}

// New creates a Kernel from configuration.
func New(cfg *Config, opts ...Option) (*Kernel, error) {
	reg := agent.NewRegistry()
	for name, modelCfg := range cfg.Models {
		if err := reg.Register(name, modelCfg); err != nil {
			return nil, fmt.Errorf("failed to register model %q: %w", name, err)
		}
	}
	if cfg.DefaultModel != "" && len(cfg.Models) > 0 {
		if err := reg.SetDefault(cfg.DefaultModel); err != nil {
			return nil, fmt.Errorf("failed to set default model: %w", err)
		}
	}

	k := &Kernel{
		models:       reg,
		guidance:     memory.NewStore(&cfg.Memory),
		observer:     observability.NewSlogObserver(nil),
		maxToolCalls: cfg.MaxToolCalls,
		idleTimeout:  cfg.ModelIdleTimeout,
		systemPrompt: cfg.SystemPrompt,
	}

	for _, opt := range opts {
		opt(k)
	}

	if k.store == nil {
		store, err := session.New(&cfg.Session)
		if err != nil {
			return nil, fmt.Errorf("failed to create session store: %w", err)
		}
		k.store = store
	}

	return k, nil
}

// Models returns the kernel's model registry.
func (k *Kernel) Models() *agent.Registry { return k.models }

// Store returns the kernel's session store.
func (k *Kernel) Store() session.Store { return k.store }

// Observer returns the kernel's observer.
func (k *Kernel) Observer() observability.Observer { return k.observer }

// Close releases the session store.
func (k *Kernel) Close() error { return k.store.Close() }

// Run executes the agent loop over in.Messages. Events are sent to in.Sink
// as they occur. The returned Result is always non-nil; on failure its
// Messages hold every message finalized before the failure, and the error
// says why the run ended in StateFailed.
//
// Run observes ctx at every model chunk, model call, and tool dispatch.
// A model stream that stays silent longer than the idle timeout fails with
// ErrModelStalled. Individual tool invocations are capped; a request beyond
// the cap is never dispatched and fails the run with ErrToolCallLimit.
func (k *Kernel) Run(ctx context.Context, in RunInput) (*Result, error) {
	r := &run{
		kernel: k,
		in:     in,
		state:  StateIdle,
		result: &Result{
			Messages: protocol.CloneMessages(in.Messages),
			State:    StateIdle,
		},
	}
	if r.in.Sink == nil {
		r.in.Sink = Discard
	}

	if in.Model == nil {
		return r.fail(ctx, ErrNoModel)
	}

	k.observer.OnEvent(ctx, observability.NewEvent(EventRunStart, observability.LevelInfo, "kernel.Run", map[string]any{
		"model":          in.Model.ID(),
		"messages":       len(in.Messages),
		"tools":          len(r.tools()),
		"max_tool_calls": k.maxToolCalls,
	}))

	err := r.loop(ctx)
	r.result.NewMessages = r.result.Messages[len(in.Messages):]
	if err != nil {
		return r.fail(ctx, err)
	}

	k.observer.OnEvent(ctx, observability.NewEvent(EventRunComplete, observability.LevelInfo, "kernel.Run", map[string]any{
		"iterations":    r.result.Iterations,
		"tool_calls":    len(r.result.ToolCalls),
		"new_messages":  len(r.result.NewMessages),
		"board_changed": r.result.BoardChanged,
	}))
	return r.result, nil
}

// run is the state of one Run call.
type run struct {
	kernel    *Kernel
	in        RunInput
	state     State
	result    *Result
	toolCalls int
}

func (r *run) tools() []protocol.Tool {
	if r.in.Tools == nil {
		return nil
	}
	return r.in.Tools.List()
}

func (r *run) loop(ctx context.Context) error {
	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}

		if err := r.transition(ctx, StateLoading); err != nil {
			return err
		}

		r.result.Iterations = iteration
		text, calls, err := r.callModel(ctx, iteration)
		if err != nil {
			return err
		}

		if len(calls) == 0 {
			if text == "" {
				return ErrEmptyResponse
			}
			r.result.Messages = append(r.result.Messages, protocol.NewMessage(protocol.RoleAssistant, text))
			return r.transition(ctx, StateComplete)
		}

		if err := r.transition(ctx, StateRequestingTool); err != nil {
			return err
		}

		if err := r.dispatchAll(ctx, iteration, text, calls); err != nil {
			return err
		}
	}
}

// callModel streams one model response, emitting text deltas as they
// arrive, and returns the full text and the requested tool calls.
func (r *run) callModel(ctx context.Context, iteration int) (string, []protocol.ToolCall, error) {
	r.kernel.observer.OnEvent(ctx, observability.NewEvent(EventModelCall, observability.LevelVerbose, "kernel.Run", map[string]any{
		"iteration": iteration,
		"messages":  len(r.result.Messages),
	}))

	callCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var idle *time.Timer
	if r.kernel.idleTimeout > 0 {
		idle = time.AfterFunc(r.kernel.idleTimeout, func() { cancel(ErrModelStalled) })
		defer idle.Stop()
	}

	stream, err := r.in.Model.Stream(callCtx, agent.Request{
		Messages: r.result.Messages,
		Tools:    r.tools(),
	})
	if err != nil {
		if callCtx.Err() != nil {
			err = context.Cause(callCtx)
		}
		return "", nil, fmt.Errorf("model call failed: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	var calls []protocol.ToolCall

	// The idle timer only runs while waiting on the model; time spent
	// blocked on the sink is not a stall.
	for stream.Next() {
		if idle != nil {
			idle.Stop()
		}

		chunk := stream.Chunk()
		if chunk.Text != "" {
			if r.state != StateStreamingText {
				if err := r.transition(ctx, StateStreamingText); err != nil {
					return "", nil, err
				}
			}
			text.WriteString(chunk.Text)
			if err := r.emit(ctx, Event{Type: EventTextContent, TextDelta: chunk.Text}); err != nil {
				return "", nil, err
			}
		}
		calls = append(calls, chunk.ToolCalls...)

		if idle != nil {
			idle.Reset(r.kernel.idleTimeout)
		}
	}

	if callCtx.Err() != nil {
		return "", nil, fmt.Errorf("model stream failed: %w", context.Cause(callCtx))
	}
	if err := stream.Err(); err != nil {
		return "", nil, fmt.Errorf("model stream failed: %w", err)
	}

	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}

	return text.String(), calls, nil
}

// dispatchAll answers the tool calls of one model turn in order. The
// assistant message is trimmed to the calls that were answered, so the
// produced list never holds a request without its result.
func (r *run) dispatchAll(ctx context.Context, iteration int, text string, calls []protocol.ToolCall) error {
	budget := len(calls)
	if r.kernel.maxToolCalls > 0 {
		budget = max(0, min(budget, r.kernel.maxToolCalls-r.toolCalls))
	}

	assistant := len(r.result.Messages)
	r.result.Messages = append(r.result.Messages, protocol.Message{
		Role:      protocol.RoleAssistant,
		Content:   text,
		ToolCalls: append([]protocol.ToolCall(nil), calls[:budget]...),
	})

	settle := func() {
		answered := len(r.result.Messages) - assistant - 1
		msg := &r.result.Messages[assistant]
		msg.ToolCalls = msg.ToolCalls[:answered]
		if answered == 0 {
			msg.ToolCalls = nil
			if msg.Content == "" {
				r.result.Messages = r.result.Messages[:assistant]
			}
		}
	}

	for i, call := range calls[:budget] {
		if i > 0 {
			if err := r.transition(ctx, StateRequestingTool); err != nil {
				settle()
				return err
			}
		}
		if err := r.dispatch(ctx, iteration, call); err != nil {
			settle()
			return err
		}
	}

	if budget < len(calls) {
		settle()
		return fmt.Errorf("%w: %d of %d", ErrToolCallLimit, r.toolCalls, r.kernel.maxToolCalls)
	}
	return nil
}

// dispatch runs one call: ToolCall event, ToolExecuting, dispatch, tool
// message, ToolResult event. The tool message is appended only after the
// handler returned.
func (r *run) dispatch(ctx context.Context, iteration int, call protocol.ToolCall) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	tc := call
	if err := r.emit(ctx, Event{Type: EventToolCall, ToolCall: &tc}); err != nil {
		return err
	}
	if err := r.transition(ctx, StateToolExecuting); err != nil {
		return err
	}

	r.kernel.observer.OnEvent(ctx, observability.NewEvent(EventToolDispatch, observability.LevelVerbose, "kernel.Run", map[string]any{
		"iteration": iteration,
		"name":      call.Name,
		"call_id":   call.ID,
	}))

	var res tools.Result
	if r.in.Tools == nil {
		res = tools.Result{Content: fmt.Sprintf(`{"error":"no tools available","tool":%q}`, call.Name), IsError: true}
	} else {
		res = r.in.Tools.Dispatch(ctx, call.Name, json.RawMessage(call.Arguments))
	}
	r.toolCalls++

	r.result.Messages = append(r.result.Messages, protocol.NewToolMessage(call.ID, res.Content))
	r.result.ToolCalls = append(r.result.ToolCalls, ToolCallRecord{
		ToolCall:  call,
		Iteration: iteration,
		Result:    res.Content,
		IsError:   res.IsError,
		Mutated:   res.Mutated,
	})
	if res.Mutated {
		r.result.BoardChanged = true
	}

	r.kernel.observer.OnEvent(ctx, observability.NewEvent(EventToolComplete, observability.LevelVerbose, "kernel.Run", map[string]any{
		"iteration": iteration,
		"name":      call.Name,
		"error":     res.IsError,
		"mutated":   res.Mutated,
	}))

	return r.emit(ctx, Event{
		Type:       EventToolResult,
		ToolCall:   &tc,
		ToolResult: res.Content,
	})
}

func (r *run) transition(ctx context.Context, s State) error {
	r.state = s
	r.result.State = s
	return r.emit(ctx, StateEvent(s))
}

func (r *run) emit(ctx context.Context, e Event) error {
	if err := r.in.Sink.Send(ctx, e); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	return nil
}

// fail moves the run to StateFailed. The Failed state change is best
// effort: the sink may be the reason the run failed.
func (r *run) fail(ctx context.Context, err error) (*Result, error) {
	r.state = StateFailed
	r.result.State = StateFailed
	if r.result.NewMessages == nil {
		r.result.NewMessages = r.result.Messages[len(r.in.Messages):]
	}

	if !errors.Is(err, ErrSinkWrite) {
		_ = r.in.Sink.Send(context.WithoutCancel(ctx), StateEvent(StateFailed))
	}

	level := observability.LevelWarning
	if Classify(err) == KindModel {
		level = observability.LevelError
	}
	r.kernel.observer.OnEvent(ctx, observability.NewEvent(EventRunFailed, level, "kernel.Run", map[string]any{
		"error":      err.Error(),
		"kind":       string(Classify(err)),
		"iterations": r.result.Iterations,
		"tool_calls": len(r.result.ToolCalls),
	}))

	return r.result, err
}
