// Package chat runs one conversation turn end to end: it validates the
// request, assembles the conversation, streams the agent loop to the
// client, reconciles what the loop produced with the session store, and
// signals board changes.
//
// A turn has two phases so transports can report input errors before the
// stream opens:
//
//	turn, err := svc.Prepare(ctx, chat.Request{...}) // input errors here
//	outcome := turn.Stream(ctx, sink)                // events, then done or error
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tailored-agentic-units/board-assistant/agent"
	"github.com/tailored-agentic-units/board-assistant/kernel"
	"github.com/tailored-agentic-units/board-assistant/notify"
	"github.com/tailored-agentic-units/board-assistant/observability"
	"github.com/tailored-agentic-units/board-assistant/session"
	"github.com/tailored-agentic-units/board-assistant/tools"
)

// Toolset builds the tool registry bound to a principal.
type Toolset func(tools.Principal) (*tools.Registry, error)

// BoardAccess checks that a user may converse about a board.
type BoardAccess interface {
	Access(ctx context.Context, boardID, userID string) error
}

// Request is an inbound chat message. UserID comes from the authenticated
// request, never from the body.
type Request struct {
	UserID    string
	BoardID   string
	SessionID string // empty starts a new session
	Message   string
	Model     string // empty uses the default model
}

// Option configures a Service.
type Option func(*Service)

// WithToolset sets the tool registry factory. Without one turns run with
// an empty registry.
func WithToolset(t Toolset) Option {
	return func(s *Service) { s.toolset = t }
}

// WithAccess sets the board access check.
func WithAccess(a BoardAccess) Option {
	return func(s *Service) { s.access = a }
}

// WithNotifier sets the board-changed notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service runs chat turns on a kernel.
type Service struct {
	kernel   *kernel.Kernel
	toolset  Toolset
	access   BoardAccess
	notifier notify.Notifier
	logger   *slog.Logger
}

// New creates a Service over k.
func New(k *kernel.Kernel, opts ...Option) *Service {
	s := &Service{
		kernel:   k,
		notifier: notify.NoOp{},
		logger:   slog.Default(),
		toolset: func(p tools.Principal) (*tools.Registry, error) {
			return tools.New(p), nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kernel returns the service's kernel.
func (s *Service) Kernel() *kernel.Kernel { return s.kernel }

// Turn is a validated, assembled turn whose user message is already
// persisted.
type Turn struct {
	svc       *Service
	SessionID string
	Created   bool // the session was started by this turn
	model     agent.Model
	tools     *tools.Registry
	conv      *kernel.Conversation
	boardID   string
}

// Outcome reports how a streamed turn ended.
type Outcome struct {
	Result    *kernel.Result
	Persisted []session.Message
	Err       error // the run error, the persistence error, or both joined
}

// Prepare validates req and readies the turn. Every error it returns is
// reported before any event is streamed: ErrEmptyMessage, ErrUnknownModel,
// the BoardAccess error, session.ErrNotFound and session.ErrAccessDenied
// are input errors.
func (s *Service) Prepare(ctx context.Context, req Request) (*Turn, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if s.access != nil {
		if err := s.access.Access(ctx, req.BoardID, req.UserID); err != nil {
			return nil, err
		}
	}

	model, err := s.kernel.Models().Get(req.Model)
	if err != nil {
		if errors.Is(err, agent.ErrModelNotFound) || errors.Is(err, agent.ErrNoDefaultModel) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModel, req.Model)
		}
		return nil, fmt.Errorf("failed to resolve model: %w", err)
	}

	turn := &Turn{svc: s, SessionID: req.SessionID, model: model, boardID: req.BoardID}

	turn.tools, err = s.toolset(tools.Principal{UserID: req.UserID, BoardID: req.BoardID})
	if err != nil {
		return nil, fmt.Errorf("failed to build tools: %w", err)
	}

	// A started session becomes current only once the utterance is stored.
	if turn.SessionID == "" {
		sess, err := s.kernel.Store().CreateSession(ctx, req.BoardID, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		turn.SessionID = sess.ID
		turn.Created = true
	}

	turn.conv, err = s.kernel.Assemble(ctx, kernel.AssembleInput{
		SessionID: turn.SessionID,
		UserID:    req.UserID,
		BoardID:   req.BoardID,
		Utterance: req.Message,
		Tools:     turn.tools.List(),
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.kernel.Store().AppendMessages(ctx, turn.SessionID, turn.conv.Utterance()); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	if turn.Created {
		if err := s.makeCurrent(ctx, req.BoardID, turn.SessionID); err != nil {
			return nil, err
		}
	}

	return turn, nil
}

// Stream runs the agent loop, sending events to sink, then persists the
// finalized messages and ends the stream with done. A failed run ends with
// its error event; a failed save adds a persistence error event after it.
// Persistence and notification run even when ctx was cancelled.
func (t *Turn) Stream(ctx context.Context, sink kernel.EventSink) *Outcome {
	s := t.svc
	log := observability.Logger(ctx, s.logger).With("session_id", t.SessionID, "board_id", t.boardID)
	detached := context.WithoutCancel(ctx)

	result, runErr := s.kernel.Run(ctx, kernel.RunInput{
		Model:    t.model,
		Tools:    t.tools,
		Messages: t.conv.Messages,
		Sink:     sink,
	})
	out := &Outcome{Result: result, Err: runErr}

	stored, persistErr := session.Reconcile(detached, s.kernel.Store(), t.SessionID, t.conv.Baseline, t.conv.Preamble, result.Messages)
	out.Persisted = stored

	if result.BoardChanged {
		if err := s.notifier.BoardChanged(detached, t.boardID, t.SessionID); err != nil {
			log.Warn("board changed notification failed", "error", err)
		}
	}

	sinkLost := errors.Is(runErr, kernel.ErrSinkWrite)
	if runErr != nil {
		log.Warn("turn failed", "error", runErr, "kind", kernel.Classify(runErr), "persisted", len(stored))
		if !sinkLost {
			_ = sink.Send(detached, kernel.ErrorEvent(runErr))
		}
	}

	if persistErr != nil {
		log.Error("failed to reconcile turn", "error", persistErr, "new_messages", len(result.NewMessages))
		perr := fmt.Errorf("%w: %w", ErrPersistence, persistErr)
		out.Err = perr
		if runErr != nil {
			out.Err = errors.Join(runErr, perr)
		}
		if !sinkLost {
			_ = sink.Send(detached, kernel.Event{Type: kernel.EventError, Error: perr.Error(), Kind: kernel.KindPersistence})
		}
		return out
	}

	if runErr != nil {
		return out
	}

	log.Info("turn complete", "persisted", len(stored), "tool_calls", len(result.ToolCalls))
	if err := sink.Send(ctx, kernel.DoneEvent(t.SessionID)); err != nil {
		log.Warn("failed to send done", "error", err)
	}
	return out
}

// Chat prepares and streams a turn. Input errors are returned before any
// event is sent.
func (s *Service) Chat(ctx context.Context, req Request, sink kernel.EventSink) (*Outcome, error) {
	turn, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return turn.Stream(ctx, sink), nil
}
