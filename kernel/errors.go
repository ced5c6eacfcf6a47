package kernel

import "errors"

var (
	// ErrToolCallLimit ends a run whose model requested more tool
	// invocations than the configured cap.
	ErrToolCallLimit = errors.New("tool call limit reached")
	// ErrModelStalled is the cancellation cause of a model stream that
	// produced nothing for longer than the idle timeout.
	ErrModelStalled = errors.New("model stream stalled")
	// ErrSinkWrite wraps failures to deliver an event to the client.
	ErrSinkWrite = errors.New("event sink write failed")
	// ErrEmptyResponse ends a run whose model answered with neither text
	// nor tool calls.
	ErrEmptyResponse  = errors.New("model returned an empty response")
	ErrNoModel        = errors.New("no model for run")
	ErrEmptyUtterance = errors.New("utterance is empty")
)
