package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/tailored-agentic-units/board-assistant/kernel"
)

// Encoder writes SSE frames to an io.Writer.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one framed event.
func (enc *Encoder) Encode(e kernel.Event) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(enc.w, "event: %s\ndata: %s\n\n", e.Type, data)
	return err
}

// Writer is a kernel.EventSink over an HTTP response. Every event is
// flushed before Send returns. Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	enc     *Encoder
	started bool
}

// NewWriter creates a Writer over w. Headers are written by Start or by the
// first Send.
func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, rc: http.NewResponseController(w), enc: NewEncoder(w)}
}

// Start writes the stream headers with buffering disabled and flushes them,
// committing the response to a 200 event stream.
func (sw *Writer) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.start()
}

func (sw *Writer) start() error {
	if sw.started {
		return nil
	}
	sw.started = true

	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)

	if err := sw.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush stream headers: %w", err)
	}
	return nil
}

// Send writes and flushes e. It does not consult ctx: the terminal events of
// a cancelled run are still attempted, and a gone client surfaces as a write
// error.
func (sw *Writer) Send(_ context.Context, e kernel.Event) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.start(); err != nil {
		return err
	}
	if err := sw.enc.Encode(e); err != nil {
		return fmt.Errorf("failed to write %s event: %w", e.Type, err)
	}
	if err := sw.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s event: %w", e.Type, err)
	}
	return nil
}

// Started reports whether the stream headers were sent.
func (sw *Writer) Started() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.started
}
