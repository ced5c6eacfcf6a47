package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/tailored-agentic-units/board-assistant/kernel"
)

const maxEventSize = 4 << 20

// Reader parses SSE frames into events.
type Reader struct {
	scanner *bufio.Scanner
	current kernel.Event
	err     error
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &Reader{scanner: scanner}
}

// Next advances to the next event, skipping frames that name no event
// type. It returns false at the end of the stream or on a read or decode
// error; Err distinguishes the two.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}

	var eventType string
	var data bytes.Buffer
	pending := false

	dispatch := func() bool {
		payload := bytes.TrimSuffix(data.Bytes(), []byte("\n"))
		e, err := Unmarshal(eventType, payload)
		if err != nil {
			r.err = err
			return false
		}
		r.current = e
		return true
	}

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if !pending {
				continue
			}
			// A frame without an event line is a default "message"
			// event, which carries nothing the reducer applies.
			if eventType == "" {
				data.Reset()
				pending = false
				continue
			}
			return dispatch()
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			pending = true
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
			pending = true
		case strings.HasPrefix(line, ":"):
			// comment
		}
	}

	if err := r.scanner.Err(); err != nil {
		r.err = err
		return false
	}
	if pending && eventType != "" {
		return dispatch()
	}
	return false
}

// Event returns the event read by the last successful Next.
func (r *Reader) Event() kernel.Event { return r.current }

// Err returns the first read or decode error.
func (r *Reader) Err() error { return r.err }
