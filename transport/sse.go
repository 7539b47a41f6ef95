// Package transport implements the HTTP/SSE boundary: the §6 request shape,
// an SSE encoder that frames each streamevent.Event as a `data: ` line, and a
// thin handler that creates a session, drives the pipeline, and
// streams the result. This is the external interface boundary and is kept
// intentionally thin: all domain logic lives in the pipeline/session/
// researcher/synth packages.
package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/conversantai/retrieval-engine/streamevent"
)

// SSEEncoder writes streamevent.Event values as server-sent events: a single
// `data: <json>` line followed by a blank separator line, flushing after
// every write so subscribers see events as they are produced.
type SSEEncoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEEncoder constructs an encoder writing to w, setting the standard SSE
// response headers and flushing after Write. w must also implement
// http.Flusher; if it does not, flushing is skipped (e.g. in tests against a
// plain buffer).
func NewSSEEncoder(w http.ResponseWriter) *SSEEncoder {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	return &SSEEncoder{w: w, flusher: flusher}
}

// Write frames ev as a single SSE `data:` line and flushes it.
func (e *SSEEncoder) Write(ev streamevent.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("transport: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// KeepAlive writes an SSE comment line, used to hold the connection open
// during long gaps between events.
func (e *SSEEncoder) KeepAlive() error {
	if _, err := fmt.Fprint(e.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Done writes the terminal `[DONE]` marker that closes the stream.
func (e *SSEEncoder) Done() error {
	if _, err := fmt.Fprint(e.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// DecodeSSE reads framed SSE events from r, skipping keep-alive comment
// lines and blank separators, and stops at the `[DONE]` marker.
func DecodeSSE(r io.Reader) ([]streamevent.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var events []streamevent.Event
	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			continue
		case bytes.HasPrefix(line, []byte(":")):
			continue
		case bytes.HasPrefix(line, []byte("data: ")):
			payload := bytes.TrimPrefix(line, []byte("data: "))
			if bytes.Equal(payload, []byte("[DONE]")) {
				return events, scanner.Err()
			}
			var ev streamevent.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				return events, fmt.Errorf("transport: decode event: %w", err)
			}
			events = append(events, ev)
		}
	}
	return events, scanner.Err()
}
