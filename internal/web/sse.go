package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kamilpajak/edufocus/internal/focus"
)

// SSEEmitter streams analysis progress as Server-Sent Events. Each event is
// named after its ProgressEvent type and carries the request ID as its id, so
// a page can listen for "done" or "error" directly.
type SSEEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

// NewSSEEmitter returns nil when w cannot be flushed.
func NewSSEEmitter(w http.ResponseWriter) *SSEEmitter {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &SSEEmitter{w: w, flusher: f}
}

// Emit writes one event. After a failed write (the browser went away) later
// events are dropped.
func (e *SSEEmitter) Emit(ev focus.ProgressEvent) {
	if e.err != nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		e.err = fmt.Errorf("encode %s event: %w", ev.Type, err)
		return
	}
	if ev.RequestID != "" {
		if _, e.err = fmt.Fprintf(e.w, "id: %s\n", ev.RequestID); e.err != nil {
			return
		}
	}
	if _, e.err = fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Type, data); e.err != nil {
		return
	}
	e.flusher.Flush()
}

// Err reports the first write or encoding failure, if any.
func (e *SSEEmitter) Err() error {
	return e.err
}
