package focus

import (
	"fmt"
	"io"
)

// Progress event types emitted during an analysis call.
const (
	EventUpload  = "upload"
	EventProcess = "process"
	EventParse   = "parse"
	EventDone    = "done"
	EventError   = "error"
)

// ProgressEvent represents a single progress update during analysis.
type ProgressEvent struct {
	Type      string  `json:"type"`                 // upload, process, parse, done, error
	RequestID string  `json:"request_id,omitempty"` // correlates both calls of one analysis
	Message   string  `json:"message,omitempty"`    // human-readable message
	Kind      Kind    `json:"kind,omitempty"`       // error category (for "error" type)
	Result    *Result `json:"result,omitempty"`     // final result (for "done" type)
}

// ProgressEmitter receives progress events during analysis.
type ProgressEmitter interface {
	Emit(event ProgressEvent)
}

// TextEmitter formats progress events as human-readable text for CLI output.
type TextEmitter struct {
	W io.Writer
}

// NewTextEmitter creates a TextEmitter writing to w.
func NewTextEmitter(w io.Writer) *TextEmitter {
	return &TextEmitter{W: w}
}

// Emit writes a formatted progress line to the underlying writer.
func (e *TextEmitter) Emit(ev ProgressEvent) {
	switch ev.Type {
	case EventUpload:
		fmt.Fprintf(e.W, "[1/2] %s\n", ev.Message)
	case EventProcess:
		fmt.Fprintf(e.W, "[2/2] %s\n", ev.Message)
	case EventParse:
		fmt.Fprintf(e.W, "  %s\n", ev.Message)
	case EventError:
		fmt.Fprintf(e.W, "Error: %s\n", ev.Message)
	}
}

func (c *Client) emit(ev ProgressEvent) {
	if c.emitter != nil {
		c.emitter.Emit(ev)
	}
}
