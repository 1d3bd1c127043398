// Package session holds the caller-visible analysis state: which file is
// selected and the outcome of the latest analysis. Each Analyze call is tagged
// with a generation number; only the newest call may publish its outcome, and
// starting a new call cancels the one in flight.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/kamilpajak/edufocus/internal/focus"
)

// ErrSuperseded marks the outcome of a call that a newer Analyze replaced.
var ErrSuperseded = errors.New("analysis superseded by a newer request")

// State is the phase of a session.
type State int

const (
	StateIdle State = iota
	StateFileSelected
	StateLoading
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFileSelected:
		return "file_selected"
	case StateLoading:
		return "loading"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is a snapshot of the session.
type Outcome struct {
	State      State               `json:"state"`
	File       *focus.SelectedFile `json:"-"`
	Result     *focus.Result       `json:"result,omitempty"`
	Kind       focus.Kind          `json:"kind,omitempty"`
	Message    string              `json:"message,omitempty"`
	Err        error               `json:"-"`
	Generation uint64              `json:"generation"`
}

// Analyzer runs one upload/process exchange.
type Analyzer interface {
	Analyze(ctx context.Context, file *focus.SelectedFile) (*focus.Result, error)
}

// Observer is notified of every published outcome.
type Observer func(Outcome)

// Option configures a Session.
type Option func(*Session)

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observers = append(s.observers, o)
	}
}

// Session serializes the visible effects of concurrent Analyze calls.
type Session struct {
	analyzer  Analyzer
	observers []Observer

	mu      sync.Mutex
	current Outcome
	gen     uint64
	cancel  context.CancelFunc

	pubMu     sync.Mutex
	published uint64
}

// New creates an idle session.
func New(a Analyzer, opts ...Option) *Session {
	s := &Session{analyzer: a}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Outcome returns the current snapshot.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Pick selects a new file, clearing any previous result. A nil file is a
// canceled pick and leaves the session unchanged.
func (s *Session) Pick(file *focus.SelectedFile) {
	if file == nil {
		return
	}

	s.mu.Lock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.current = Outcome{State: StateFileSelected, File: file, Generation: s.gen}
	out := s.current
	s.mu.Unlock()

	s.publish(out)
}

// Analyze runs the exchange for the selected file and returns its outcome.
// The outcome is published only if no newer Pick or Analyze happened in the
// meantime; otherwise it is returned with ErrSuperseded and not applied.
func (s *Session) Analyze(ctx context.Context) Outcome {
	s.mu.Lock()
	file := s.current.File
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if file == nil {
		s.current = failed(gen, nil, focus.ErrNoFileSelected)
		out := s.current
		s.mu.Unlock()
		s.publish(out)
		return out
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.current = Outcome{State: StateLoading, File: file, Generation: gen}
	loading := s.current
	s.mu.Unlock()

	s.publish(loading)

	result, err := s.analyzer.Analyze(ctx, file)

	var out Outcome
	if err != nil {
		out = failed(gen, file, err)
	} else {
		out = Outcome{State: StateSucceeded, File: file, Result: result, Generation: gen}
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		cancel()
		out = failed(gen, file, errors.Join(ErrSuperseded, err))
		out.Message = "Superseded by a newer request."
		return out
	}
	s.current = out
	s.cancel = nil
	s.mu.Unlock()
	cancel()

	s.publish(out)
	return out
}

func failed(gen uint64, file *focus.SelectedFile, err error) Outcome {
	return Outcome{
		State:      StateFailed,
		File:       file,
		Kind:       focus.KindOf(err),
		Message:    focus.UserMessage(err),
		Err:        err,
		Generation: gen,
	}
}

// publish notifies observers in generation order, dropping outcomes older than
// one already delivered.
func (s *Session) publish(out Outcome) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if out.Generation < s.published {
		return
	}
	s.published = out.Generation
	for _, o := range s.observers {
		o(out)
	}
}
