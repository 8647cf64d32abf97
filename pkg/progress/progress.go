// Package progress streams engine events to an interactive client during
// one turn. One producer (the turn's goroutine), one consumer.
package progress

import (
	"context"
	"sync"
)

// Event is a tagged progress record. Exactly one variant applies per type.
type Event struct {
	Type EventType `json:"type"`

	// Text fields, per variant.
	Source  string `json:"source,omitempty"`
	Message string `json:"message,omitempty"`

	// Tool call fields.
	Agent       string `json:"agent,omitempty"`
	Tool        string `json:"tool,omitempty"`
	ArgsPreview string `json:"args_preview,omitempty"`
	OK          bool   `json:"ok,omitempty"`

	// Token / Final text.
	Text string `json:"text,omitempty"`
}

type EventType string

const (
	EventText      EventType = "progress"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventToken     EventType = "token"
	EventFinal     EventType = "final"
	EventError     EventType = "error"
)

func Text(source, message string) Event {
	return Event{Type: EventText, Source: source, Message: message}
}

func ToolStart(agent, tool, argsPreview string) Event {
	return Event{Type: EventToolStart, Agent: agent, Tool: tool, ArgsPreview: argsPreview}
}

func ToolEnd(agent, tool string, ok bool) Event {
	return Event{Type: EventToolEnd, Agent: agent, Tool: tool, OK: ok}
}

func Token(text string) Event {
	return Event{Type: EventToken, Text: text}
}

func Final(text string) Event {
	return Event{Type: EventFinal, Text: text}
}

func Error(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Sink carries events from the engine to one client. Emit blocks when the
// buffer is full; slow consumers delay the turn rather than lose events.
type Sink struct {
	events  chan Event
	mu      sync.Mutex
	closed  bool
	discard bool
}

const sinkBuffer = 64

// NewSink returns a sink scoped to one turn.
func NewSink() *Sink {
	return &Sink{events: make(chan Event, sinkBuffer)}
}

// Discard returns a sink that drops every event. For tests and
// non-interactive callers.
func Discard() *Sink {
	return &Sink{events: make(chan Event, sinkBuffer), discard: true}
}

// Emit sends one event. Emitting on a closed sink is a no-op.
func (s *Sink) Emit(event Event) {
	s.mu.Lock()
	if s.closed || s.discard {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// The lock is not held across the send: a full channel must not block
	// Close from another goroutine.
	defer func() {
		// The consumer may have closed concurrently; losing the event to a
		// closed sink is fine.
		_ = recover()
	}()
	s.events <- event
}

// Events returns the receive side.
func (s *Sink) Events() <-chan Event {
	return s.events
}

// Close ends the stream. Idempotent; closing a discard sink is a no-op so
// the shared discard instance stays usable.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.discard {
		return
	}
	s.closed = true
	close(s.events)
}

type sinkContextKey struct{}

// NewContext attaches the sink to the context so nested agent invocations
// stream into the same turn.
func NewContext(ctx context.Context, sink *Sink) context.Context {
	return context.WithValue(ctx, sinkContextKey{}, sink)
}

var sharedDiscard = Discard()

// FromContext returns the turn's sink, or a discard sink when none is
// attached.
func FromContext(ctx context.Context) *Sink {
	if sink, ok := ctx.Value(sinkContextKey{}).(*Sink); ok && sink != nil {
		return sink
	}
	return sharedDiscard
}
