package agent

import (
	"sync"
	"time"
)

// EventKind identifies the type of event relayed to the caller.
type EventKind string

const (
	// EventIteration marks the start of a loop iteration.
	EventIteration EventKind = "iteration"
	// EventText carries one incremental fragment of generated text.
	EventText EventKind = "text"
	// EventToolCalls carries the full batch about to execute.
	EventToolCalls EventKind = "tool_calls"
	// EventToolResult carries one call's outcome as it completes.
	EventToolResult EventKind = "tool_result"
	// EventDone carries the final answer text.
	EventDone EventKind = "done"
	// EventError reports an unrecoverable failure.
	EventError EventKind = "error"
	// EventComplete summarizes the whole request.
	EventComplete EventKind = "complete"
)

// Event is one unit relayed to the caller. Events are emitted in the
// causal order the loop produced them.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers events to the caller via a buffered channel.
type EventEmitter struct {
	runID  string
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates an emitter with a buffered channel.
func NewEventEmitter(runID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		runID: runID,
		ch:    make(chan Event, bufferSize),
	}
}

// Emit sends an event. Events emitted after Close, or while the
// channel buffer is full, are dropped rather than blocking the loop.
func (e *EventEmitter) Emit(kind EventKind, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		RunID:     e.runID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
