package agent

import "testing"

func TestEmitterDeliversInOrder(t *testing.T) {
	e := NewEventEmitter("run-1", 8)
	e.Emit(EventIteration, map[string]any{"iteration": 1})
	e.Emit(EventText, map[string]any{"text": "hi"})
	e.Emit(EventDone, map[string]any{"response": "hi"})
	e.Close()

	var got []EventKind
	for ev := range e.Events() {
		if ev.RunID != "run-1" {
			t.Errorf("run id = %q", ev.RunID)
		}
		got = append(got, ev.Kind)
	}
	want := []EventKind{EventIteration, EventText, EventDone}
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("run-1", 2)
	e.Emit(EventText, nil)
	e.Emit(EventText, nil)
	e.Emit(EventText, nil) // buffer full, dropped
	e.Close()

	count := 0
	for range e.Events() {
		count++
	}
	if count != 2 {
		t.Errorf("delivered = %d, want 2", count)
	}
}

func TestEmitterCloseIdempotent(t *testing.T) {
	e := NewEventEmitter("run-1", 4)
	e.Close()
	e.Close()
	e.Emit(EventText, nil) // after close, dropped silently

	count := 0
	for range e.Events() {
		count++
	}
	if count != 0 {
		t.Errorf("delivered = %d, want 0", count)
	}
}
