package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zalusdev/zalus/llm"
)

// scriptedProvider replays a fixed sequence of model responses. Each
// streamed response is split into small deltas to exercise reassembly.
type scriptedProvider struct {
	responses []string
	calls     int
	failAt    int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) next() (string, error) {
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return "", llm.ErrorFromStatusCode("scripted", 500, "model exploded")
	}
	if s.calls > len(s.responses) {
		return "", errors.New("script exhausted")
	}
	return s.responses[s.calls-1], nil
}

func (s *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	text, err := s.next()
	if err != nil {
		return nil, err
	}
	return &llm.Response{
		Provider: "scripted",
		Text:     text,
		Usage:    llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

func (s *scriptedProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	text, err := s.next()
	ch := make(chan llm.StreamEvent, len(text)/7+4)
	go func() {
		defer close(ch)
		ch <- llm.StreamEvent{Type: llm.StreamStart}
		if err != nil {
			ch <- llm.StreamEvent{Type: llm.StreamError, Err: err}
			return
		}
		for len(text) > 0 {
			n := 7
			if n > len(text) {
				n = len(text)
			}
			ch <- llm.StreamEvent{Type: llm.TextDelta, Delta: text[:n]}
			text = text[n:]
		}
		ch <- llm.StreamEvent{Type: llm.StreamFinish}
	}()
	return ch, nil
}

func newLoop(provider *scriptedProvider, repo RepoClient) *Loop {
	client := llm.NewClient(llm.WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1}))
	client.Register(provider)
	return &Loop{
		Client: client,
		Repo:   repo,
	}
}

func collectEvents(t *testing.T, l *Loop, in Input) []Event {
	t.Helper()
	emitter := NewEventEmitter("run-1", 0)
	go l.Run(context.Background(), in, emitter)

	var events []Event
	for ev := range emitter.Events() {
		events = append(events, ev)
	}
	return events
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func lastOf(events []Event, kind EventKind) *Event {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == kind {
			return &events[i]
		}
	}
	return nil
}

func TestRunListFilesScenario(t *testing.T) {
	repo := newFakeRepo()
	repo.files["README.md"] = "# app"
	repo.files["main.go"] = "package main"

	provider := &scriptedProvider{responses: []string{
		`<tool_call>{"tool": "list_files", "params": {}}</tool_call>`,
		`The project has a README and one Go file.`,
	}}
	l := newLoop(provider, repo)

	events := collectEvents(t, l, Input{Message: "list files", Owner: "acme", Repo: "app"})

	done := lastOf(events, EventDone)
	if done == nil {
		t.Fatalf("no done event in %v", kinds(events))
	}
	if done.Data["response"] != "The project has a README and one Go file." {
		t.Errorf("done response = %v", done.Data["response"])
	}

	toolCalls := lastOf(events, EventToolCalls)
	if toolCalls == nil {
		t.Fatal("missing tool_calls event")
	}
	batch := toolCalls.Data["toolCalls"].([]ToolCall)
	if len(batch) != 1 || batch[0].Tool != "list_files" {
		t.Errorf("batch = %+v", batch)
	}

	result := lastOf(events, EventToolResult)
	if result == nil {
		t.Fatal("missing tool_result event")
	}
	if result.Data["success"] != true {
		t.Errorf("tool_result = %+v", result.Data)
	}

	complete := lastOf(events, EventComplete)
	if complete == nil {
		t.Fatal("missing complete event")
	}
	if complete.Data["iterations"] != 2 {
		t.Errorf("iterations = %v", complete.Data["iterations"])
	}
	if provider.calls != 2 {
		t.Errorf("model calls = %d, want 2", provider.calls)
	}
}

func TestRunPlainAnswerTerminatesFirstIteration(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"Just an answer."}}
	l := newLoop(provider, newFakeRepo())

	events := collectEvents(t, l, Input{Message: "hi", Owner: "acme", Repo: "app"})

	got := kinds(events)
	var meaningful []EventKind
	for _, k := range got {
		if k != EventText {
			meaningful = append(meaningful, k)
		}
	}
	want := []EventKind{EventIteration, EventDone, EventComplete}
	if len(meaningful) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if meaningful[i] != want[i] {
			t.Fatalf("events = %v, want %v", meaningful, want)
		}
	}
	if lastOf(events, EventDone).Data["response"] != "Just an answer." {
		t.Errorf("response = %v", lastOf(events, EventDone).Data["response"])
	}
}

func TestRunStopsAtIterationBoundWithoutExecuting(t *testing.T) {
	repo := newFakeRepo()
	repo.files["a.txt"] = "x"

	// The model requests a tool on every single iteration.
	marker := `<tool_call>{"tool": "list_files", "params": {}}</tool_call>`
	provider := &scriptedProvider{responses: []string{marker, marker, marker, marker, marker}}
	l := newLoop(provider, repo)
	l.MaxIterations = 3

	events := collectEvents(t, l, Input{Message: "go", Owner: "acme", Repo: "app"})

	if provider.calls != 3 {
		t.Errorf("model calls = %d, bound is 3", provider.calls)
	}

	done := lastOf(events, EventDone)
	if done == nil {
		t.Fatal("missing done event")
	}
	if done.Data["response"] != FallbackResponse {
		t.Errorf("response = %v, want fallback", done.Data["response"])
	}

	// The final iteration's pending batch must not execute or announce.
	var toolCallBatches, toolResults int
	for _, ev := range events {
		switch ev.Kind {
		case EventToolCalls:
			toolCallBatches++
		case EventToolResult:
			toolResults++
		}
	}
	if toolCallBatches != 2 || toolResults != 2 {
		t.Errorf("batches=%d results=%d, want 2 each (iterations 1 and 2 only)", toolCallBatches, toolResults)
	}
}

func TestRunBoundWithResidualText(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`Here is my last thought. <tool_call>{"tool": "list_files", "params": {}}</tool_call>`,
	}}
	l := newLoop(provider, newFakeRepo())
	l.MaxIterations = 1

	events := collectEvents(t, l, Input{Message: "go", Owner: "acme", Repo: "app"})
	done := lastOf(events, EventDone)
	if done == nil || done.Data["response"] != "Here is my last thought." {
		t.Errorf("done = %+v", done)
	}
}

func TestRunBatchFailuresDoNotAbort(t *testing.T) {
	repo := newFakeRepo()
	repo.files["a.txt"] = "hello"

	provider := &scriptedProvider{responses: []string{
		`<tool_call>{"tool": "read_file", "params": {"path": "a.txt"}}</tool_call>` +
			`<tool_call>{"tool": "read_file", "params": {"path": "missing.txt"}}</tool_call>` +
			`<tool_call>{"tool": "list_files", "params": {}}</tool_call>`,
		`Done looking.`,
	}}
	l := newLoop(provider, repo)

	events := collectEvents(t, l, Input{Message: "read stuff", Owner: "acme", Repo: "app"})

	var results []Event
	for _, ev := range events {
		if ev.Kind == EventToolResult {
			results = append(results, ev)
		}
	}
	if len(results) != 3 {
		t.Fatalf("tool_result events = %d, want 3", len(results))
	}
	if results[0].Data["success"] != true {
		t.Errorf("first result = %+v", results[0].Data)
	}
	if results[1].Data["success"] != false {
		t.Errorf("second result should fail: %+v", results[1].Data)
	}
	if results[2].Data["success"] != true {
		t.Errorf("third result = %+v", results[2].Data)
	}
	if results[1].Data["tool"] != "read_file" {
		t.Errorf("second result tool = %v", results[1].Data["tool"])
	}
}

func TestRunToolResultNeverPrecedesBatch(t *testing.T) {
	repo := newFakeRepo()
	repo.files["a.txt"] = "x"
	provider := &scriptedProvider{responses: []string{
		`<tool_call>{"tool": "list_files", "params": {}}</tool_call>`,
		`Summary.`,
	}}
	l := newLoop(provider, repo)

	events := collectEvents(t, l, Input{Message: "go", Owner: "acme", Repo: "app"})

	sawBatch := false
	for _, ev := range events {
		if ev.Kind == EventToolCalls {
			sawBatch = true
		}
		if ev.Kind == EventToolResult && !sawBatch {
			t.Fatal("tool_result emitted before its tool_calls batch")
		}
	}
}

func TestRunProviderErrorEmitsErrorEvent(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"unused"}, failAt: 1}
	l := newLoop(provider, newFakeRepo())

	events := collectEvents(t, l, Input{Message: "go", Owner: "acme", Repo: "app"})

	errEv := lastOf(events, EventError)
	if errEv == nil {
		t.Fatalf("no error event in %v", kinds(events))
	}
	if lastOf(events, EventDone) != nil {
		t.Error("done must not follow a fatal provider error")
	}
	if lastOf(events, EventComplete) != nil {
		t.Error("complete must not follow a fatal provider error")
	}
}

type memoryRecorder struct {
	records []ToolCallRecord
	err     error
}

func (m *memoryRecorder) RecordToolCall(ctx context.Context, rec ToolCallRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

func TestRunRecordsToolCalls(t *testing.T) {
	repo := newFakeRepo()
	repo.files["a.txt"] = "x"
	provider := &scriptedProvider{responses: []string{
		`<tool_call>{"tool": "list_files", "params": {}}</tool_call>`,
		`Summary.`,
	}}
	l := newLoop(provider, repo)
	rec := &memoryRecorder{}
	l.Recorder = rec

	collectEvents(t, l, Input{Message: "go", Owner: "acme", Repo: "app"})

	if len(rec.records) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.records))
	}
	r := rec.records[0]
	if r.Tool != "list_files" || r.Owner != "acme" || r.Repo != "app" || !r.Success {
		t.Errorf("record = %+v", r)
	}
	if r.RunID != "run-1" {
		t.Errorf("run id = %q", r.RunID)
	}
}

func TestRunRecorderFailureDoesNotAbort(t *testing.T) {
	repo := newFakeRepo()
	repo.files["a.txt"] = "x"
	provider := &scriptedProvider{responses: []string{
		`<tool_call>{"tool": "list_files", "params": {}}</tool_call>`,
		`Summary.`,
	}}
	l := newLoop(provider, repo)
	l.Recorder = &memoryRecorder{err: errors.New("db down")}

	events := collectEvents(t, l, Input{Message: "go", Owner: "acme", Repo: "app"})
	if lastOf(events, EventDone) == nil {
		t.Error("run should complete despite recorder failure")
	}
}

func TestRunStreamsTextDeltas(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"A reasonably long answer streamed in pieces."}}
	l := newLoop(provider, newFakeRepo())

	events := collectEvents(t, l, Input{Message: "hi", Owner: "acme", Repo: "app"})

	var streamed strings.Builder
	for _, ev := range events {
		if ev.Kind == EventText {
			streamed.WriteString(ev.Data["text"].(string))
		}
	}
	if streamed.String() != "A reasonably long answer streamed in pieces." {
		t.Errorf("streamed = %q", streamed.String())
	}
}

func TestRunSync(t *testing.T) {
	repo := newFakeRepo()
	repo.files["a.txt"] = "x"
	provider := &scriptedProvider{responses: []string{
		`<tool_call>{"tool": "list_files", "params": {}}</tool_call>`,
		`One file: a.txt.`,
	}}
	l := newLoop(provider, repo)

	result, err := l.RunSync(context.Background(), Input{Message: "what files?", Owner: "acme", Repo: "app"})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if result.Response != "One file: a.txt." {
		t.Errorf("response = %q", result.Response)
	}
	// Two model round trips, usage accumulated across both.
	if result.Usage.TotalTokens != 30 {
		t.Errorf("usage = %+v", result.Usage)
	}
}

func TestRunSyncProviderError(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"unused"}, failAt: 1}
	l := newLoop(provider, newFakeRepo())

	_, err := l.RunSync(context.Background(), Input{Message: "go", Owner: "acme", Repo: "app"})
	if err == nil {
		t.Fatal("expected provider error")
	}
}

func TestRunSyncBound(t *testing.T) {
	marker := `<tool_call>{"tool": "list_files", "params": {}}</tool_call>`
	responses := make([]string, 12)
	for i := range responses {
		responses[i] = marker
	}
	provider := &scriptedProvider{responses: responses}
	repo := newFakeRepo()
	repo.files["a.txt"] = "x"
	l := newLoop(provider, repo)
	l.MaxIterations = 4

	result, err := l.RunSync(context.Background(), Input{Message: "go", Owner: "acme", Repo: "app"})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if provider.calls != 4 {
		t.Errorf("model calls = %d, bound is 4", provider.calls)
	}
	if result.Response != FallbackResponse {
		t.Errorf("response = %q", result.Response)
	}
}
