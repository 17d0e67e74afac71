package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/zalusdev/zalus/llm"
)

// Default iteration bounds. The streaming loop keeps the bound tight
// because every iteration's deltas are relayed live; the synchronous
// loop can afford more round trips.
const (
	DefaultStreamIterations = 3
	DefaultSyncIterations   = 10
)

// FallbackResponse is the final answer when the model still requests
// tools at the iteration bound and produced no usable narrative.
const FallbackResponse = "I've analyzed the project. How can I help you further?"

// ToolCallRecord is one executed invocation offered to a ToolRecorder.
type ToolCallRecord struct {
	RunID   string
	Owner   string
	Repo    string
	Tool    string
	Params  json.RawMessage
	Success bool
	Result  any
	Error   string
}

// ToolRecorder persists executed tool calls for auditing. Recorder
// failures are logged and never affect the loop.
type ToolRecorder interface {
	RecordToolCall(ctx context.Context, rec ToolCallRecord) error
}

// Input is one agent request.
type Input struct {
	Message string    `json:"message"`
	Owner   string    `json:"owner"`
	Repo    string    `json:"repo"`
	History []Message `json:"conversationHistory,omitempty"`
}

// SyncResult is the outcome of a non-streaming run.
type SyncResult struct {
	Response string    `json:"response"`
	Usage    llm.Usage `json:"usage"`
}

// Loop drives the bounded tool-use conversation. One Loop value may
// serve concurrent runs; all per-run state is local to Run/RunSync.
type Loop struct {
	Client        *llm.Client
	Provider      string
	Model         string
	MaxTokens     int
	MaxIterations int

	Repo     RepoClient
	Deploy   DeployClient
	Catalog  *Catalog
	Recorder ToolRecorder
	Logger   *slog.Logger
}

type runState struct {
	runID    string
	catalog  *Catalog
	executor *Executor
	messages []llm.Message
	allCalls []ToolCall
}

func (l *Loop) newRun(ctx context.Context, in Input, runID string) *runState {
	catalog := l.Catalog
	if catalog == nil {
		catalog = NewCatalog()
	}
	executor := &Executor{
		Repo:    l.Repo,
		Deploy:  l.Deploy,
		Catalog: catalog,
		Owner:   in.Owner,
		RepoNm:  in.Repo,
		Logger:  l.Logger,
	}
	builder := &promptBuilder{
		catalog: catalog,
		repo:    l.Repo,
		deploy:  l.Deploy,
		owner:   in.Owner,
		repoNm:  in.Repo,
		logger:  l.Logger,
	}

	messages := make([]llm.Message, 0, len(in.History)+2)
	messages = append(messages, llm.SystemMessage(builder.build(ctx)))
	for _, m := range in.History {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, llm.AssistantMessage(m.Content))
		default:
			messages = append(messages, llm.UserMessage(m.Content))
		}
	}
	messages = append(messages, llm.UserMessage(in.Message))

	return &runState{
		runID:    runID,
		catalog:  catalog,
		executor: executor,
		messages: messages,
	}
}

func (l *Loop) maxIterations(fallback int) int {
	if l.MaxIterations > 0 {
		return l.MaxIterations
	}
	return fallback
}

func (l *Loop) request() llm.Request {
	return llm.Request{
		Provider:  l.Provider,
		Model:     l.Model,
		MaxTokens: l.MaxTokens,
	}
}

// Run executes the streaming loop, publishing every transition on the
// emitter. The emitter is closed when the run ends, whatever the
// outcome.
func (l *Loop) Run(ctx context.Context, in Input, emitter *EventEmitter) {
	defer emitter.Close()

	run := l.newRun(ctx, in, emitter.runID)
	maxIter := l.maxIterations(DefaultStreamIterations)

	iterations := 0
	for iter := 1; iter <= maxIter; iter++ {
		iterations = iter
		emitter.Emit(EventIteration, map[string]any{
			"iteration":     iter,
			"maxIterations": maxIter,
		})

		text, err := l.streamOnce(ctx, run.messages, emitter)
		if err != nil {
			if l.Logger != nil {
				l.Logger.Error("model request failed", "run_id", run.runID, "iteration", iter, "error", err)
			}
			emitter.Emit(EventError, map[string]any{"error": err.Error()})
			return
		}

		calls, residual := ExtractToolCalls(text)
		if len(calls) == 0 {
			final := residual
			if final == "" {
				final = text
			}
			emitter.Emit(EventDone, map[string]any{"response": final})
			break
		}
		if iter == maxIter {
			// Budget exhausted: answer with what we have, leave the
			// pending calls unexecuted.
			final := residual
			if final == "" {
				final = FallbackResponse
			}
			emitter.Emit(EventDone, map[string]any{"response": final})
			break
		}

		emitter.Emit(EventToolCalls, map[string]any{"toolCalls": calls})
		run.allCalls = append(run.allCalls, calls...)

		results := l.executeBatch(ctx, run, calls, in, emitter)
		run.messages = append(run.messages,
			llm.AssistantMessage(text),
			llm.UserMessage(foldResults(results)),
		)
	}

	emitter.Emit(EventComplete, map[string]any{
		"toolCalls":  run.allCalls,
		"iterations": iterations,
	})
}

// RunSync executes the non-streaming loop and returns the final answer
// with accumulated token usage.
func (l *Loop) RunSync(ctx context.Context, in Input) (*SyncResult, error) {
	run := l.newRun(ctx, in, uuid.New().String())
	maxIter := l.maxIterations(DefaultSyncIterations)

	var usage llm.Usage
	for iter := 1; iter <= maxIter; iter++ {
		req := l.request()
		req.Messages = run.messages
		resp, err := l.Client.Complete(ctx, req)
		if err != nil {
			if l.Logger != nil {
				l.Logger.Error("model request failed", "run_id", run.runID, "iteration", iter, "error", err)
			}
			return nil, err
		}
		usage.Add(resp.Usage)

		calls, residual := ExtractToolCalls(resp.Text)
		if len(calls) == 0 {
			final := residual
			if final == "" {
				final = resp.Text
			}
			return &SyncResult{Response: final, Usage: usage}, nil
		}
		if iter == maxIter {
			final := residual
			if final == "" {
				final = FallbackResponse
			}
			return &SyncResult{Response: final, Usage: usage}, nil
		}

		run.allCalls = append(run.allCalls, calls...)
		results := l.executeBatch(ctx, run, calls, in, nil)
		run.messages = append(run.messages,
			llm.AssistantMessage(resp.Text),
			llm.UserMessage(foldResults(results)),
		)
	}

	// Unreachable: the bound branch above always returns.
	return &SyncResult{Response: FallbackResponse, Usage: usage}, nil
}

// executeBatch runs a batch sequentially in extraction order. Failures
// are carried in the results, never aborting the batch.
func (l *Loop) executeBatch(ctx context.Context, run *runState, calls []ToolCall, in Input, emitter *EventEmitter) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		result := run.executor.Execute(ctx, call)
		results = append(results, result)

		if emitter != nil {
			data := map[string]any{
				"tool":    result.Tool,
				"success": result.Success,
			}
			if result.Success {
				data["result"] = result.Result
			} else {
				data["error"] = result.Error
			}
			emitter.Emit(EventToolResult, data)
		}
		l.record(ctx, run.runID, in, call, result)
	}
	return results
}

func (l *Loop) record(ctx context.Context, runID string, in Input, call ToolCall, result ToolResult) {
	if l.Recorder == nil {
		return
	}
	err := l.Recorder.RecordToolCall(ctx, ToolCallRecord{
		RunID:   runID,
		Owner:   in.Owner,
		Repo:    in.Repo,
		Tool:    call.Tool,
		Params:  call.Params,
		Success: result.Success,
		Result:  result.Result,
		Error:   result.Error,
	})
	if err != nil && l.Logger != nil {
		l.Logger.Warn("tool call audit failed", "run_id", runID, "tool", call.Tool, "error", err)
	}
}

// streamOnce issues one model request, relaying deltas as text events
// while accumulating the full generation.
func (l *Loop) streamOnce(ctx context.Context, messages []llm.Message, emitter *EventEmitter) (string, error) {
	req := l.request()
	req.Messages = messages

	ch, err := l.Client.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var full []byte
	for event := range ch {
		switch event.Type {
		case llm.TextDelta:
			full = append(full, event.Delta...)
			emitter.Emit(EventText, map[string]any{"text": event.Delta})
		case llm.StreamError:
			return "", event.Err
		}
	}
	return string(full), nil
}
