package stream

import (
	"encoding/json"
	"io"
	"strings"
)

// ToolCallView is a tool invocation as announced on the stream.
type ToolCallView struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ToolResultView is one call's outcome as relayed on the stream.
type ToolResultView struct {
	Tool    string          `json:"tool"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// State is the caller-visible view of one agent run, updated as events
// arrive.
type State struct {
	Iteration     int
	MaxIterations int
	Narrative     strings.Builder
	ToolCalls     []ToolCallView
	Results       []ToolResultView
	Response      string
	Err           string
	Done          bool
	Completed     bool
}

// Apply folds one transport event into the state. Events whose payload
// is not valid JSON are dropped; the stream keeps going.
func (st *State) Apply(ev *RawEvent) {
	switch ev.Event {
	case "iteration":
		var p struct {
			Iteration     int `json:"iteration"`
			MaxIterations int `json:"maxIterations"`
		}
		if json.Unmarshal(payload(ev), &p) != nil {
			return
		}
		st.Iteration = p.Iteration
		st.MaxIterations = p.MaxIterations

	case "text":
		var p struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(payload(ev), &p) != nil {
			return
		}
		st.Narrative.WriteString(p.Text)

	case "tool_calls":
		var p struct {
			ToolCalls []ToolCallView `json:"toolCalls"`
		}
		if json.Unmarshal(payload(ev), &p) != nil {
			return
		}
		st.ToolCalls = append(st.ToolCalls, p.ToolCalls...)

	case "tool_result":
		var p ToolResultView
		if json.Unmarshal(payload(ev), &p) != nil {
			return
		}
		st.Results = append(st.Results, p)

	case "done":
		var p struct {
			Response string `json:"response"`
		}
		if json.Unmarshal(payload(ev), &p) != nil {
			return
		}
		st.Response = p.Response
		st.Done = true

	case "error":
		var p struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload(ev), &p) != nil {
			return
		}
		st.Err = p.Error

	case "complete":
		st.Completed = true
	}
}

func payload(ev *RawEvent) []byte {
	return []byte(ev.Data)
}

// Consume reads every event from r into a fresh State until the stream
// ends. Transport errors other than a clean end surface as the
// returned error alongside whatever state accumulated.
func Consume(r io.Reader) (*State, error) {
	st := &State{}
	sc := NewScanner(r)
	for {
		ev, err := sc.Scan()
		if err == io.EOF {
			return st, nil
		}
		if err != nil {
			return st, err
		}
		st.Apply(ev)
	}
}
