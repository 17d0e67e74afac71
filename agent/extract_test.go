package agent

import (
	"encoding/json"
	"testing"
)

func TestExtractSingleCall(t *testing.T) {
	text := `Let me check the files. <tool_call>{"tool": "list_files", "params": {}}</tool_call>`
	calls, residual := ExtractToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Tool != "list_files" {
		t.Errorf("tool = %q", calls[0].Tool)
	}
	if residual != "Let me check the files." {
		t.Errorf("residual = %q", residual)
	}
}

func TestExtractMultipleCallsInOrder(t *testing.T) {
	text := `First <tool_call>{"tool": "read_file", "params": {"path": "a.go"}}</tool_call> then <tool_call>{"tool": "read_file", "params": {"path": "b.go"}}</tool_call> done.`
	calls, residual := ExtractToolCalls(text)
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	var p struct {
		Path string `json:"path"`
	}
	json.Unmarshal(calls[0].Params, &p)
	if p.Path != "a.go" {
		t.Errorf("first call path = %q", p.Path)
	}
	json.Unmarshal(calls[1].Params, &p)
	if p.Path != "b.go" {
		t.Errorf("second call path = %q", p.Path)
	}
	if residual != "First  then  done." {
		t.Errorf("residual = %q", residual)
	}
}

func TestExtractMalformedPayloadDropped(t *testing.T) {
	text := `Before <tool_call>{not valid json</tool_call> after.`
	calls, residual := ExtractToolCalls(text)
	if len(calls) != 0 {
		t.Fatalf("calls = %+v, want none", calls)
	}
	if residual != "Before  after." {
		t.Errorf("residual = %q, marker span should be stripped", residual)
	}
}

func TestExtractMissingToolNameDropped(t *testing.T) {
	text := `<tool_call>{"params": {"path": "a.go"}}</tool_call>`
	calls, residual := ExtractToolCalls(text)
	if len(calls) != 0 {
		t.Errorf("calls = %+v, nameless call should be dropped", calls)
	}
	if residual != "" {
		t.Errorf("residual = %q", residual)
	}
}

func TestExtractUnterminatedMarkerKept(t *testing.T) {
	text := `Some text <tool_call>{"tool": "list_files"`
	calls, residual := ExtractToolCalls(text)
	if len(calls) != 0 {
		t.Errorf("calls = %+v", calls)
	}
	if residual != text {
		t.Errorf("residual = %q, unterminated marker should stay", residual)
	}
}

func TestExtractNestedBraces(t *testing.T) {
	text := `<tool_call>{"tool": "write_files", "params": {"files": [{"path": "a.json", "content": "{\"x\": {\"y\": 1}}"}], "commit_message": "add {braces}"}}</tool_call>`
	calls, _ := ExtractToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	var p struct {
		Files []struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		} `json:"files"`
		CommitMessage string `json:"commit_message"`
	}
	if err := json.Unmarshal(calls[0].Params, &p); err != nil {
		t.Fatalf("params: %v", err)
	}
	if len(p.Files) != 1 || p.Files[0].Content != `{"x": {"y": 1}}` {
		t.Errorf("files = %+v", p.Files)
	}
	if p.CommitMessage != "add {braces}" {
		t.Errorf("commit message = %q", p.CommitMessage)
	}
}

func TestExtractNoMarkers(t *testing.T) {
	text := "Just a plain answer with no tools."
	calls, residual := ExtractToolCalls(text)
	if len(calls) != 0 || residual != text {
		t.Errorf("calls=%v residual=%q", calls, residual)
	}
}

func TestExtractWhitespaceAroundPayload(t *testing.T) {
	text := "<tool_call>\n  {\"tool\": \"list_files\", \"params\": {}}\n</tool_call>"
	calls, residual := ExtractToolCalls(text)
	if len(calls) != 1 || calls[0].Tool != "list_files" {
		t.Fatalf("calls = %+v", calls)
	}
	if residual != "" {
		t.Errorf("residual = %q", residual)
	}
}
