package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is one turn in the conversation as seen by the caller.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Valid caller-supplied roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCall is a tool invocation extracted from generated text. Params
// holds the raw payload; the executor decodes it into the typed
// parameter struct for the resolved tool.
type ToolCall struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ToolResult is the outcome of one invocation. Exactly one of Result
// and Error is populated, per Success.
type ToolResult struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	foldPrefix = "Tool results:\n"
	foldSuffix = "\n\nNow give a concise response."
)

// foldResults serializes a batch of tool results into the synthetic
// user turn appended before the next model request. Results that fail
// to serialize degrade to their error text so the model still sees
// something for every call.
func foldResults(results []ToolResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		var payload any = r
		if r.Success {
			payload = r.Result
		} else {
			payload = map[string]any{"success": false, "error": r.Error}
		}
		b, err := json.Marshal(payload)
		if err != nil {
			b = []byte(fmt.Sprintf("%q", r.Error))
		}
		blocks = append(blocks, fmt.Sprintf("Tool: %s\nResult: %s", r.Tool, b))
	}
	return foldPrefix + strings.Join(blocks, "\n\n") + foldSuffix
}
