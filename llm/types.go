package llm

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single text turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Request describes a completion request.
type Request struct {
	// Model names the provider-specific model. Empty means the
	// provider's configured default.
	Model string `json:"model,omitempty"`

	// Messages is the conversation so far, oldest first.
	Messages []Message `json:"messages"`

	// MaxTokens caps the generated output. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls sampling randomness. Nil means provider default.
	Temperature *float64 `json:"temperature,omitempty"`

	// Provider routes the request to a named registered provider.
	// Empty uses the client's default.
	Provider string `json:"provider,omitempty"`
}

// Usage reports token consumption for a completion. Counts may be
// estimates when the upstream API does not report exact numbers.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the result of a completion.
type Response struct {
	ID           string `json:"id,omitempty"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// StreamEventType discriminates streaming events.
type StreamEventType string

const (
	// StreamStart opens a stream before any content arrives.
	StreamStart StreamEventType = "start"
	// TextDelta carries an incremental chunk of generated text.
	TextDelta StreamEventType = "text_delta"
	// StreamFinish closes a stream; Response holds the final result.
	StreamFinish StreamEventType = "finish"
	// StreamError reports a mid-stream failure; Err is set.
	StreamError StreamEventType = "error"
)

// StreamEvent is one event on a streaming completion channel.
type StreamEvent struct {
	Type     StreamEventType
	Delta    string
	Usage    *Usage
	Response *Response
	Err      error
}
