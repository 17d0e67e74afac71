package llm

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmProvider wraps a gollm.LLM instance and implements Provider.
type GollmProvider struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmOption configures a GollmProvider.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithGollmMaxTokens sets the default max tokens.
func WithGollmMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// WithGollmTemperature sets the default temperature.
func WithGollmTemperature(t float64) GollmOption {
	return func(c *gollmConfig) { c.temperature = t }
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmProvider creates a gollm-backed provider. If apiKey is empty,
// gollm reads it from the environment.
func NewGollmProvider(provider, apiKey, model string, opts ...GollmOption) (*GollmProvider, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled by Client
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	inner, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, NewProviderError(provider, ErrKindUnknown, "create gollm client", err)
	}

	return &GollmProvider{provider: provider, llm: inner, model: model}, nil
}

// NewGollmProviderFromLLM wraps an existing gollm.LLM instance.
func NewGollmProviderFromLLM(provider string, inner gollm.LLM) *GollmProvider {
	return &GollmProvider{provider: provider, llm: inner}
}

// Name returns the provider identifier.
func (p *GollmProvider) Name() string {
	return p.provider
}

// Complete sends a blocking request and returns the full response.
func (p *GollmProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := p.translateRequest(req)
	p.applyRequestOptions(req)

	text, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}
	return p.buildResponse(req, text), nil
}

// Stream sends a streaming request and returns a channel of events.
func (p *GollmProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := p.translateRequest(req)
	p.applyRequestOptions(req)

	ch := make(chan StreamEvent, 64)

	if !p.llm.SupportsStreaming() {
		// Fallback: generate the full response and emit it as one delta.
		go func() {
			defer close(ch)
			ch <- StreamEvent{Type: StreamStart}

			text, err := p.llm.Generate(ctx, prompt)
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Err: p.translateError(err)}
				return
			}

			ch <- StreamEvent{Type: TextDelta, Delta: text}
			resp := p.buildResponse(req, text)
			ch <- StreamEvent{Type: StreamFinish, Usage: &resp.Usage, Response: resp}
		}()
		return ch, nil
	}

	stream, err := p.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}

		var fullText strings.Builder
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Err: p.translateError(err)}
				return
			}
			if token == nil {
				continue
			}
			ch <- StreamEvent{Type: TextDelta, Delta: token.Text}
			fullText.WriteString(token.Text)
		}

		resp := p.buildResponse(req, fullText.String())
		ch <- StreamEvent{Type: StreamFinish, Usage: &resp.Usage, Response: resp}
	}()

	return ch, nil
}

// translateRequest flattens the conversation into a gollm Prompt.
// System messages accumulate into the system prompt; assistant turns are
// prefixed so the model sees the full exchange in a single prompt body.
func (p *GollmProvider) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.Content + "\n"
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		promptOpts = append(promptOpts, gollm.WithMaxLength(req.MaxTokens))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

func (p *GollmProvider) applyRequestOptions(req Request) {
	if req.Model != "" {
		p.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		p.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens > 0 {
		p.llm.SetOption("max_tokens", req.MaxTokens)
	}
}

func (p *GollmProvider) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = p.model
	}
	// gollm does not expose usage counts; estimate from text length.
	in := estimateTokens(req)
	out := len(text) / 4
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     p.provider,
		Text:         text,
		FinishReason: "stop",
		Usage: Usage{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  in + out,
		},
	}
}

// translateError classifies a gollm error by message content, since
// gollm surfaces provider HTTP failures as flat strings.
func (p *GollmProvider) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &ProviderError{Provider: p.provider, Kind: ErrKindAuth, StatusCode: 401, Message: msg, Err: err}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return &ProviderError{Provider: p.provider, Kind: ErrKindAuth, StatusCode: 403, Message: msg, Err: err}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &ProviderError{Provider: p.provider, Kind: ErrKindRateLimit, StatusCode: 429, Message: msg, Err: err}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &ProviderError{Provider: p.provider, Kind: ErrKindInvalidInput, StatusCode: 413, Message: msg, Err: err}
	case strings.Contains(lower, "timeout"):
		return &ProviderError{Provider: p.provider, Kind: ErrKindTimeout, Message: msg, Err: err}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		return &ProviderError{Provider: p.provider, Kind: ErrKindUnavailable, StatusCode: 500, Message: msg, Err: err}
	default:
		return &ProviderError{Provider: p.provider, Kind: ErrKindUnavailable, Message: msg, Err: err}
	}
}

func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
