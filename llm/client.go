package llm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Provider is a backend capable of serving completion requests.
type Provider interface {
	// Name reports the provider's registry key, e.g. "openai".
	Name() string

	// Complete runs a blocking completion.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream runs a streaming completion. The returned channel is
	// closed after a finish or error event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Client routes requests to registered providers and applies a retry
// policy to blocking completions.
type Client struct {
	mu              sync.RWMutex
	providers       map[string]Provider
	defaultProvider string
	retry           RetryPolicy
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = policy }
}

// WithDefaultProvider selects the provider used when a request does not
// name one.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) { c.defaultProvider = name }
}

// NewClient builds an empty client. Register providers before use.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]Provider),
		retry:     DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a provider. The first registered provider becomes the
// default unless one was set explicitly.
func (c *Client) Register(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Name()] = p
	if c.defaultProvider == "" {
		c.defaultProvider = p.Name()
	}
}

// Providers lists registered provider names, sorted.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Client) resolve(req Request) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, fmt.Errorf("llm: no provider registered")
	}
	p, ok := c.providers[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
	return p, nil
}

// Complete runs a blocking completion through the resolved provider,
// retrying on retryable provider failures.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	p, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	return Retry(ctx, c.retry, func(ctx context.Context) (*Response, error) {
		return p.Complete(ctx, req)
	})
}

// Stream runs a streaming completion through the resolved provider.
// Streams are not retried; a failure surfaces as a StreamError event or
// an immediate error.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	p, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, req)
}

// NewClientFromEnv builds a client with a gollm-backed provider for each
// API key present in the environment. ANTHROPIC_API_KEY registers
// "anthropic" and OPENAI_API_KEY registers "openai"; when both are set,
// anthropic is the default.
func NewClientFromEnv(defaultModel string, opts ...ClientOption) (*Client, error) {
	c := NewClient(opts...)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p, err := NewGollmProvider("anthropic", key, defaultModel)
		if err != nil {
			return nil, fmt.Errorf("llm: anthropic provider: %w", err)
		}
		c.Register(p)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p, err := NewGollmProvider("openai", key, defaultModel)
		if err != nil {
			return nil, fmt.Errorf("llm: openai provider: %w", err)
		}
		c.Register(p)
	}
	if len(c.Providers()) == 0 {
		return nil, fmt.Errorf("llm: no API keys found in environment")
	}
	return c, nil
}
