// Package llm provides a provider-agnostic client for language-model
// completions, wrapping gollm behind a small adapter interface.
//
// The agent protocol embeds tool invocations inside generated text, so
// messages here are plain text: no structured tool-call channel is
// required from the provider. The package offers both a blocking
// Complete call and a token-delta Stream call, a typed error hierarchy
// with retryability classification, and an exponential-backoff retry
// helper applied to blocking completions.
package llm
