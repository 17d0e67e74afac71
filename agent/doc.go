// Package agent implements the bounded tool-use loop that drives a
// conversation between a user, a language model, and a repository.
//
// Each iteration sends the conversation to the model, scans the
// generated text for embedded tool invocations, executes them in order
// against GitHub and Vercel, folds the results back into the
// conversation, and repeats until the model stops requesting tools or
// the iteration budget runs out. Every state transition is published
// as a typed event so callers can relay progress incrementally.
package agent
