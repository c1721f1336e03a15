// Package providers defines the provider adapter contract: a uniform chat
// completion call over heterogeneous upstream LLM HTTP APIs, plus the closed
// error taxonomy every other component routes on.
package providers

import "context"

// Message is a single chat message in the provider-agnostic envelope.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InvokeOptions carries the caller-controlled knobs for one completion call.
// Model may be empty, in which case the adapter substitutes its default.
type InvokeOptions struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int // 0 = provider default
}

// Response is the normalised shape every adapter returns on success.
// TokensIn/TokensOut are never negative; Model is never empty.
type Response struct {
	RequestID    string
	Model        string
	Content      string
	TokensIn     int
	TokensOut    int
	FinishReason string
	Metadata     map[string]any
}

// Provider is the uniform adapter contract. Invoke is bounded by the context
// deadline; failures are always a *Error carrying one of the taxonomy kinds.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, opts InvokeOptions) (*Response, error)
}
