// Package openai implements the provider adapter for the OpenAI chat
// completions wire format. DeepSeek speaks the same protocol, so a DeepSeek
// adapter is this adapter constructed with a different name, base URL and
// default model.
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llmgate/llmgate/internal/providers"
)

const defaultTimeout = 30 * time.Second

// Adapter calls a /chat/completions endpoint and normalises the response.
type Adapter struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
	timeout      time.Duration
	client       *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout sets the per-invocation deadline.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// WithHTTPClient replaces the pooled HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// New creates an adapter for an OpenAI-compatible upstream. baseURL includes
// the API version prefix, e.g. "https://api.openai.com/v1".
func New(name, apiKey, baseURL, defaultModel string, opts ...Option) *Adapter {
	a := &Adapter{
		name:         name,
		apiKey:       apiKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: defaultModel,
		timeout:      defaultTimeout,
		client:       providers.NewHTTPClient(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return a.name }

type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *Adapter) Invoke(ctx context.Context, opts providers.InvokeOptions) (*providers.Response, error) {
	if a.apiKey == "" {
		return nil, providers.Errorf(a.name, providers.KindMisconfigured, "%s API key not configured", a.name)
	}

	model := opts.Model
	if model == "" {
		model = a.defaultModel
	}

	payload := map[string]any{
		"model":       model,
		"messages":    opts.Messages,
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	body, err := providers.PostJSON(ctx, a.client, a.baseURL+"/chat/completions", payload, map[string]string{
		"Authorization": "Bearer " + a.apiKey,
	})
	if err != nil {
		return nil, providers.Classify(a.name, err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, providers.Errorf(a.name, providers.KindFatal, "decode response: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, providers.Errorf(a.name, providers.KindFatal, "response has no choices")
	}

	respModel := parsed.Model
	if respModel == "" {
		respModel = model
	}
	requestID := parsed.ID
	if requestID == "" {
		requestID = "chatcmpl-" + uuid.NewString()[:12]
	}

	return &providers.Response{
		RequestID:    requestID,
		Model:        respModel,
		Content:      parsed.Choices[0].Message.Content,
		TokensIn:     parsed.Usage.PromptTokens,
		TokensOut:    parsed.Usage.CompletionTokens,
		FinishReason: parsed.Choices[0].FinishReason,
		Metadata:     map[string]any{"response_id": parsed.ID},
	}, nil
}
