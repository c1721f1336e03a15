// Package huggingface implements the provider adapter for the HuggingFace
// Inference API. The upstream takes a flat prompt rather than a message array
// and reports no token usage, so both are synthesised here.
package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llmgate/llmgate/internal/providers"
)

const (
	defaultTimeout = 30 * time.Second
	defaultModel   = "llama-3"
)

// modelPaths maps short model names to full Inference API repository paths.
// Unknown names pass through verbatim so callers can address any hosted model.
var modelPaths = map[string]string{
	"llama-3": "meta-llama/Meta-Llama-3-8B-Instruct",
	"mixtral": "mistralai/Mixtral-8x7B-Instruct-v0.1",
	"qwen":    "Qwen/Qwen2-7B-Instruct",
}

// Adapter calls the HuggingFace Inference API text-generation endpoint.
type Adapter struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
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

// New creates a HuggingFace adapter. baseURL is the models root, e.g.
// "https://api-inference.huggingface.co/models".
func New(apiKey, baseURL string, opts ...Option) *Adapter {
	a := &Adapter{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: defaultTimeout,
		client:  providers.NewHTTPClient(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return "huggingface" }

func (a *Adapter) Invoke(ctx context.Context, opts providers.InvokeOptions) (*providers.Response, error) {
	if a.apiKey == "" {
		return nil, providers.Errorf("huggingface", providers.KindMisconfigured, "HuggingFace API key not configured")
	}

	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	path, ok := modelPaths[strings.ToLower(model)]
	if !ok {
		path = model
	}

	prompt := FormatPrompt(opts.Messages)

	parameters := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		parameters["max_new_tokens"] = opts.MaxTokens
	}
	payload := map[string]any{
		"inputs":     prompt,
		"parameters": parameters,
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	endpoint := a.baseURL + "/" + path
	body, err := providers.PostJSON(ctx, a.client, endpoint, payload, map[string]string{
		"Authorization": "Bearer " + a.apiKey,
	})
	if err != nil {
		return nil, providers.Classify("huggingface", err)
	}

	content, err := extractGeneratedText(body)
	if err != nil {
		return nil, providers.Errorf("huggingface", providers.KindFatal, "decode response: %v", err)
	}
	// Some models echo the prompt back; keep only the completion.
	if strings.Contains(content, prompt) {
		content = strings.TrimSpace(strings.Replace(content, prompt, "", 1))
	}

	return &providers.Response{
		RequestID:    "hf-" + uuid.NewString()[:12],
		Model:        model,
		Content:      content,
		TokensIn:     EstimateTokens(prompt),
		TokensOut:    EstimateTokens(content),
		FinishReason: "stop",
		Metadata:     map[string]any{"model_endpoint": endpoint},
	}, nil
}

// FormatPrompt flattens a message array into the role-prefixed prompt the
// Inference API expects, terminated with an assistant turn marker.
func FormatPrompt(messages []providers.Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch msg.Role {
		case "system":
			b.WriteString("System: ")
		case "assistant":
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(msg.Content)
	}
	b.WriteString("\nAssistant:")
	return b.String()
}

// EstimateTokens approximates a token count as byte length over four. The
// upstream reports no usage, so accounting depends on this being a pure
// function of the text.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// extractGeneratedText handles both response shapes the Inference API
// produces: an array of generations or a single object.
func extractGeneratedText(body []byte) (string, error) {
	var arr []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &arr); err == nil && len(arr) > 0 {
		return arr[0].GeneratedText, nil
	}
	var obj struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", err
	}
	return obj.GeneratedText, nil
}
