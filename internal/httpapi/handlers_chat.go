package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/llmgate/llmgate/internal/apikey"
	"github.com/llmgate/llmgate/internal/gateway"
	"github.com/llmgate/llmgate/internal/providers"
)

const defaultTemperature = 0.7

// chatRequest is the wire form of a completion request. Routing hints ride
// alongside the usual OpenAI-style fields.
type chatRequest struct {
	Model            string              `json:"model,omitempty"`
	Messages         []providers.Message `json:"messages"`
	Temperature      *float64            `json:"temperature,omitempty"`
	MaxTokens        int                 `json:"max_tokens,omitempty"`
	Task             string              `json:"task,omitempty"`
	Budget           string              `json:"budget,omitempty"`
	LatencySensitive bool                `json:"latency_sensitive,omitempty"`
	Provider         string              `json:"provider,omitempty"`
}

type chatChoice struct {
	Index        int               `json:"index"`
	Message      providers.Message `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID           string       `json:"id"`
	Object       string       `json:"object"`
	Created      int64        `json:"created"`
	Model        string       `json:"model"`
	Choices      []chatChoice `json:"choices"`
	Usage        chatUsage    `json:"usage"`
	Provider     string       `json:"provider"`
	CostUSD      float64      `json:"cost_usd"`
	FallbackUsed bool         `json:"fallback_used"`
}

// ChatCompletionsHandler serves POST /v1/chat/completions. The tenant record
// is attached by the auth middleware.
func ChatCompletionsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := apikey.FromContext(r.Context())
		if tenant == nil {
			jsonError(w, "authorization required", http.StatusUnauthorized)
			return
		}

		var req chatRequest
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateChatRequest(&req); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		temp := defaultTemperature
		if req.Temperature != nil {
			temp = *req.Temperature
		}

		c, err := d.Gateway.Process(r.Context(), tenant, gateway.Request{
			Messages:         req.Messages,
			Model:            req.Model,
			Temperature:      temp,
			MaxTokens:        req.MaxTokens,
			Task:             req.Task,
			Budget:           req.Budget,
			LatencySensitive: req.LatencySensitive,
			Provider:         req.Provider,
		})
		if err != nil {
			writeProcessError(w, err)
			return
		}

		cost, _ := c.CostUSD.Float64()
		writeJSON(w, http.StatusOK, chatResponse{
			ID:      c.RequestID,
			Object:  "chat.completion",
			Created: c.Created.Unix(),
			Model:   c.Model,
			Choices: []chatChoice{{
				Index:        0,
				Message:      providers.Message{Role: "assistant", Content: c.Content},
				FinishReason: c.FinishReason,
			}},
			Usage: chatUsage{
				PromptTokens:     c.TokensIn,
				CompletionTokens: c.TokensOut,
				TotalTokens:      c.TokensIn + c.TokensOut,
			},
			Provider:     c.Provider,
			CostUSD:      cost,
			FallbackUsed: c.FallbackUsed,
		})
	}
}

func validateChatRequest(req *chatRequest) error {
	if len(req.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, m := range req.Messages {
		if m.Role == "" {
			return fmt.Errorf("messages[%d]: role is required", i)
		}
		if m.Content == "" {
			return fmt.Errorf("messages[%d]: content is required", i)
		}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if req.MaxTokens < 0 {
		return errors.New("max_tokens must not be negative")
	}
	return nil
}

func writeProcessError(w http.ResponseWriter, err error) {
	var throttled *gateway.ThrottledError
	if errors.As(err, &throttled) {
		w.Header().Set("Retry-After", strconv.Itoa(throttled.RetryAfter))
		jsonError(w, throttled.Error(), http.StatusTooManyRequests)
		return
	}
	var perr *providers.Error
	if errors.As(err, &perr) {
		jsonError(w, "all providers failed: "+perr.Error(), http.StatusServiceUnavailable)
		return
	}
	jsonError(w, "internal error", http.StatusInternalServerError)
}
