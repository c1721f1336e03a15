package httpapi

import (
	"net/http"

	"github.com/llmgate/llmgate/internal/routing"
)

// RootHandler serves a small service descriptor so that hitting the base URL
// with a browser or curl tells you what you found.
func RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "llmgate",
			"endpoints": []string{
				"POST /v1/chat/completions",
				"GET /v1/routing/preview",
				"GET /v1/providers",
				"GET /v1/costs",
				"GET /v1/costs/records",
				"GET /v1/overview",
				"GET /v1/transactions/recent",
				"GET /health",
				"GET /metrics",
			},
		})
	}
}

// HealthHandler reports liveness. No auth and no dependencies: a process that
// can serve this is up, nothing more.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// RoutingPreviewHandler serves GET /v1/routing/preview. It evaluates the
// routing decision for the given hints without invoking any provider.
func RoutingPreviewHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		decision, chain := d.Gateway.Preview(routing.Hints{
			Task:             q.Get("task"),
			Budget:           q.Get("budget"),
			LatencySensitive: q.Get("latency_sensitive") == "true",
			Override:         q.Get("provider"),
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"provider": decision.Provider,
			"reason":   decision.Reason,
			"chain":    chain,
		})
	}
}

type providerInfo struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// ProvidersHandler serves GET /v1/providers, the static provider catalogue.
func ProvidersHandler() http.HandlerFunc {
	catalogue := []providerInfo{
		{Name: routing.ProviderOpenAI, Models: []string{
			"gpt-4", "gpt-4-turbo-preview", "gpt-3.5-turbo", "gpt-3.5-turbo-16k",
		}},
		{Name: routing.ProviderDeepSeek, Models: []string{
			"deepseek-chat", "deepseek-coder",
		}},
		{Name: routing.ProviderHuggingFace, Models: []string{
			"llama-3", "mixtral", "qwen",
		}},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": catalogue})
	}
}
