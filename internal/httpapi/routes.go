// Package httpapi defines the HTTP surface of the gateway: the chat
// completion endpoint, routing preview, the cost read side, and the
// operational endpoints (health, metrics).
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/llmgate/llmgate/internal/apikey"
	"github.com/llmgate/llmgate/internal/gateway"
	"github.com/llmgate/llmgate/internal/metrics"
	"github.com/llmgate/llmgate/internal/pricing"
	"github.com/llmgate/llmgate/internal/store"
)

// Dependencies carries everything the handlers need. Constructed once in the
// server wiring and shared read-only across requests.
type Dependencies struct {
	Gateway *gateway.Gateway
	Keys    *apikey.Manager
	Store   store.Store
	Pricing *pricing.Table
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// MountRoutes attaches all routes to the router. Auth applies only to the
// completion endpoint; the read side and operational endpoints are open.
func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/", RootHandler())
	r.Get("/health", HealthHandler())
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(auth chi.Router) {
			auth.Use(apikey.AuthMiddleware(d.Keys, d.Logger))
			auth.Post("/chat/completions", ChatCompletionsHandler(d))
		})

		v1.Get("/routing/preview", RoutingPreviewHandler(d))
		v1.Get("/providers", ProvidersHandler())

		v1.Get("/costs", CostSummaryHandler(d))
		v1.Get("/costs/records", CostRecordsHandler(d))
		v1.Get("/overview", OverviewHandler(d))
		v1.Get("/transactions/recent", RecentTransactionsHandler(d))
	})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
