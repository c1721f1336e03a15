package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/llmgate/llmgate/internal/store"
)

// defaultWindow bounds the cost summary when the caller does not say
// otherwise: the last 30 days.
const defaultWindow = 30 * 24 * time.Hour

// CostSummaryHandler serves GET /v1/costs. Optional query params: api_key_id,
// provider, and model narrow the aggregation; window (a Go duration, e.g.
// "24h") bounds the period.
func CostSummaryHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		window := defaultWindow
		if raw := q.Get("window"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				jsonError(w, "invalid window duration", http.StatusBadRequest)
				return
			}
			window = parsed
		}

		summary, err := d.Store.CostSummary(r.Context(), store.CostFilter{
			APIKeyID: q.Get("api_key_id"),
			Provider: q.Get("provider"),
			Model:    q.Get("model"),
			Since:    time.Now().Add(-window),
		})
		if err != nil {
			d.Logger.Error("cost summary query failed", slog.String("error", err.Error()))
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// CostRecordsHandler serves GET /v1/costs/records with limit/offset paging.
func CostRecordsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := intParam(q.Get("limit"), 100)
		offset := intParam(q.Get("offset"), 0)

		recs, err := d.Store.ListCostRecords(r.Context(), q.Get("api_key_id"), limit, offset)
		if err != nil {
			d.Logger.Error("cost records query failed", slog.String("error", err.Error()))
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"records": recs,
			"count":   len(recs),
		})
	}
}

// OverviewHandler serves GET /v1/overview: lifetime usage totals plus an
// estimate of what the same traffic would have cost served entirely by the
// gpt-3.5-turbo baseline.
func OverviewHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		totals, err := d.Store.UsageTotals(r.Context(), time.Time{})
		if err != nil {
			d.Logger.Error("usage totals query failed", slog.String("error", err.Error()))
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}

		baseline := d.Pricing.Cost("openai", "gpt-3.5-turbo",
			int(totals.TotalTokensIn), int(totals.TotalTokensOut))
		// Negative savings means the routed mix cost more than the baseline.
		savings := baseline.Sub(totals.TotalCostUSD)

		writeJSON(w, http.StatusOK, map[string]any{
			"totals":                totals,
			"baseline_cost_usd":     baseline,
			"estimated_savings_usd": savings,
		})
	}
}

// RecentTransactionsHandler serves GET /v1/transactions/recent.
func RecentTransactionsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := intParam(r.URL.Query().Get("limit"), 20)
		txs, err := d.Store.RecentTransactions(r.Context(), limit)
		if err != nil {
			d.Logger.Error("recent transactions query failed", slog.String("error", err.Error()))
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"transactions": txs,
			"count":        len(txs),
		})
	}
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
