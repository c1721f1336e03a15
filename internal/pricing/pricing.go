// Package pricing computes per-request USD cost from token counts using exact
// decimal arithmetic. Monetary values never touch binary floating point.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the fixed number of fractional digits for stored costs.
const Places = 6

// Rate is the per-1000-token price pair for one (provider, model).
type Rate struct {
	Provider          string
	Model             string
	InputPerThousand  decimal.Decimal
	OutputPerThousand decimal.Decimal
}

// Table is an ordered price list. Order matters: when a model has no exact
// entry, the first entry under its provider acts as the provider default.
type Table struct {
	rates []Rate
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultTable returns the built-in price list, USD per 1000 tokens.
// HuggingFace entries are free tier and price at zero.
func DefaultTable() *Table {
	return &Table{rates: []Rate{
		{"openai", "gpt-4", d("0.03"), d("0.06")},
		{"openai", "gpt-4-turbo-preview", d("0.01"), d("0.03")},
		{"openai", "gpt-3.5-turbo", d("0.0015"), d("0.002")},
		{"openai", "gpt-3.5-turbo-16k", d("0.003"), d("0.004")},
		{"deepseek", "deepseek-chat", d("0.00014"), d("0.00028")},
		{"deepseek", "deepseek-coder", d("0.00014"), d("0.00028")},
		{"huggingface", "llama-3", decimal.Zero, decimal.Zero},
		{"huggingface", "mixtral", decimal.Zero, decimal.Zero},
		{"huggingface", "qwen", decimal.Zero, decimal.Zero},
		{"huggingface", "meta-llama/Meta-Llama-3-8B-Instruct", decimal.Zero, decimal.Zero},
		{"huggingface", "mistralai/Mixtral-8x7B-Instruct-v0.1", decimal.Zero, decimal.Zero},
		{"huggingface", "Qwen/Qwen2-7B-Instruct", decimal.Zero, decimal.Zero},
	}}
}

// Lookup resolves the rate for (provider, model): exact match first, then the
// provider's first listed model as its default, then zero.
func (t *Table) Lookup(provider, model string) Rate {
	for _, r := range t.rates {
		if r.Provider == provider && r.Model == model {
			return r
		}
	}
	for _, r := range t.rates {
		if r.Provider == provider {
			return r
		}
	}
	return Rate{Provider: provider, Model: model,
		InputPerThousand: decimal.Zero, OutputPerThousand: decimal.Zero}
}

// Cost computes tokensIn*in/1000 + tokensOut*out/1000 rounded to six
// fractional digits. Exact decimal division keeps partial thousands priced.
func (t *Table) Cost(provider, model string, tokensIn, tokensOut int) decimal.Decimal {
	r := t.Lookup(provider, model)
	thousand := decimal.NewFromInt(1000)
	in := decimal.NewFromInt(int64(tokensIn)).Mul(r.InputPerThousand).Div(thousand)
	out := decimal.NewFromInt(int64(tokensOut)).Mul(r.OutputPerThousand).Div(thousand)
	return in.Add(out).Round(Places)
}

// Attribute guesses the owning provider from a model name. Used when a cost
// must be recorded for a response whose serving adapter is not known.
func Attribute(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "gpt"):
		return "openai"
	case strings.Contains(m, "deepseek"):
		return "deepseek"
	case strings.Contains(m, "llama"), strings.Contains(m, "mixtral"), strings.Contains(m, "qwen"):
		return "huggingface"
	default:
		return "unknown"
	}
}
