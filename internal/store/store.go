// Package store persists tenant credentials and the accounting trail.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence interface for the gateway.
type Store interface {
	// API keys
	CreateAPIKey(ctx context.Context, key APIKeyRecord) error
	GetAPIKey(ctx context.Context, id string) (*APIKeyRecord, error)
	ListAPIKeys(ctx context.Context) ([]APIKeyRecord, error)
	ListActiveAPIKeys(ctx context.Context) ([]APIKeyRecord, error)
	DeactivateAPIKey(ctx context.Context, id string) error

	// Accounting. Cost records and request logs are written in separate
	// transactions so one failing cannot poison the other.
	InsertCostRecord(ctx context.Context, rec CostRecord) error
	InsertRequestLog(ctx context.Context, entry RequestLog) error

	// Read side
	ListCostRecords(ctx context.Context, apiKeyID string, limit, offset int) ([]CostRecord, error)
	CostSummary(ctx context.Context, filter CostFilter) (*CostSummary, error)
	UsageTotals(ctx context.Context, since time.Time) (*UsageTotals, error)
	RecentTransactions(ctx context.Context, limit int) ([]Transaction, error)

	// Schema lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// APIKeyRecord is the persisted form of a tenant credential. KeyHash is a
// bcrypt digest; the plaintext is shown once at creation and never stored.
type APIKeyRecord struct {
	ID                 string    `json:"id"`
	KeyHash            string    `json:"-"`
	Name               string    `json:"name"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	CreatedAt          time.Time `json:"created_at"`
	IsActive           bool      `json:"is_active"`
}

// CostRecord is one priced upstream invocation.
type CostRecord struct {
	ID        string          `json:"id"`
	APIKeyID  string          `json:"api_key_id"`
	RequestID string          `json:"request_id"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	TokensIn  int             `json:"tokens_in"`
	TokensOut int             `json:"tokens_out"`
	CostUSD   decimal.Decimal `json:"cost_usd"`
	LatencyMs int64           `json:"latency_ms"`
	CreatedAt time.Time       `json:"created_at"`
}

// RequestLog captures one gateway request and its routing outcome.
type RequestLog struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	APIKeyID         string    `json:"api_key_id"`
	Task             string    `json:"task,omitempty"`
	Budget           string    `json:"budget,omitempty"`
	LatencySensitive bool      `json:"latency_sensitive"`
	ProviderUsed     string    `json:"provider_used"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// CostFilter narrows a cost summary. Zero-value fields mean "no constraint".
type CostFilter struct {
	APIKeyID string
	Provider string
	Model    string
	Since    time.Time
}

// ProviderModelCost is one (provider, model) line of a cost summary.
type ProviderModelCost struct {
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Requests  int64           `json:"requests"`
	TokensIn  int64           `json:"tokens_in"`
	TokensOut int64           `json:"tokens_out"`
	CostUSD   decimal.Decimal `json:"cost_usd"`
}

// CostSummary aggregates cost records matching a CostFilter.
type CostSummary struct {
	TotalRequests int64               `json:"total_requests"`
	TotalCostUSD  decimal.Decimal     `json:"total_cost_usd"`
	Breakdown     []ProviderModelCost `json:"breakdown"`
}

// UsageTotals feeds the overview endpoint's savings estimate.
type UsageTotals struct {
	TotalRequests  int64           `json:"total_requests"`
	TotalTokensIn  int64           `json:"total_tokens_in"`
	TotalTokensOut int64           `json:"total_tokens_out"`
	TotalCostUSD   decimal.Decimal `json:"total_cost_usd"`
}

// Transaction is one recent request as shown on the activity feed: the cost
// record joined with its request log status.
type Transaction struct {
	RequestID string          `json:"request_id"`
	APIKeyID  string          `json:"api_key_id"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	TokensIn  int             `json:"tokens_in"`
	TokensOut int             `json:"tokens_out"`
	CostUSD   decimal.Decimal `json:"cost_usd"`
	LatencyMs int64           `json:"latency_ms"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}
