// Package gateway orchestrates one chat completion end to end: admission,
// routing, fallback execution, pricing, accounting, and metrics. It is the
// only package that decides terminal request outcomes.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/llmgate/llmgate/internal/metrics"
	"github.com/llmgate/llmgate/internal/pricing"
	"github.com/llmgate/llmgate/internal/providers"
	"github.com/llmgate/llmgate/internal/ratelimit"
	"github.com/llmgate/llmgate/internal/routing"
	"github.com/llmgate/llmgate/internal/store"
)

// Request is one chat completion ask, already authenticated.
type Request struct {
	Messages         []providers.Message
	Model            string
	Temperature      float64
	MaxTokens        int
	Task             string
	Budget           string
	LatencySensitive bool
	Provider         string // explicit routing override
}

// Completion is the normalised outcome handed back to the HTTP layer.
type Completion struct {
	RequestID    string
	Provider     string
	Model        string
	Content      string
	FinishReason string
	TokensIn     int
	TokensOut    int
	CostUSD      decimal.Decimal
	FallbackUsed bool
	LatencyMs    int64
	Created      time.Time
}

// Gateway wires the per-request pipeline together.
type Gateway struct {
	limiter  *ratelimit.Controller
	executor *routing.Executor
	prices   *pricing.Table
	store    store.Store
	metrics  *metrics.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock replaces the wall clock (used in tests).
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New assembles a gateway from its collaborators.
func New(limiter *ratelimit.Controller, executor *routing.Executor, prices *pricing.Table,
	st store.Store, reg *metrics.Registry, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		limiter:  limiter,
		executor: executor,
		prices:   prices,
		store:    st,
		metrics:  reg,
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// NewRequestID returns a fresh gateway request id of the form req-<12 hex>.
func NewRequestID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return "req-" + hex.EncodeToString(b[:])
}

// Process runs the whole pipeline for one authenticated request. Accounting
// and metrics failures never change the returned completion; throttling and
// exhausted fallback chains surface as typed errors.
func (g *Gateway) Process(ctx context.Context, tenant *store.APIKeyRecord, req Request) (*Completion, error) {
	requestID := NewRequestID()
	start := g.now()

	if d := g.limiter.Admit(tenant.ID, tenant.RateLimitPerMinute); !d.Ok {
		g.metrics.RequestsTotal.WithLabelValues(tenant.ID, "none", "throttled").Inc()
		g.logger.Info("request throttled",
			slog.String("request_id", requestID),
			slog.String("api_key_id", tenant.ID),
			slog.Int("retry_after", d.RetryAfter),
		)
		return nil, &ThrottledError{RetryAfter: d.RetryAfter}
	}

	decision := routing.Select(routing.Hints{
		Task:             req.Task,
		Budget:           req.Budget,
		LatencySensitive: req.LatencySensitive,
		Override:         req.Provider,
	})
	chain := routing.Chain(decision.Provider)

	ctx = providers.WithRequestID(ctx, requestID)
	res, err := g.executor.Execute(ctx, chain, providers.InvokeOptions{
		Messages:    req.Messages,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if res != nil {
		for _, a := range res.Attempts {
			g.metrics.ErrorsTotal.WithLabelValues(tenant.ID, a.Provider, string(a.Kind)).Inc()
		}
	}
	if err != nil {
		g.metrics.RequestsTotal.WithLabelValues(tenant.ID, decision.Provider, "error").Inc()
		g.writeRequestLog(tenant.ID, requestID, req, decision.Provider, "error")
		g.logger.Error("all providers failed",
			slog.String("request_id", requestID),
			slog.String("api_key_id", tenant.ID),
			slog.String("primary", decision.Provider),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	latency := g.now().Sub(start)
	resp := res.Response

	cost := g.prices.Cost(res.Provider, resp.Model, resp.TokensIn, resp.TokensOut)
	costForClient := cost
	if persistErr := g.store.InsertCostRecord(context.WithoutCancel(ctx), store.CostRecord{
		APIKeyID:  tenant.ID,
		RequestID: requestID,
		Provider:  res.Provider,
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		CostUSD:   cost,
		LatencyMs: latency.Milliseconds(),
		CreatedAt: g.now(),
	}); persistErr != nil {
		// Accounting is best effort. The client sees a zero cost rather
		// than a figure the durable record cannot back.
		costForClient = decimal.Zero
		g.logger.Error("cost record write failed",
			slog.String("request_id", requestID),
			slog.String("error", persistErr.Error()),
		)
	}

	g.writeRequestLog(tenant.ID, requestID, req, res.Provider, "success")

	g.metrics.RequestsTotal.WithLabelValues(tenant.ID, res.Provider, "success").Inc()
	costF, _ := cost.Float64()
	g.metrics.CostTotal.WithLabelValues(tenant.ID, res.Provider, resp.Model).Add(costF)
	g.metrics.LatencySeconds.WithLabelValues(tenant.ID, res.Provider).Observe(latency.Seconds())
	if res.FallbackUsed {
		g.metrics.FallbacksTotal.WithLabelValues(tenant.ID, decision.Provider, res.Provider).Inc()
	}

	g.logger.Info("request completed",
		slog.String("request_id", requestID),
		slog.String("api_key_id", tenant.ID),
		slog.String("provider", res.Provider),
		slog.String("model", resp.Model),
		slog.Int("tokens_in", resp.TokensIn),
		slog.Int("tokens_out", resp.TokensOut),
		slog.Bool("fallback_used", res.FallbackUsed),
		slog.Duration("latency", latency),
	)

	return &Completion{
		RequestID:    requestID,
		Provider:     res.Provider,
		Model:        resp.Model,
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		TokensIn:     resp.TokensIn,
		TokensOut:    resp.TokensOut,
		CostUSD:      costForClient,
		FallbackUsed: res.FallbackUsed,
		LatencyMs:    latency.Milliseconds(),
		Created:      start,
	}, nil
}

// Preview reports the routing decision and fallback chain for a set of hints
// without spending money.
func (g *Gateway) Preview(h routing.Hints) (routing.Decision, []string) {
	d := routing.Select(h)
	return d, routing.Chain(d.Provider)
}

func (g *Gateway) writeRequestLog(apiKeyID, requestID string, req Request, providerUsed, status string) {
	if err := g.store.InsertRequestLog(context.Background(), store.RequestLog{
		RequestID:        requestID,
		APIKeyID:         apiKeyID,
		Task:             req.Task,
		Budget:           req.Budget,
		LatencySensitive: req.LatencySensitive,
		ProviderUsed:     providerUsed,
		Status:           status,
		CreatedAt:        g.now(),
	}); err != nil {
		g.logger.Error("request log write failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}
