package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/llmgate/llmgate/internal/providers"
)

// DefaultCooldown is the pause between fallback attempts, long enough for a
// momentarily saturated upstream to drain.
const DefaultCooldown = 500 * time.Millisecond

// Executor walks a provider chain, invoking each at most once. Fallback is
// the only retry mechanism; there are no intra-provider retries.
type Executor struct {
	registry map[string]providers.Provider
	cooldown time.Duration
	logger   *slog.Logger

	// sleep is swapped out in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCooldown overrides the inter-attempt pause.
func WithCooldown(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.cooldown = d }
}

// WithSleepFunc replaces the cool-down sleeper (used in tests).
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor builds an executor over a set of registered adapters.
func NewExecutor(logger *slog.Logger, adapters []providers.Provider, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: make(map[string]providers.Provider, len(adapters)),
		cooldown: DefaultCooldown,
		logger:   logger,
		sleep:    sleepCtx,
	}
	for _, a := range adapters {
		e.registry[a.Name()] = a
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Providers returns the names of all registered adapters.
func (e *Executor) Providers() []string {
	names := make([]string, 0, len(e.registry))
	for _, p := range canonicalChain {
		if _, ok := e.registry[p]; ok {
			names = append(names, p)
		}
	}
	return names
}

// Result is a completed chain walk: the winning response, which provider
// served it, whether that provider was not the primary, and every failed
// attempt along the way. Attempts is populated on failure too so callers can
// account for each provider that was tried.
type Result struct {
	Response     *providers.Response
	Provider     string
	FallbackUsed bool
	Attempts     []Attempt
}

// Attempt records one failed provider invocation.
type Attempt struct {
	Provider string
	Kind     providers.Kind
}

// Execute tries each provider in chain order, one invocation each, pausing
// between attempts. Classified upstream failures fall over to the next
// provider; anything outside the taxonomy is wrapped fatal and surfaced
// immediately. When the chain is exhausted the last error is returned
// alongside the partial Result carrying the attempt log.
func (e *Executor) Execute(ctx context.Context, chain []string, opts providers.InvokeOptions) (*Result, error) {
	res := &Result{}
	var lastErr error
	for i, name := range chain {
		adapter, ok := e.registry[name]
		if !ok {
			lastErr = providers.Errorf(name, providers.KindMisconfigured, "provider %q not registered", name)
			res.Attempts = append(res.Attempts, Attempt{Provider: name, Kind: providers.KindMisconfigured})
			continue
		}

		if i > 0 {
			if err := e.sleep(ctx, e.cooldown); err != nil {
				return res, err
			}
		}

		resp, err := adapter.Invoke(ctx, opts)
		if err == nil {
			res.Response = resp
			res.Provider = name
			res.FallbackUsed = i > 0
			return res, nil
		}

		kind, classified := providers.KindOf(err)
		if !classified {
			err = providers.NewError(name, providers.KindFatal, err)
			res.Attempts = append(res.Attempts, Attempt{Provider: name, Kind: providers.KindFatal})
			return res, err
		}

		e.logger.Warn("provider failed, falling back",
			slog.String("provider", name),
			slog.String("error_type", string(kind)),
			slog.Int("attempt", i+1),
			slog.Int("chain_len", len(chain)),
			slog.String("error", err.Error()),
		)
		res.Attempts = append(res.Attempts, Attempt{Provider: name, Kind: kind})
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty provider chain")
	}
	return res, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
