package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/llmgate/llmgate/internal/apikey"
	"github.com/llmgate/llmgate/internal/gateway"
	"github.com/llmgate/llmgate/internal/httpapi"
	"github.com/llmgate/llmgate/internal/logging"
	"github.com/llmgate/llmgate/internal/metrics"
	"github.com/llmgate/llmgate/internal/pricing"
	"github.com/llmgate/llmgate/internal/providers"
	"github.com/llmgate/llmgate/internal/providers/huggingface"
	"github.com/llmgate/llmgate/internal/providers/openai"
	"github.com/llmgate/llmgate/internal/ratelimit"
	"github.com/llmgate/llmgate/internal/routing"
	"github.com/llmgate/llmgate/internal/store"
	"github.com/llmgate/llmgate/internal/tracing"
)

// Server owns the process-lifetime resources: the store, the limiter, the
// HTTP listener, and the tracing pipeline.
type Server struct {
	cfg      *Config
	logger   *slog.Logger
	store    *store.SQLiteStore
	limiter  *ratelimit.Controller
	keys     *apikey.Manager
	httpSrv  *http.Server
	shutdown func(context.Context) error
}

// NewServer builds the whole dependency graph from configuration. Nothing
// starts listening until Run.
func NewServer(cfg *Config) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	shutdownTracing, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLite(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}

	httpClient := providers.NewHTTPClient()
	httpClient.Transport = tracing.HTTPTransport(httpClient.Transport)

	adapters := []providers.Provider{
		openai.New("openai", cfg.OpenAIAPIKey,
			"https://api.openai.com/v1", "gpt-3.5-turbo",
			openai.WithTimeout(cfg.ProviderTimeout),
			openai.WithHTTPClient(httpClient)),
		openai.New("deepseek", cfg.DeepSeekAPIKey,
			"https://api.deepseek.com/v1", "deepseek-chat",
			openai.WithTimeout(cfg.ProviderTimeout),
			openai.WithHTTPClient(httpClient)),
		huggingface.New(cfg.HuggingFaceAPIKey,
			"https://api-inference.huggingface.co/models",
			huggingface.WithTimeout(cfg.ProviderTimeout),
			huggingface.WithHTTPClient(httpClient)),
	}

	limiter := ratelimit.New()
	keys := apikey.NewManager(st)
	reg := metrics.New()
	exec := routing.NewExecutor(logger, adapters)
	gw := gateway.New(limiter, exec, pricing.DefaultTable(), st, reg, logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware())
	r.Use(logging.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	httpapi.MountRoutes(r, httpapi.Dependencies{
		Gateway: gw,
		Keys:    keys,
		Store:   st,
		Pricing: pricing.DefaultTable(),
		Metrics: reg,
		Logger:  logger,
	})

	return &Server{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		limiter: limiter,
		keys:    keys,
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdown: shutdownTracing,
	}, nil
}

// Keys exposes the API key manager for the admin CLI.
func (s *Server) Keys() *apikey.Manager { return s.keys }

// Run serves HTTP until the context is cancelled, then drains connections
// and releases resources.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening",
			slog.String("addr", s.cfg.ListenAddr),
			slog.String("environment", s.cfg.Environment),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.close(context.Background())
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	err := s.httpSrv.Shutdown(drainCtx)
	s.close(drainCtx)
	return err
}

func (s *Server) close(ctx context.Context) {
	s.limiter.Stop()
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", slog.String("error", err.Error()))
	}
	if err := s.shutdown(ctx); err != nil {
		s.logger.Error("tracing shutdown failed", slog.String("error", err.Error()))
	}
}
