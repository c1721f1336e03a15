// Package app wires configuration, storage, providers, and the HTTP server
// into a runnable gateway process.
package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, sourced from the environment.
// A .env file in the working directory is honoured when present.
type Config struct {
	ListenAddr  string
	DatabaseURL string

	OpenAIAPIKey      string
	DeepSeekAPIKey    string
	HuggingFaceAPIKey string

	// SecretKey is reserved for signing operator sessions; the current
	// surface has no session endpoints, but deployments already set it.
	SecretKey string

	ProviderTimeout time.Duration

	LogLevel    string
	Environment string
	CORSOrigins []string

	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string
}

// Load reads configuration from the environment. Missing optional values get
// defaults; provider keys may be empty, in which case the adapter reports a
// misconfiguration when invoked.
func Load() (*Config, error) {
	// Best effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:       getenv("DATABASE_URL", "llmgate.db"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		DeepSeekAPIKey:    os.Getenv("DEEPSEEK_API_KEY"),
		HuggingFaceAPIKey: os.Getenv("HUGGINGFACE_API_KEY"),
		SecretKey:         os.Getenv("SECRET_KEY"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		Environment:       getenv("ENVIRONMENT", "production"),
		OTELEnabled:       os.Getenv("OTEL_ENABLED") == "true",
		OTELEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		ServiceName:       getenv("OTEL_SERVICE_NAME", "llmgate"),
	}

	timeout := getenv("PROVIDER_TIMEOUT", "30s")
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT %q: %w", timeout, err)
	}
	cfg.ProviderTimeout = d

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise only fail at request time.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR must not be empty")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
