package apikey

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/llmgate/llmgate/internal/store"
)

type contextKey string

const apiKeyContextKey contextKey = "apikey"

// FromContext returns the tenant record attached to the request context.
func FromContext(ctx context.Context) *store.APIKeyRecord {
	if v, ok := ctx.Value(apiKeyContextKey).(*store.APIKeyRecord); ok {
		return v
	}
	return nil
}

// AuthMiddleware validates Bearer tokens on incoming requests and attaches
// the tenant record to the context. Missing or invalid credentials get 401.
func AuthMiddleware(mgr *Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := r.Header.Get("X-Real-IP")
			if clientIP == "" {
				clientIP = r.RemoteAddr
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				logger.Warn("auth: missing token", slog.String("ip", clientIP), slog.String("path", r.URL.Path))
				writeUnauthorized(w, "authorization required")
				return
			}

			if !strings.HasPrefix(auth, "Bearer ") {
				logger.Warn("auth: invalid format", slog.String("ip", clientIP), slog.String("path", r.URL.Path))
				writeUnauthorized(w, "invalid authorization format")
				return
			}
			bearer := strings.TrimPrefix(auth, "Bearer ")

			rec, err := mgr.Validate(r.Context(), bearer)
			if err != nil {
				logger.Warn("auth: validation failed",
					slog.String("ip", clientIP),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				writeUnauthorized(w, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
