package apikey

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/llmgate/llmgate/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewManager(s)
}

func TestGenerate(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	plaintext, rec, err := mgr.Generate(ctx, "acme", 120)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if !strings.HasPrefix(plaintext, "llmgate_") {
		t.Errorf("expected llmgate_ prefix, got %s", plaintext[:10])
	}
	// 8 (prefix) + 64 (32 hex bytes) chars.
	if len(plaintext) != 72 {
		t.Errorf("expected key length 72, got %d", len(plaintext))
	}
	if rec.Name != "acme" || rec.RateLimitPerMinute != 120 || !rec.IsActive {
		t.Errorf("record = %+v", rec)
	}
	if rec.KeyHash == plaintext || rec.KeyHash == "" {
		t.Error("plaintext must not be stored")
	}
}

func TestGenerateDefaultRateLimit(t *testing.T) {
	mgr := newTestManager(t)
	_, rec, err := mgr.Generate(context.Background(), "acme", 0)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if rec.RateLimitPerMinute != 60 {
		t.Errorf("rate limit = %d, want default 60", rec.RateLimitPerMinute)
	}
}

func TestValidate(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	plaintext, rec, err := mgr.Generate(ctx, "acme", 60)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	got, err := mgr.Validate(ctx, plaintext)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("validated id = %s, want %s", got.ID, rec.ID)
	}

	// Second call should hit the cache and agree.
	got2, err := mgr.Validate(ctx, plaintext)
	if err != nil {
		t.Fatalf("cached validate failed: %v", err)
	}
	if got2.ID != rec.ID {
		t.Errorf("cached id = %s, want %s", got2.ID, rec.ID)
	}

	if _, err := mgr.Validate(ctx, "llmgate_wrong"); err == nil {
		t.Error("wrong key should not validate")
	}
}

func TestDeactivateEvictsCache(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	plaintext, rec, err := mgr.Generate(ctx, "acme", 60)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := mgr.Validate(ctx, plaintext); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if err := mgr.Deactivate(ctx, rec.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := mgr.Validate(ctx, plaintext); err == nil {
		t.Error("deactivated key still validates")
	}
}

func TestAuthMiddleware(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	plaintext, rec, err := mgr.Generate(ctx, "acme", 60)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen *store.APIKeyRecord
	handler := AuthMiddleware(mgr, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + plaintext, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer llmgate_nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d", rr.Code, tc.want)
			}
			if tc.want == http.StatusOK && (seen == nil || seen.ID != rec.ID) {
				t.Errorf("context record = %+v", seen)
			}
		})
	}
}
