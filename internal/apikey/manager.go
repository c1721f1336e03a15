// Package apikey handles tenant credential generation and validation.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/llmgate/llmgate/internal/store"
)

// hashForBcrypt pre-hashes a key with SHA-256 to stay within bcrypt's 72-byte limit.
func hashForBcrypt(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return []byte(hex.EncodeToString(h[:]))
}

// cacheKey derives the principal-cache key from a bearer so plaintext
// credentials are never held as map keys.
func cacheKey(bearer string) string {
	h := sha256.Sum256([]byte(bearer))
	return hex.EncodeToString(h[:])
}

const (
	keyPrefix        = "llmgate_"
	keyRandBytes     = 32 // 64 hex chars
	bcryptCost       = 10
	cacheTTL         = 5 * time.Minute
	defaultRateLimit = 60
)

// ErrInvalidKey is returned when no active credential matches the bearer.
var ErrInvalidKey = errors.New("invalid api key")

type cachedPrincipal struct {
	record    *store.APIKeyRecord
	expiresAt time.Time
}

// Manager generates and validates API keys. Validation bcrypt-compares the
// bearer against every active key, so a short TTL cache keyed by a hash of
// the bearer sits in front of the scan.
type Manager struct {
	store store.Store

	mu    sync.RWMutex
	cache map[string]cachedPrincipal
}

// NewManager creates an API key manager.
func NewManager(s store.Store) *Manager {
	return &Manager{
		store: s,
		cache: make(map[string]cachedPrincipal),
	}
}

// Generate creates a new API key, stores its bcrypt hash, and returns the
// plaintext exactly once.
func (m *Manager) Generate(ctx context.Context, name string, rateLimitPerMinute int) (string, *store.APIKeyRecord, error) {
	if rateLimitPerMinute <= 0 {
		rateLimitPerMinute = defaultRateLimit
	}
	raw := make([]byte, keyRandBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate random: %w", err)
	}
	plaintext := keyPrefix + hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword(hashForBcrypt(plaintext), bcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("bcrypt hash: %w", err)
	}

	rec := store.APIKeyRecord{
		ID:                 uuid.NewString(),
		KeyHash:            string(hash),
		Name:               name,
		RateLimitPerMinute: rateLimitPerMinute,
		CreatedAt:          time.Now().UTC(),
		IsActive:           true,
	}

	if err := m.store.CreateAPIKey(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("store api key: %w", err)
	}
	return plaintext, &rec, nil
}

// Validate resolves a plaintext bearer to its tenant record. The bcrypt
// comparison is constant-time; the scan over active keys is linear.
func (m *Manager) Validate(ctx context.Context, bearer string) (*store.APIKeyRecord, error) {
	ck := cacheKey(bearer)

	m.mu.RLock()
	if cached, ok := m.cache[ck]; ok && time.Now().Before(cached.expiresAt) {
		m.mu.RUnlock()
		return cached.record, nil
	}
	m.mu.RUnlock()

	keys, err := m.store.ListActiveAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active keys: %w", err)
	}

	for i := range keys {
		k := &keys[i]
		if err := bcrypt.CompareHashAndPassword([]byte(k.KeyHash), hashForBcrypt(bearer)); err != nil {
			continue
		}

		m.mu.Lock()
		m.cache[ck] = cachedPrincipal{
			record:    k,
			expiresAt: time.Now().Add(cacheTTL),
		}
		m.mu.Unlock()

		return k, nil
	}

	return nil, ErrInvalidKey
}

// Deactivate disables a key and evicts any cached principal for it, so a
// revoked credential stops working within one request.
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	if err := m.store.DeactivateAPIKey(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	for k, v := range m.cache {
		if v.record.ID == id {
			delete(m.cache, k)
		}
	}
	m.mu.Unlock()
	return nil
}

// List returns all key records, active or not.
func (m *Manager) List(ctx context.Context) ([]store.APIKeyRecord, error) {
	return m.store.ListAPIKeys(ctx)
}
