package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure-Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Enable WAL mode and set busy timeout.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// SQLite only supports one writer at a time. Limit connections to avoid
	// contention and keep a small idle pool for read concurrency.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying sql.DB handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			key_hash TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			rate_limit_per_minute INTEGER NOT NULL DEFAULT 60,
			created_at TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS cost_records (
			id TEXT PRIMARY KEY,
			api_key_id TEXT NOT NULL,
			request_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			tokens_in INTEGER NOT NULL DEFAULT 0,
			tokens_out INTEGER NOT NULL DEFAULT 0,
			cost_usd TEXT NOT NULL DEFAULT '0.000000',
			latency_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_records_key_time ON cost_records(api_key_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_records_provider_model ON cost_records(provider, model)`,
		`CREATE TABLE IF NOT EXISTS request_logs (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			api_key_id TEXT NOT NULL,
			task TEXT NOT NULL DEFAULT '',
			budget TEXT NOT NULL DEFAULT '',
			latency_sensitive INTEGER NOT NULL DEFAULT 0,
			provider_used TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_request_id ON request_logs(request_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// API Keys

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key APIKeyRecord) error {
	activeInt := 0
	if key.IsActive {
		activeInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, key_hash, name, rate_limit_per_minute, created_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		key.ID, key.KeyHash, key.Name, key.RateLimitPerMinute,
		key.CreatedAt.UTC().Format(time.RFC3339), activeInt)
	return err
}

func (s *SQLiteStore) GetAPIKey(ctx context.Context, id string) (*APIKeyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key_hash, name, rate_limit_per_minute, created_at, is_active
		 FROM api_keys WHERE id = ?`, id)
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKeyRecord, error) {
	return s.queryAPIKeys(ctx,
		`SELECT id, key_hash, name, rate_limit_per_minute, created_at, is_active
		 FROM api_keys ORDER BY created_at DESC`)
}

func (s *SQLiteStore) ListActiveAPIKeys(ctx context.Context) ([]APIKeyRecord, error) {
	return s.queryAPIKeys(ctx,
		`SELECT id, key_hash, name, rate_limit_per_minute, created_at, is_active
		 FROM api_keys WHERE is_active = 1`)
}

func (s *SQLiteStore) DeactivateAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("api key %q not found", id)
	}
	return nil
}

func (s *SQLiteStore) queryAPIKeys(ctx context.Context, query string, args ...any) ([]APIKeyRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []APIKeyRecord
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*APIKeyRecord, error) {
	var k APIKeyRecord
	var createdAt string
	var activeInt int
	if err := row.Scan(&k.ID, &k.KeyHash, &k.Name, &k.RateLimitPerMinute, &createdAt, &activeInt); err != nil {
		return nil, err
	}
	k.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	k.IsActive = activeInt != 0
	return &k, nil
}

// Accounting

func (s *SQLiteStore) InsertCostRecord(ctx context.Context, rec CostRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_records (id, api_key_id, request_id, provider, model, tokens_in, tokens_out, cost_usd, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.APIKeyID, rec.RequestID, rec.Provider, rec.Model,
		rec.TokensIn, rec.TokensOut, rec.CostUSD.StringFixed(6),
		rec.LatencyMs, created.UTC().Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) InsertRequestLog(ctx context.Context, entry RequestLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	sensInt := 0
	if entry.LatencySensitive {
		sensInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_logs (id, request_id, api_key_id, task, budget, latency_sensitive, provider_used, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RequestID, entry.APIKeyID, entry.Task, entry.Budget,
		sensInt, entry.ProviderUsed, entry.Status,
		created.UTC().Format(time.RFC3339))
	return err
}

// Read side

func (s *SQLiteStore) ListCostRecords(ctx context.Context, apiKeyID string, limit, offset int) ([]CostRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, api_key_id, request_id, provider, model, tokens_in, tokens_out, cost_usd, latency_ms, created_at
	 FROM cost_records`
	args := []any{}
	if apiKeyID != "" {
		query += ` WHERE api_key_id = ?`
		args = append(args, apiKeyID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recs []CostRecord
	for rows.Next() {
		var r CostRecord
		var cost, createdAt string
		if err := rows.Scan(&r.ID, &r.APIKeyID, &r.RequestID, &r.Provider, &r.Model,
			&r.TokensIn, &r.TokensOut, &cost, &r.LatencyMs, &createdAt); err != nil {
			return nil, err
		}
		r.CostUSD, _ = decimal.NewFromString(cost)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) CostSummary(ctx context.Context, filter CostFilter) (*CostSummary, error) {
	// Costs are stored as decimal strings, so sums are computed here rather
	// than in SQL to avoid float drift.
	query := `SELECT provider, model, cost_usd, tokens_in, tokens_out FROM cost_records WHERE created_at >= ?`
	args := []any{filter.Since.UTC().Format(time.RFC3339)}
	if filter.APIKeyID != "" {
		query += ` AND api_key_id = ?`
		args = append(args, filter.APIKeyID)
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if filter.Model != "" {
		query += ` AND model = ?`
		args = append(args, filter.Model)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	type key struct{ provider, model string }
	lines := make(map[key]*ProviderModelCost)
	order := []key{}
	summary := &CostSummary{TotalCostUSD: decimal.Zero}

	for rows.Next() {
		var provider, model, cost string
		var tin, tout int64
		if err := rows.Scan(&provider, &model, &cost, &tin, &tout); err != nil {
			return nil, err
		}
		c, _ := decimal.NewFromString(cost)
		k := key{provider, model}
		line, ok := lines[k]
		if !ok {
			line = &ProviderModelCost{Provider: provider, Model: model, CostUSD: decimal.Zero}
			lines[k] = line
			order = append(order, k)
		}
		line.Requests++
		line.TokensIn += tin
		line.TokensOut += tout
		line.CostUSD = line.CostUSD.Add(c)
		summary.TotalRequests++
		summary.TotalCostUSD = summary.TotalCostUSD.Add(c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, k := range order {
		summary.Breakdown = append(summary.Breakdown, *lines[k])
	}
	return summary, nil
}

func (s *SQLiteStore) UsageTotals(ctx context.Context, since time.Time) (*UsageTotals, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cost_usd, tokens_in, tokens_out FROM cost_records WHERE created_at >= ?`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	totals := &UsageTotals{TotalCostUSD: decimal.Zero}
	for rows.Next() {
		var cost string
		var tin, tout int64
		if err := rows.Scan(&cost, &tin, &tout); err != nil {
			return nil, err
		}
		c, _ := decimal.NewFromString(cost)
		totals.TotalRequests++
		totals.TotalTokensIn += tin
		totals.TotalTokensOut += tout
		totals.TotalCostUSD = totals.TotalCostUSD.Add(c)
	}
	return totals, rows.Err()
}

func (s *SQLiteStore) RecentTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.request_id, c.api_key_id, c.provider, c.model, c.tokens_in, c.tokens_out,
		        c.cost_usd, c.latency_ms, COALESCE(r.status, ''), c.created_at
		 FROM cost_records c
		 LEFT JOIN request_logs r ON r.request_id = c.request_id
		 ORDER BY c.created_at DESC, c.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		var cost, createdAt string
		if err := rows.Scan(&t.RequestID, &t.APIKeyID, &t.Provider, &t.Model,
			&t.TokensIn, &t.TokensOut, &cost, &t.LatencyMs, &t.Status, &createdAt); err != nil {
			return nil, err
		}
		t.CostUSD, _ = decimal.NewFromString(cost)
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
