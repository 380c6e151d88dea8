package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresCaps = Capabilities{
	FTS:         true,
	JSONB:       true,
	Arrays:      true,
	Placeholder: PlaceholderDollar,
}

const (
	pgMaxConns = 5
	pgMinConns = 1
)

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresAdapter is the full-feature backend over a pgx connection pool.
type PostgresAdapter struct {
	url    string
	logger *slog.Logger

	mu     sync.Mutex
	pool   *pgxpool.Pool
	vector *bool

	newPool func(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error)
}

// NewPostgresAdapter creates an unconnected adapter for url.
func NewPostgresAdapter(url string, logger *slog.Logger) *PostgresAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAdapter{url: url, logger: logger, newPool: pgxpool.NewWithConfig}
}

// Connect creates the pool, or verifies the existing one. A pool that no
// longer answers a ping is discarded and replaced.
func (a *PostgresAdapter) Connect(ctx context.Context) error {
	_, err := a.connect(ctx, true)
	return err
}

// acquirePool returns the live pool, connecting on first use.
func (a *PostgresAdapter) acquirePool(ctx context.Context) (*pgxpool.Pool, error) {
	return a.connect(ctx, false)
}

func (a *PostgresAdapter) connect(ctx context.Context, verify bool) (*pgxpool.Pool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool != nil && !verify {
		return a.pool, nil
	}
	if a.pool != nil {
		err := a.pool.Ping(ctx)
		if err == nil {
			return a.pool, nil
		}
		if ctx.Err() != nil {
			return nil, storeErr(KindPostgres, "connect", err)
		}
		a.logger.Warn("postgres pool stale, recreating", "error", err)
		a.pool.Close()
		a.pool = nil
	}

	cfg, err := pgxpool.ParseConfig(a.url)
	if err != nil {
		return nil, &ConfigError{Setting: "database.postgres.url", Reason: fmt.Sprintf("invalid PostgreSQL URL: %v", err)}
	}
	cfg.MaxConns = pgMaxConns
	cfg.MinConns = pgMinConns
	// No server-side statement cache, so the pool works behind pgbouncer.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec

	pool, err := a.newPool(ctx, cfg)
	if err != nil {
		return nil, storeErr(KindPostgres, "connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeErr(KindPostgres, "connect", err)
	}
	a.pool = pool
	a.logger.Info("postgres pool initialized", "max_conns", pgMaxConns)

	if a.vector == nil {
		var has bool
		if err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&has); err != nil {
			a.logger.Debug("pgvector check failed", "error", err)
			has = false
		}
		a.vector = &has
	}
	return pool, nil
}

// Close releases the pool. Safe to call when not connected.
func (a *PostgresAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
		a.logger.Info("postgres pool closed")
	}
	return nil
}

func (a *PostgresAdapter) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	pool, err := a.acquirePool(ctx)
	if err != nil {
		return Result{}, err
	}
	return pgExecute(ctx, pool, query, args...)
}

func (a *PostgresAdapter) Fetch(ctx context.Context, query string, args ...any) ([]Row, error) {
	pool, err := a.acquirePool(ctx)
	if err != nil {
		return nil, err
	}
	return pgFetch(ctx, pool, query, args...)
}

func (a *PostgresAdapter) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	pool, err := a.acquirePool(ctx)
	if err != nil {
		return nil, err
	}
	return pgFetchOne(ctx, pool, query, args...)
}

func (a *PostgresAdapter) FetchScalar(ctx context.Context, query string, args ...any) (any, error) {
	pool, err := a.acquirePool(ctx)
	if err != nil {
		return nil, err
	}
	return pgFetchScalar(ctx, pool, query, args...)
}

// FormatQuery is a no-op: PostgreSQL is dollar-native.
func (a *PostgresAdapter) FormatQuery(query string) string { return query }

// SearchText tries ranked full-text search first and falls back to ILIKE
// matching when the ranked query fails, e.g. a table without search_vector.
func (a *PostgresAdapter) SearchText(ctx context.Context, req SearchRequest) ([]Row, error) {
	if err := req.validate(); err != nil {
		return nil, storeErr(KindPostgres, "search", err)
	}
	d := a.Dialect()

	sql, args, err := rankedSearch(d, req)
	if err != nil {
		return nil, storeErr(KindPostgres, "search", err)
	}
	rows, err := a.Fetch(ctx, sql, args...)
	if err == nil {
		for _, r := range rows {
			delete(r, "_rank")
		}
		return rows, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	a.logger.Debug("full-text search failed, falling back to ILIKE", "table", req.Table, "error", err)

	sql, args, err = substringSearch(d, req)
	if err != nil {
		return nil, storeErr(KindPostgres, "search", err)
	}
	return a.Fetch(ctx, sql, args...)
}

// EnsureSchema creates the taskr namespace.
func (a *PostgresAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.Execute(ctx, "CREATE SCHEMA IF NOT EXISTS "+Namespace); err != nil {
		return err
	}
	a.logger.Debug("ensured schema", "schema", Namespace)
	return nil
}

// WithTx runs fn inside a transaction on one pooled connection.
func (a *PostgresAdapter) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pool, err := a.acquirePool(ctx)
	if err != nil {
		return err
	}
	var fnErr error
	err = pgx.BeginFunc(ctx, pool, func(ptx pgx.Tx) error {
		fnErr = fn(ctx, &pgTx{tx: ptx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return storeErr(KindPostgres, "tx", err)
	}
	return err
}

// Capabilities reports the fixed feature set plus the cached vector check.
func (a *PostgresAdapter) Capabilities() Capabilities {
	caps := postgresCaps
	a.mu.Lock()
	if a.vector != nil {
		caps.Vector = *a.vector
	}
	a.mu.Unlock()
	return caps
}

func (a *PostgresAdapter) Dialect() Dialect { return PostgresDialect() }
func (a *PostgresAdapter) Kind() Kind       { return KindPostgres }

// ─── Transactions ───────────────────────────────────────────────────────────

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	return pgExecute(ctx, t.tx, query, args...)
}

func (t *pgTx) Fetch(ctx context.Context, query string, args ...any) ([]Row, error) {
	return pgFetch(ctx, t.tx, query, args...)
}

func (t *pgTx) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	return pgFetchOne(ctx, t.tx, query, args...)
}

func (t *pgTx) FetchScalar(ctx context.Context, query string, args ...any) (any, error) {
	return pgFetchScalar(ctx, t.tx, query, args...)
}

// LockKey takes a transaction-scoped advisory lock derived from key.
func (t *pgTx) LockKey(ctx context.Context, key string) error {
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return storeErr(KindPostgres, "lock", err)
	}
	return nil
}

// ─── Shared primitives ──────────────────────────────────────────────────────

func pgExecute(ctx context.Context, q pgQuerier, query string, args ...any) (Result, error) {
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return Result{}, storeErr(KindPostgres, "execute", err)
	}
	return Result{RowsAffected: tag.RowsAffected(), Tag: tag.String()}, nil
}

func pgFetch(ctx context.Context, q pgQuerier, query string, args ...any) ([]Row, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(KindPostgres, "fetch", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, storeErr(KindPostgres, "fetch", err)
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}

func pgFetchOne(ctx context.Context, q pgQuerier, query string, args ...any) (Row, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(KindPostgres, "fetch", err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(KindPostgres, "fetch", err)
	}
	return Row(m), nil
}

func pgFetchScalar(ctx context.Context, q pgQuerier, query string, args ...any) (any, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(KindPostgres, "fetch", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storeErr(KindPostgres, "fetch", err)
		}
		return nil, nil
	}
	vals, err := rows.Values()
	if err != nil {
		return nil, storeErr(KindPostgres, "fetch", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals[0], nil
}
