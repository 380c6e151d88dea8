package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var sqliteCaps = Capabilities{Placeholder: PlaceholderQMark}

// DefaultSQLitePath is where the embedded database lives unless configured.
const DefaultSQLitePath = "~/.taskr/taskr.db"

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLiteAdapter is the embedded backend. It holds exactly one connection,
// so concurrent operations in this process are serialized at the
// connection, and writers in other processes are serialized by WAL.
type SQLiteAdapter struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteAdapter creates an unconnected adapter for path. A leading ~ is
// expanded to the user's home directory; ":memory:" opens a private
// in-memory database.
func NewSQLiteAdapter(path string, logger *slog.Logger) *SQLiteAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = DefaultSQLitePath
	}
	return &SQLiteAdapter{path: ExpandHome(path), logger: logger}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Path returns the expanded database path.
func (a *SQLiteAdapter) Path() string { return a.path }

// Connect opens the database file, creating it and its parent directories
// if needed. It is a no-op when already connected.
func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	_, err := a.conn(ctx)
	return err
}

func (a *SQLiteAdapter) conn(ctx context.Context) (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db, nil
	}

	memory := a.path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(a.path), 0o700); err != nil {
			return nil, storeErr(KindSQLite, "connect", fmt.Errorf("create data dir: %w", err))
		}
	}

	// _txlock=immediate makes BEGIN take the write lock up front, so a
	// read-then-insert transaction cannot interleave with another writer.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate"+
		"&_pragma=foreign_keys(1)"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=synchronous(NORMAL)", a.path)
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, storeErr(KindSQLite, "connect", fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storeErr(KindSQLite, "connect", err)
	}
	a.db = db
	a.logger.Info("sqlite database connected", "path", a.path)
	return db, nil
}

// Close closes the connection. Safe to call when not connected.
func (a *SQLiteAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	a.logger.Info("sqlite connection closed", "path", a.path)
	return storeErr(KindSQLite, "close", err)
}

func (a *SQLiteAdapter) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return Result{}, err
	}
	return sqliteExecute(ctx, db, a.FormatQuery(query), args...)
}

func (a *SQLiteAdapter) Fetch(ctx context.Context, query string, args ...any) ([]Row, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return nil, err
	}
	return sqliteFetch(ctx, db, a.FormatQuery(query), 0, args...)
}

func (a *SQLiteAdapter) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return nil, err
	}
	return sqliteFetchOne(ctx, db, a.FormatQuery(query), args...)
}

func (a *SQLiteAdapter) FetchScalar(ctx context.Context, query string, args ...any) (any, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return nil, err
	}
	return sqliteFetchScalar(ctx, db, a.FormatQuery(query), args...)
}

// FormatQuery replaces every $n token with ? in text order. Arguments must
// be supplied in the order the tokens appear.
func (a *SQLiteAdapter) FormatQuery(query string) string { return formatQMark(query) }

// SearchText matches the query as a substring of any column, newest first.
// SQLite has no ranking primitive, so there is nothing to fall back from.
func (a *SQLiteAdapter) SearchText(ctx context.Context, req SearchRequest) ([]Row, error) {
	if err := req.validate(); err != nil {
		return nil, storeErr(KindSQLite, "search", err)
	}
	sql, args, err := substringSearch(a.Dialect(), req)
	if err != nil {
		return nil, storeErr(KindSQLite, "search", err)
	}
	return a.Fetch(ctx, sql, args...)
}

// EnsureSchema is a no-op: SQLite has no namespaces.
func (a *SQLiteAdapter) EnsureSchema(ctx context.Context) error { return nil }

// WithTx runs fn in an immediate transaction on the single connection.
func (a *SQLiteAdapter) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	db, err := a.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(KindSQLite, "begin", err)
	}
	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(KindSQLite, "commit", err)
	}
	return nil
}

func (a *SQLiteAdapter) Capabilities() Capabilities { return sqliteCaps }
func (a *SQLiteAdapter) Dialect() Dialect           { return SQLiteDialect() }
func (a *SQLiteAdapter) Kind() Kind                 { return KindSQLite }

// ─── Transactions ───────────────────────────────────────────────────────────

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	return sqliteExecute(ctx, t.tx, formatQMark(query), args...)
}

func (t *sqliteTx) Fetch(ctx context.Context, query string, args ...any) ([]Row, error) {
	return sqliteFetch(ctx, t.tx, formatQMark(query), 0, args...)
}

func (t *sqliteTx) FetchOne(ctx context.Context, query string, args ...any) (Row, error) {
	return sqliteFetchOne(ctx, t.tx, formatQMark(query), args...)
}

func (t *sqliteTx) FetchScalar(ctx context.Context, query string, args ...any) (any, error) {
	return sqliteFetchScalar(ctx, t.tx, formatQMark(query), args...)
}

// LockKey is a no-op: the immediate transaction already holds the
// database write lock.
func (t *sqliteTx) LockKey(ctx context.Context, key string) error { return nil }

// ─── Shared primitives ──────────────────────────────────────────────────────

func sqliteExecute(ctx context.Context, q sqlQuerier, query string, args ...any) (Result, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, storeErr(KindSQLite, "execute", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Result{}, storeErr(KindSQLite, "execute", err)
	}
	return Result{RowsAffected: n, Tag: commandTag(query, n)}, nil
}

// commandTag mimics the PostgreSQL tag for the statement verb.
func commandTag(query string, n int64) string {
	verb := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(verb, "INSERT"):
		return fmt.Sprintf("INSERT 0 %d", n)
	case strings.HasPrefix(verb, "UPDATE"):
		return fmt.Sprintf("UPDATE %d", n)
	case strings.HasPrefix(verb, "DELETE"):
		return fmt.Sprintf("DELETE %d", n)
	}
	return "OK"
}

func sqliteFetch(ctx context.Context, q sqlQuerier, query string, limit int, args ...any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(KindSQLite, "fetch", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, storeErr(KindSQLite, "fetch", err)
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, storeErr(KindSQLite, "fetch", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(KindSQLite, "fetch", err)
	}
	if out == nil {
		out = []Row{}
	}
	return out, nil
}

func sqliteFetchOne(ctx context.Context, q sqlQuerier, query string, args ...any) (Row, error) {
	rows, err := sqliteFetch(ctx, q, query, 1, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func sqliteFetchScalar(ctx context.Context, q sqlQuerier, query string, args ...any) (any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(KindSQLite, "fetch", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, storeErr(KindSQLite, "fetch", rows.Err())
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, storeErr(KindSQLite, "fetch", err)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, storeErr(KindSQLite, "fetch", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	if b, ok := vals[0].([]byte); ok {
		return string(b), nil
	}
	return vals[0], nil
}
