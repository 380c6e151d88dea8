// Package db is the storage abstraction for taskr.
//
// Two backends implement the same Adapter contract: a pooled PostgreSQL
// client (full-text ranking, native arrays, JSONB) and a single-connection
// embedded SQLite file (pattern-matching search, JSON-in-text emulation).
// Services never branch on the backend directly. They ask the adapter for
// its Dialect and build SQL through a Query, which renders the right
// placeholders, table names and value encodings.
package db

import (
	"context"
	"time"
)

// Kind names a storage backend.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
)

// PlaceholderStyle is the positional parameter syntax of a backend.
type PlaceholderStyle string

const (
	// PlaceholderDollar renders $1, $2, ...
	PlaceholderDollar PlaceholderStyle = "dollar"
	// PlaceholderQMark renders a bare ? for every parameter.
	PlaceholderQMark PlaceholderStyle = "qmark"
)

// Capabilities describes which advanced query features a backend offers.
// Values are fixed for the lifetime of an adapter, except Vector which is
// checked once on first connect and cached.
type Capabilities struct {
	FTS         bool             `json:"supports_fts"`
	Vector      bool             `json:"supports_vector"`
	JSONB       bool             `json:"supports_jsonb"`
	Arrays      bool             `json:"supports_arrays"`
	Placeholder PlaceholderStyle `json:"placeholder_style"`
}

// Row is one result row keyed by column name.
type Row map[string]any

// Result reports the outcome of a mutating statement.
//
// RowsAffected is the structured count callers should inspect. Tag is a
// PostgreSQL-style command tag ("INSERT 0 1", "UPDATE 3", "DELETE 0", "OK");
// the relational adapter returns the server's tag verbatim and the embedded
// adapter synthesizes one from the statement verb.
type Result struct {
	RowsAffected int64  `json:"rows_affected"`
	Tag          string `json:"tag"`
}

// Querier is the set of primitive operations shared by adapters and
// transactions.
type Querier interface {
	Execute(ctx context.Context, query string, args ...any) (Result, error)
	Fetch(ctx context.Context, query string, args ...any) ([]Row, error)
	// FetchOne returns nil (and no error) when no row matches.
	FetchOne(ctx context.Context, query string, args ...any) (Row, error)
	// FetchScalar returns the first column of the first row, or nil.
	FetchScalar(ctx context.Context, query string, args ...any) (any, error)
}

// Tx is a Querier bound to one borrowed connection inside a transaction.
type Tx interface {
	Querier
	// LockKey serializes concurrent transactions on the same key until the
	// surrounding transaction ends.
	LockKey(ctx context.Context, key string) error
}

// Adapter is a connected storage backend.
type Adapter interface {
	Querier

	// Connect is idempotent. Operations connect lazily, so calling it is
	// only needed to surface connection errors early.
	Connect(ctx context.Context) error
	// Close releases held resources. It is safe on a closed adapter and a
	// later operation reconnects.
	Close() error

	// FormatQuery rewrites $n placeholders into the native syntax.
	FormatQuery(query string) string
	// SearchText runs a text search that degrades gracefully when the
	// backend lacks ranking. A capability mismatch is never an error.
	SearchText(ctx context.Context, req SearchRequest) ([]Row, error)
	// EnsureSchema provisions the taskr namespace where the backend has one.
	EnsureSchema(ctx context.Context) error

	// WithTx runs fn in a transaction on a single connection. fn must use
	// the Tx it receives, never the adapter, for the duration of the call.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Capabilities() Capabilities
	Dialect() Dialect
	Kind() Kind
}

// SearchRequest describes a text search over one table.
type SearchRequest struct {
	Table   string   // logical table name, qualified by the adapter's dialect
	Query   string   // free text
	Columns []string // columns matched by the substring fallback
	Select  []string // projected columns; empty means *
	Limit   int      // defaults to 20
	Where   *Expr    // extra conditions AND-ed into the search
}

const defaultSearchLimit = 20

// Now returns the current time truncated to the precision both backends
// store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
