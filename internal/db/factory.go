package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Config selects and locates a backend.
type Config struct {
	Type        string // "sqlite", "postgres" or "postgresql"
	SQLitePath  string
	PostgresURL string
}

// Option customizes adapter construction.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger adapters report connection events to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Validate checks that the settings required by the selected backend are
// present. It performs no I/O.
func (c Config) Validate() error {
	switch strings.ToLower(c.Type) {
	case "postgres", "postgresql":
		if c.PostgresURL == "" {
			return &ConfigError{
				Setting: "database.postgres.url",
				Reason:  "PostgreSQL URL not configured. Set database.postgres.url in config or TASKR_DATABASE_URL env var.",
			}
		}
	case "sqlite", "":
	default:
		return &ConfigError{Setting: "database.type", Reason: fmt.Sprintf("Unknown database type: %s", c.Type)}
	}
	return nil
}

// New constructs an unconnected adapter for cfg.
func New(cfg Config, opts ...Option) (Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	switch strings.ToLower(cfg.Type) {
	case "postgres", "postgresql":
		return NewPostgresAdapter(cfg.PostgresURL, o.logger), nil
	default:
		return NewSQLiteAdapter(cfg.SQLitePath, o.logger), nil
	}
}

// Init constructs an adapter and connects it.
func Init(ctx context.Context, cfg Config, opts ...Option) (Adapter, error) {
	a, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// ─── Process-wide registry ──────────────────────────────────────────────────
//
// Services take their adapter through their constructors. The registry only
// exists at the process edge, so the binary shares one pool between every
// component it wires.

var shared struct {
	mu      sync.Mutex
	adapter Adapter
}

// Get returns the shared adapter, constructing it from cfg on first use.
// Later calls ignore cfg until Reset.
func Get(cfg Config, opts ...Option) (Adapter, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.adapter != nil {
		return shared.adapter, nil
	}
	a, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	shared.adapter = a
	return a, nil
}

// Reset discards the shared adapter without closing it. Callers that need a
// clean shutdown call CloseShared first.
func Reset() {
	shared.mu.Lock()
	shared.adapter = nil
	shared.mu.Unlock()
}

// CloseShared closes the shared adapter, if any, and discards it.
func CloseShared() error {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.adapter == nil {
		return nil
	}
	err := shared.adapter.Close()
	shared.adapter = nil
	return err
}
