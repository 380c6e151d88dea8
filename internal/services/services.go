// Package services implements the taskr record services on top of a
// db.Adapter: tasks, devlogs, and agent sessions with the work-claim
// protocol.
//
// Services receive their adapter at construction and never change it.
// Every statement is built with a db.Query so SQL text, placeholders and
// value encodings follow the adapter's dialect.
package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/HendryAvila/taskr/internal/db"
)

const (
	defaultListLimit   = 50
	defaultSearchLimit = 20
	maxLimit           = 200
)

// Option customizes a service.
type Option func(*base)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.clock.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// base carries what every service shares.
type base struct {
	db     db.Adapter
	logger *slog.Logger
	clock  *clock
}

func newBase(a db.Adapter, opts []Option) base {
	b := base{db: a, logger: slog.Default(), clock: &clock{now: time.Now}}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) dialect() db.Dialect { return b.db.Dialect() }

// clock hands out strictly increasing UTC timestamps at microsecond
// precision, so rows written in sequence by one process never tie on
// created_at.
type clock struct {
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

func (c *clock) tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
