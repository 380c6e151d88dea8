package db

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Namespace is the PostgreSQL schema holding taskr tables.
const Namespace = "taskr"

// TimeLayout is the fixed-width UTC text form timestamps take in SQLite.
// Lexical order of values in this layout equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Dialect captures every SQL difference between the two backends: table
// qualification, placeholder syntax, and how tags, JSON maps and times are
// passed as parameters. It is the only place services learn which backend
// they run on.
type Dialect struct {
	kind  Kind
	caps  Capabilities
	nsPfx string
}

func newDialect(kind Kind, caps Capabilities) Dialect {
	d := Dialect{kind: kind, caps: caps}
	if kind == KindPostgres {
		d.nsPfx = Namespace + "."
	}
	return d
}

// PostgresDialect returns the dialect of the relational backend.
func PostgresDialect() Dialect { return newDialect(KindPostgres, postgresCaps) }

// SQLiteDialect returns the dialect of the embedded backend.
func SQLiteDialect() Dialect { return newDialect(KindSQLite, sqliteCaps) }

// Kind returns the backend this dialect renders for.
func (d Dialect) Kind() Kind { return d.kind }

// Style returns the placeholder syntax.
func (d Dialect) Style() PlaceholderStyle { return d.caps.Placeholder }

// Table qualifies a logical table name: "taskr.tasks" on PostgreSQL,
// "tasks" on SQLite.
func (d Dialect) Table(name string) string { return d.nsPfx + name }

// Placeholder renders the n-th (1-based) positional parameter.
func (d Dialect) Placeholder(n int) string {
	if d.caps.Placeholder == PlaceholderDollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Like is the case-insensitive substring operator.
func (d Dialect) Like() string {
	if d.kind == KindPostgres {
		return "ILIKE"
	}
	// SQLite LIKE folds ASCII case.
	return "LIKE"
}

// TagsValue encodes a tag set as a native array or as JSON text.
func (d Dialect) TagsValue(tags []string) any {
	if tags == nil {
		tags = []string{}
	}
	if d.caps.Arrays {
		return tags
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(tags)
	return strings.TrimSuffix(buf.String(), "\n")
}

// JSONValue encodes an open key-value map for a JSONB or TEXT column.
func (d Dialect) JSONValue(m map[string]any) (any, error) {
	if m == nil {
		m = map[string]any{}
	}
	if d.caps.JSONB {
		return m, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// TimeValue encodes a timestamp parameter.
func (d Dialect) TimeValue(t time.Time) any {
	if d.kind == KindPostgres {
		return t.UTC()
	}
	return FormatTime(t)
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// ParseTime decodes a timestamp produced by either backend.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case []byte:
		return ParseTime(string(t))
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is a bare SQL identifier safe to
// splice into query text.
func ValidIdentifier(name string) bool { return identRe.MatchString(name) }

func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !ValidIdentifier(n) {
			return fmt.Errorf("%w: %q", ErrIdentifier, n)
		}
	}
	return nil
}
