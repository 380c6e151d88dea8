package db

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Expr is a SQL fragment whose parameters are marked with a bare ?.
// It is rendered into a Query, which assigns final positions.
type Expr struct {
	SQL  string
	Args []any
}

// E builds an Expr.
func E(sql string, args ...any) *Expr { return &Expr{SQL: sql, Args: args} }

// Query accumulates positional arguments while SQL text is assembled, so
// placeholder numbering never has to be tracked by hand.
type Query struct {
	d    Dialect
	args []any
}

// NewQuery starts an empty argument list for the given dialect.
func NewQuery(d Dialect) *Query { return &Query{d: d} }

// Arg appends v and returns its placeholder.
func (q *Query) Arg(v any) string {
	q.args = append(q.args, v)
	return q.d.Placeholder(len(q.args))
}

// Args returns the arguments in placeholder order.
func (q *Query) Args() []any { return q.args }

// Table qualifies a logical table name.
func (q *Query) Table(name string) string { return q.d.Table(name) }

// Dialect returns the dialect the query renders for.
func (q *Query) Dialect() Dialect { return q.d }

// Tags appends a tag set parameter.
func (q *Query) Tags(tags []string) string { return q.Arg(q.d.TagsValue(tags)) }

// Time appends a timestamp parameter.
func (q *Query) Time(t time.Time) string { return q.Arg(q.d.TimeValue(t)) }

// JSON appends a key-value map parameter.
func (q *Query) JSON(m map[string]any) (string, error) {
	v, err := q.d.JSONValue(m)
	if err != nil {
		return "", err
	}
	return q.Arg(v), nil
}

// TagsOverlap renders a condition matching rows whose tag column shares at
// least one value with tags: native array overlap on PostgreSQL, json_each
// over the JSON text on SQLite. Values compare decoded, so escaping and LIKE
// wildcards in tags play no part. An empty set matches nothing.
func (q *Query) TagsOverlap(column string, tags []string) string {
	if len(tags) == 0 {
		return "1 = 0"
	}
	if q.d.caps.Arrays {
		return fmt.Sprintf("%s && %s", column, q.Tags(tags))
	}
	marks := make([]string, len(tags))
	for i, tag := range tags {
		marks[i] = q.Arg(tag)
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value IN (%s))",
		column, strings.Join(marks, ", "))
}

// Expr splices e into the query, binding each ? marker to the next of its
// arguments. A ? inside a single-quoted literal is text, not a marker.
func (q *Query) Expr(e *Expr) (string, error) {
	if e == nil {
		return "", nil
	}
	marks := markers(e.SQL)
	if len(marks) != len(e.Args) {
		return "", fmt.Errorf("expression %q has %d markers for %d args", e.SQL, len(marks), len(e.Args))
	}
	var b strings.Builder
	last := 0
	for i, at := range marks {
		b.WriteString(e.SQL[last:at])
		b.WriteString(q.Arg(e.Args[i]))
		last = at + 1
	}
	b.WriteString(e.SQL[last:])
	return b.String(), nil
}

// markers returns the byte offsets of ? outside single-quoted literals.
func markers(sql string) []int {
	var out []int
	quoted := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			quoted = !quoted
		case '?':
			if !quoted {
				out = append(out, i)
			}
		}
	}
	return out
}

// Where joins non-empty conditions with AND, prefixed by WHERE.
func Where(conds ...string) string {
	kept := conds[:0:0]
	for _, c := range conds {
		if c != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(kept, " AND ")
}

var dollarParam = regexp.MustCompile(`\$\d+`)

// formatQMark replaces every $n token, in text order, with ?. The regexp
// consumes whole digit runs, so $10 becomes ? and never ?0.
func formatQMark(query string) string {
	return dollarParam.ReplaceAllString(query, "?")
}
