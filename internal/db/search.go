package db

import (
	"fmt"
	"strings"
)

func (r SearchRequest) validate() error {
	if err := checkIdentifiers(r.Table); err != nil {
		return err
	}
	if len(r.Columns) == 0 {
		return fmt.Errorf("%w: no search columns", ErrIdentifier)
	}
	if err := checkIdentifiers(r.Columns...); err != nil {
		return err
	}
	return checkIdentifiers(r.Select...)
}

func (r SearchRequest) limit() int {
	if r.Limit <= 0 {
		return defaultSearchLimit
	}
	return r.Limit
}

func (r SearchRequest) projection() string {
	if len(r.Select) == 0 {
		return "*"
	}
	return strings.Join(r.Select, ", ")
}

// substringSearch builds the unranked fallback: any column contains the
// query, newest first.
func substringSearch(d Dialect, r SearchRequest) (string, []any, error) {
	q := NewQuery(d)
	pattern := "%" + r.Query + "%"
	likes := make([]string, 0, len(r.Columns))
	for _, col := range r.Columns {
		likes = append(likes, fmt.Sprintf("%s %s %s", col, d.Like(), q.Arg(pattern)))
	}
	conds := []string{"(" + strings.Join(likes, " OR ") + ")", "deleted_at IS NULL"}
	extra, err := q.Expr(r.Where)
	if err != nil {
		return "", nil, err
	}
	if extra != "" {
		conds = append(conds, "("+extra+")")
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC LIMIT %s",
		r.projection(), d.Table(r.Table), Where(conds...), q.Arg(r.limit()))
	return sql, q.Args(), nil
}

// rankedSearch builds the full-text query against the search_vector column.
func rankedSearch(d Dialect, r SearchRequest) (string, []any, error) {
	q := NewQuery(d)
	tsq := fmt.Sprintf("plainto_tsquery('english', %s)", q.Arg(r.Query))
	conds := []string{"deleted_at IS NULL"}
	extra, err := q.Expr(r.Where)
	if err != nil {
		return "", nil, err
	}
	if extra != "" {
		conds = append(conds, "("+extra+")")
	}
	conds = append(conds, "search_vector @@ "+tsq)
	sql := fmt.Sprintf("SELECT %s, ts_rank(search_vector, %s) AS _rank FROM %s%s ORDER BY _rank DESC LIMIT %s",
		r.projection(), tsq, d.Table(r.Table), Where(conds...), q.Arg(r.limit()))
	return sql, q.Args(), nil
}
