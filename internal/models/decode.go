package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/HendryAvila/taskr/internal/db"
)

// Row decoding tolerates both backends: PostgreSQL hands back native
// time.Time, []any arrays and decoded JSONB maps; SQLite hands back text.

func rowString(r db.Row, key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func rowTime(r db.Row, key string) time.Time {
	t, _ := db.ParseTime(r[key])
	return t
}

func rowTimePtr(r db.Row, key string) *time.Time {
	t, ok := db.ParseTime(r[key])
	if !ok {
		return nil
	}
	return &t
}

func rowTags(r db.Row, key string) []string {
	out := []string{}
	switch v := r[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
	case string:
		if v != "" {
			_ = json.Unmarshal([]byte(v), &out)
		}
	case []byte:
		_ = json.Unmarshal(v, &out)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func rowJSON(r db.Row, key string) map[string]any {
	out := map[string]any{}
	switch v := r[key].(type) {
	case map[string]any:
		return v
	case string:
		if v != "" {
			_ = json.Unmarshal([]byte(v), &out)
		}
	case []byte:
		_ = json.Unmarshal(v, &out)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}
