package tools

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/services"
)

func TestHealthTool(t *testing.T) {
	env := newTestEnv(t)
	out := decode[map[string]interface{}](t, call(t, NewHealthTool(env.adapter, testIdentity), nil))
	if out["status"] != db.StatusHealthy || out["database_type"] != "sqlite" {
		t.Errorf("health = %v", out)
	}
	if out["supports_fts"] != false || out["agent_id"] != "agent-a" || out["author"] != "alice" {
		t.Errorf("health = %v", out)
	}
}

func TestMigrateTool_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	out := decode[migrateResult](t, call(t, NewMigrateTool(env.adapter, nil), nil))
	if len(out.AppliedNow) != 0 || len(out.Pending) != 0 || len(out.Applied) == 0 {
		t.Errorf("migrate on migrated db = %+v", out)
	}
}

func TestSQLQueryTool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, title := range []string{"one", "two"} {
		if _, err := env.tasks.Create(ctx, services.CreateTaskParams{Title: title}); err != nil {
			t.Fatal(err)
		}
	}
	tool := NewSQLQueryTool(env.adapter)

	out := decode[queryResult](t, call(t, tool, map[string]interface{}{
		"query":  "SELECT title, status FROM tasks WHERE title = $1",
		"params": []interface{}{"two"},
	}))
	if !out.Success || out.RowCount != 1 || out.Rows[0]["title"] != "two" {
		t.Errorf("select = %+v", out)
	}
	if strings.Join(out.Columns, ",") != "status,title" {
		t.Errorf("columns = %v", out.Columns)
	}

	cte := decode[queryResult](t, call(t, tool, map[string]interface{}{
		"query": "  with t AS (SELECT id FROM tasks) SELECT COUNT(*) AS n FROM t",
	}))
	if cte.RowCount != 1 {
		t.Errorf("with = %+v", cte)
	}

	msg := callErr(t, tool, map[string]interface{}{"query": "DELETE FROM tasks"})
	if !strings.Contains(msg, "read_only") {
		t.Errorf("write in read_only mode = %q", msg)
	}

	del := decode[queryResult](t, call(t, tool, map[string]interface{}{
		"query": "UPDATE tasks SET priority = 'low'", "read_only": false,
	}))
	if del.RowsAffected == nil || *del.RowsAffected != 2 || del.RowCount != 0 {
		t.Errorf("update = %+v", del)
	}

	if msg := callErr(t, tool, map[string]interface{}{"query": "SELECT * FROM nowhere"}); !strings.HasPrefix(msg, "Query failed") {
		t.Errorf("bad query = %q", msg)
	}
}

func TestSQLMigrateTool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tool := NewSQLMigrateTool(env.adapter, testIdentity, nil)
	script := "CREATE TABLE notes (id TEXT PRIMARY KEY); INSERT INTO notes VALUES ('a');"

	dry := decode[sqlMigrateResult](t, call(t, tool, map[string]interface{}{
		"sql": script, "reason": "add notes", "dry_run": true,
	}))
	if !dry.DryRun || dry.Success || len(dry.Statements) != 2 || dry.ExecutedBy != "agent-a" {
		t.Errorf("dry run = %+v", dry)
	}
	if n, _ := env.adapter.FetchScalar(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'notes'"); n != int64(0) {
		t.Fatal("dry run created the table")
	}

	run := decode[sqlMigrateResult](t, call(t, tool, map[string]interface{}{
		"sql": script, "reason": "add notes", "executed_by": "ops",
	}))
	if !run.Success || !run.Audited || run.ExecutedBy != "ops" {
		t.Errorf("run = %+v", run)
	}
	row, err := env.adapter.FetchOne(ctx, "SELECT reason, executed_by FROM sql_audit_log")
	if err != nil || row == nil || row["reason"] != "add notes" || row["executed_by"] != "ops" {
		t.Errorf("audit row = %v, %v", row, err)
	}

	// The second statement fails, so the first must roll back.
	msg := callErr(t, tool, map[string]interface{}{
		"sql":    "CREATE TABLE extra (id TEXT); INSERT INTO missing VALUES (1)",
		"reason": "broken",
	})
	if !strings.Contains(msg, "rolled back") || !strings.Contains(msg, "statement 2") {
		t.Errorf("failed migration = %q", msg)
	}
	if n, _ := env.adapter.FetchScalar(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'extra'"); n != int64(0) {
		t.Error("failed migration left a table behind")
	}

	if msg := callErr(t, tool, map[string]interface{}{"sql": " ; ", "reason": "nothing"}); !strings.Contains(msg, "no statements") {
		t.Errorf("empty script = %q", msg)
	}
}

func TestSQLMigrateTool_SemicolonInLiteral(t *testing.T) {
	env := newTestEnv(t)
	tool := NewSQLMigrateTool(env.adapter, testIdentity, nil)
	run := decode[sqlMigrateResult](t, call(t, tool, map[string]interface{}{
		"sql":    "CREATE TABLE notes (body TEXT);\nINSERT INTO notes VALUES ('a;b');",
		"reason": "literal with semicolon",
	}))
	if !run.Success || len(run.Statements) != 2 {
		t.Fatalf("run = %+v", run)
	}
	body, err := env.adapter.FetchScalar(context.Background(), "SELECT body FROM notes")
	if err != nil || body != "a;b" {
		t.Errorf("body = %v, %v", body, err)
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := strings.Repeat("a", 9) + "é" // é is two bytes
	if got := truncateUTF8(s, 10); got != strings.Repeat("a", 9) {
		t.Errorf("truncateUTF8 split a rune: %q", got)
	}
	if got := truncateUTF8(s, 11); got != s {
		t.Errorf("truncateUTF8(s, len) = %q", got)
	}
	if got := truncateUTF8("日本語", 4); got != "日" || !utf8.ValidString(got) {
		t.Errorf("truncateUTF8(日本語, 4) = %q", got)
	}
}
