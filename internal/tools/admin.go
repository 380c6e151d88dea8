package tools

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/migrate"
	"github.com/mark3labs/mcp-go/mcp"
)

// auditTextLimit caps how much of a migration script the audit log keeps.
const auditTextLimit = 10000

func elapsedMS(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}

// readOnlyStatement reports whether sql starts with SELECT or WITH.
func readOnlyStatement(sql string) bool {
	s := strings.ToUpper(strings.TrimSpace(sql))
	return strings.HasPrefix(s, "SELECT") || strings.HasPrefix(s, "WITH")
}

// ─── HealthTool ─────────────────────────────────────────────────────────────

// HealthTool handles the taskr_health MCP tool.
type HealthTool struct {
	adapter  db.Adapter
	identity Identity
}

// NewHealthTool creates a HealthTool.
func NewHealthTool(adapter db.Adapter, identity Identity) *HealthTool {
	return &HealthTool{adapter: adapter, identity: identity}
}

// Definition returns the MCP tool definition for taskr_health.
func (t *HealthTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_health",
		mcp.WithDescription("Check database connectivity. Reports the backend, its capabilities and the server identity."),
	)
}

type healthResult struct {
	db.HealthReport
	AgentID string `json:"agent_id"`
	Author  string `json:"author,omitempty"`
}

// Handle processes the taskr_health tool call.
func (t *HealthTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(healthResult{
		HealthReport: db.Health(ctx, t.adapter),
		AgentID:      t.identity.AgentID,
		Author:       t.identity.Author,
	})
}

// ─── MigrateTool ────────────────────────────────────────────────────────────

// MigrateTool handles the taskr_migrate MCP tool.
type MigrateTool struct {
	adapter db.Adapter
	logger  *slog.Logger
}

// NewMigrateTool creates a MigrateTool.
func NewMigrateTool(adapter db.Adapter, logger *slog.Logger) *MigrateTool {
	return &MigrateTool{adapter: adapter, logger: logger}
}

// Definition returns the MCP tool definition for taskr_migrate.
func (t *MigrateTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_migrate",
		mcp.WithDescription("Apply pending schema migrations. Safe to run repeatedly."),
	)
}

type migrateResult struct {
	Status     string   `json:"status"`
	AppliedNow []string `json:"applied_now"`
	Applied    []string `json:"applied"`
	Pending    []string `json:"pending"`
}

// Handle processes the taskr_migrate tool call.
func (t *MigrateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ran, err := migrate.Apply(ctx, t.adapter, t.logger)
	if err != nil {
		return errorResult("migrate", err), nil
	}
	st, err := migrate.Check(ctx, t.adapter)
	if err != nil {
		return errorResult("check migrations", err), nil
	}
	if ran == nil {
		ran = []string{}
	}
	return jsonResult(migrateResult{
		Status:     "migrations complete",
		AppliedNow: ran,
		Applied:    st.Applied,
		Pending:    st.Pending,
	})
}

// ─── SQLQueryTool ───────────────────────────────────────────────────────────

// SQLQueryTool handles the taskr_sql_query MCP tool.
type SQLQueryTool struct {
	adapter db.Adapter
}

// NewSQLQueryTool creates a SQLQueryTool.
func NewSQLQueryTool(adapter db.Adapter) *SQLQueryTool {
	return &SQLQueryTool{adapter: adapter}
}

// Definition returns the MCP tool definition for taskr_sql_query.
func (t *SQLQueryTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_sql_query",
		mcp.WithDescription(
			"Run a SQL statement against the taskr database. Only SELECT and WITH "+
				"are allowed unless read_only is false. Use $1, $2, ... for params. "+
				"On PostgreSQL tables live in the taskr schema (taskr.tasks).",
		),
		mcp.WithString("query", mcp.Required(), mcp.Description("SQL to execute")),
		mcp.WithArray("params", mcp.Description("Positional parameters"), stringItems),
		mcp.WithBoolean("read_only", mcp.Description("Reject anything but SELECT/WITH (default true)")),
	)
}

type queryResult struct {
	Success         bool     `json:"success"`
	Rows            []db.Row `json:"rows"`
	RowCount        int      `json:"row_count"`
	Columns         []string `json:"columns"`
	RowsAffected    *int64   `json:"rows_affected,omitempty"`
	ExecutionTimeMS float64  `json:"execution_time_ms"`
}

// Handle processes the taskr_sql_query tool call.
func (t *SQLQueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, bad := required(req, "query")
	if bad != nil {
		return bad, nil
	}
	reads := readOnlyStatement(query)
	if boolArg(req, "read_only", true) && !reads {
		return mcp.NewToolResultError(
			"Only SELECT queries allowed in read_only mode. Set read_only=false for write operations."), nil
	}
	var args []any
	for _, p := range stringsArg(req, "params") {
		args = append(args, p)
	}

	start := time.Now()
	out := queryResult{Success: true, Rows: []db.Row{}, Columns: []string{}}
	if reads {
		rows, err := t.adapter.Fetch(ctx, query, args...)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Query failed: %v", err)), nil
		}
		if rows != nil {
			out.Rows = rows
		}
	} else {
		res, err := t.adapter.Execute(ctx, query, args...)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Query failed: %v", err)), nil
		}
		out.RowsAffected = &res.RowsAffected
	}
	out.ExecutionTimeMS = elapsedMS(time.Since(start))
	out.RowCount = len(out.Rows)
	if len(out.Rows) > 0 {
		for col := range out.Rows[0] {
			out.Columns = append(out.Columns, col)
		}
		sort.Strings(out.Columns)
	}
	return jsonResult(out)
}

// ─── SQLMigrateTool ─────────────────────────────────────────────────────────

// SQLMigrateTool handles the taskr_sql_migrate MCP tool.
type SQLMigrateTool struct {
	adapter  db.Adapter
	identity Identity
	logger   *slog.Logger
}

// NewSQLMigrateTool creates a SQLMigrateTool.
func NewSQLMigrateTool(adapter db.Adapter, identity Identity, logger *slog.Logger) *SQLMigrateTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLMigrateTool{adapter: adapter, identity: identity, logger: logger}
}

// Definition returns the MCP tool definition for taskr_sql_migrate.
func (t *SQLMigrateTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_sql_migrate",
		mcp.WithDescription(
			"Run an ad-hoc SQL migration script all-or-nothing in one transaction. "+
				"Each run is recorded in sql_audit_log with its reason.",
		),
		mcp.WithString("sql", mcp.Required(), mcp.Description("Statements separated by semicolons")),
		mcp.WithString("reason", mcp.Required(), mcp.Description("Why this migration is run")),
		mcp.WithString("executed_by", mcp.Description("Who runs it (default: configured agent)")),
		mcp.WithBoolean("dry_run", mcp.Description("Preview without executing")),
	)
}

type sqlMigrateResult struct {
	Success         bool     `json:"success"`
	DryRun          bool     `json:"dry_run,omitempty"`
	Reason          string   `json:"reason"`
	ExecutedBy      string   `json:"executed_by"`
	Statements      []string `json:"statements"`
	ExecutionTimeMS float64  `json:"execution_time_ms"`
	Audited         bool     `json:"audited"`
	Message         string   `json:"message,omitempty"`
}

// Handle processes the taskr_sql_migrate tool call.
func (t *SQLMigrateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	script, bad := required(req, "sql")
	if bad != nil {
		return bad, nil
	}
	reason, bad := required(req, "reason")
	if bad != nil {
		return bad, nil
	}
	out := sqlMigrateResult{
		Reason:     reason,
		ExecutedBy: req.GetString("executed_by", t.identity.AgentID),
		Statements: migrate.SplitStatements(script),
	}
	if len(out.Statements) == 0 {
		return mcp.NewToolResultError("'sql' contains no statements"), nil
	}
	if boolArg(req, "dry_run", false) {
		out.DryRun = true
		out.Message = "SQL not executed (dry_run=true)"
		return jsonResult(out)
	}

	start := time.Now()
	err := t.adapter.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		for i, stmt := range out.Statements {
			if _, err := tx.Execute(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	})
	out.ExecutionTimeMS = elapsedMS(time.Since(start))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Migration failed, rolled back: %v", err)), nil
	}
	out.Success = true
	out.Audited = t.audit(ctx, script, out)
	t.logger.Info("sql migration executed", "reason", reason, "by", out.ExecutedBy, "statements", len(out.Statements))
	return jsonResult(out)
}

// audit records a successful run. The migration has already committed, so
// a failure here is only logged.
func (t *SQLMigrateTool) audit(ctx context.Context, script string, r sqlMigrateResult) bool {
	script = truncateUTF8(script, auditTextLimit)
	q := db.NewQuery(t.adapter.Dialect())
	sql := fmt.Sprintf(
		"INSERT INTO %s (sql_text, reason, executed_by, execution_time_ms, executed_at) VALUES (%s, %s, %s, %s, %s)",
		q.Table("sql_audit_log"), q.Arg(script), q.Arg(r.Reason), q.Arg(r.ExecutedBy),
		q.Arg(r.ExecutionTimeMS), q.Time(db.Now()))
	if _, err := t.adapter.Execute(ctx, sql, q.Args()...); err != nil {
		t.logger.Warn("sql migration not audited", "error", err)
		return false
	}
	return true
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
