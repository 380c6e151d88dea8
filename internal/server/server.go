// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on them.
// No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/HendryAvila/taskr/internal/config"
	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/httpapi"
	"github.com/HendryAvila/taskr/internal/migrate"
	"github.com/HendryAvila/taskr/internal/plugins"
	"github.com/HendryAvila/taskr/internal/prompts"
	"github.com/HendryAvila/taskr/internal/resources"
	"github.com/HendryAvila/taskr/internal/services"
	"github.com/HendryAvila/taskr/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Open connects the configured backend and applies pending migrations.
// The caller owns the returned adapter.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (db.Adapter, error) {
	adapter, err := db.Init(ctx, cfg.DBConfig(), db.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Database.Type, err)
	}
	if _, err := migrate.Apply(ctx, adapter, logger); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return adapter, nil
}

// toolHandler is what every tool in internal/tools implements.
type toolHandler interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func addTools(s *server.MCPServer, ts ...toolHandler) {
	for _, t := range ts {
		s.AddTool(t.Definition(), t.Handle)
	}
}

// New creates and configures the MCP server with all tools, prompts,
// resources and enabled plugins registered on adapter.
//
// The returned cleanup function shuts plugins down and closes the adapter.
// It is always non-nil and must be called on shutdown (typically via defer).
func New(cfg *config.Config, adapter db.Adapter, logger *slog.Logger) (*server.MCPServer, func(), error) {
	if adapter == nil {
		return nil, noop, fmt.Errorf("server: nil adapter")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	// --- Create shared dependencies ---

	opts := []services.Option{services.WithLogger(logger)}
	tasks := services.NewTaskService(adapter, opts...)
	devlogs := services.NewDevlogService(adapter, opts...)
	sessions := services.NewSessionService(adapter, opts...)

	identity := tools.Identity{Author: cfg.Identity.Author, AgentID: cfg.Identity.AgentID}
	activity := tools.NewActivityLog(sessions, identity.AgentID, logger)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"taskr",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register task tools ---

	addTools(s,
		tools.NewTaskListTool(tasks),
		tools.NewTaskCreateTool(tasks, identity, activity),
		tools.NewTaskShowTool(tasks),
		tools.NewTaskUpdateTool(tasks, activity),
		tools.NewTaskSearchTool(tasks),
		tools.NewTaskAssignTool(tasks, activity),
		tools.NewTaskCloseTool(tasks, activity),
		tools.NewTaskDeleteTool(tasks),
	)

	// --- Register devlog tools ---

	addTools(s,
		tools.NewDevlogAddTool(devlogs, identity, activity),
		tools.NewDevlogListTool(devlogs),
		tools.NewDevlogGetTool(devlogs),
		tools.NewDevlogSearchTool(devlogs),
		tools.NewDevlogUpdateTool(devlogs),
		tools.NewDevlogDeleteTool(devlogs),
	)

	// --- Register session and coordination tools ---

	addTools(s,
		tools.NewSessionStartTool(sessions, identity),
		tools.NewSessionEndTool(sessions),
		tools.NewSessionListTool(sessions),
		tools.NewClaimWorkTool(sessions, identity),
		tools.NewReleaseWorkTool(sessions, identity),
		tools.NewWhatChangedTool(sessions),
	)

	// --- Register utility tools ---

	addTools(s,
		tools.NewHealthTool(adapter, identity),
		tools.NewMigrateTool(adapter, logger),
		tools.NewSQLQueryTool(adapter),
		tools.NewSQLMigrateTool(adapter, identity, logger),
	)

	// --- Register prompts ---

	workflowPrompt := prompts.NewWorkflowPrompt()
	s.AddPrompt(workflowPrompt.Definition(), workflowPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(adapter)
	s.AddResource(resourceHandler.HealthResource(), resourceHandler.HandleHealth)
	s.AddResource(resourceHandler.CategoriesResource(), resourceHandler.HandleCategories)

	// --- Load plugins ---

	registry := plugins.NewRegistry(logger)
	if err := registry.RegisterBuiltin(plugins.NewContextPlugin()); err != nil {
		return nil, noop, fmt.Errorf("registering built-in plugins: %w", err)
	}
	registry.Load(context.Background(), s, plugins.LoadOptions{
		Enabled:  cfg.Plugins.Enabled,
		Caps:     adapter.Capabilities(),
		Settings: cfg.Plugins.Settings,
		Adapter:  adapter,
	})

	cleanup := func() {
		registry.Shutdown()
		if err := adapter.Close(); err != nil {
			logger.Warn("closing database", "error", err)
		}
	}
	return s, cleanup, nil
}

// HTTPHandler serves s over the streamable HTTP transport at /mcp, next to
// the read-only JSON API on the same adapter.
func HTTPHandler(s *server.MCPServer, adapter db.Adapter, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []services.Option{services.WithLogger(logger)}
	return httpapi.New(httpapi.Config{
		Adapter:  adapter,
		Tasks:    services.NewTaskService(adapter, opts...),
		Devlogs:  services.NewDevlogService(adapter, opts...),
		Sessions: services.NewSessionService(adapter, opts...),
		MCP:      server.NewStreamableHTTPServer(s),
		Version:  Version,
		Logger:   logger,
	})
}

// noop is the cleanup returned when New fails.
func noop() {}

// serverInstructions tells the agent how the tools fit together.
func serverInstructions() string {
	return `You have access to taskr, a shared task tracker and development log
for coding agents. Several agents may use the same database at once.

## SESSION PROTOCOL

1. Start every work period with session_start. Read handoff_notes and
   last_summary: they were written by your previous session for you.
2. Before starting an issue, PR, QA job or task, call claim_work. If the
   result has claimed=false, another agent owns it: pick something else.
3. When you finish or get blocked, call release_work with status
   completed, blocked or deferred.
4. End with session_end, giving a summary and handoff_notes.

Use what_changed to catch up on what other agents did while you were away.

## TASKS

taskr_create, taskr_list, taskr_show, taskr_update, taskr_assign,
taskr_close, taskr_search and taskr_delete manage tasks. Statuses are open,
in_progress, done and cancelled. Setting done records completion time.

## DEVLOGS

Devlogs are long-term memory. Run devlog_search before non-trivial work
and devlog_add after decisions, incidents, deployments or anything a future
agent would otherwise have to rediscover.

## UTILITIES

taskr_health reports the backend. taskr_sql_query runs read-only SQL
unless read_only=false. taskr_sql_migrate runs audited schema changes.`
}
