package tools

import (
	"context"

	"github.com/HendryAvila/taskr/internal/models"
	"github.com/HendryAvila/taskr/internal/services"
	"github.com/mark3labs/mcp-go/mcp"
)

var categoryEnum = mcp.Enum(models.DevlogCategories...)

type devlogList struct {
	Devlogs []*models.Devlog `json:"devlogs"`
	Count   int              `json:"count"`
	Query   string           `json:"query,omitempty"`
}

// ─── DevlogAddTool ──────────────────────────────────────────────────────────

// DevlogAddTool handles the devlog_add MCP tool.
type DevlogAddTool struct {
	devlogs  *services.DevlogService
	identity Identity
	activity *ActivityLog
}

// NewDevlogAddTool creates a DevlogAddTool.
func NewDevlogAddTool(devlogs *services.DevlogService, identity Identity, activity *ActivityLog) *DevlogAddTool {
	return &DevlogAddTool{devlogs: devlogs, identity: identity, activity: activity}
}

// Definition returns the MCP tool definition for devlog_add.
func (t *DevlogAddTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_add",
		mcp.WithDescription(
			"Create a development log entry: a decision, incident, deployment or "+
				"pattern worth remembering. Devlogs are the long-term memory agents "+
				"search before starting work.",
		),
		mcp.WithString("category", mcp.Required(), mcp.Description("Entry category"), categoryEnum),
		mcp.WithString("title", mcp.Required(), mcp.Description("One-line summary")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full markdown content")),
		mcp.WithString("service_name", mcp.Description("Related service or project")),
		mcp.WithArray("tags", mcp.Description("Tags for filtering"), stringItems),
		mcp.WithObject("metadata", mcp.Description("Free-form key/value data")),
	)
}

// Handle processes the devlog_add tool call.
func (t *DevlogAddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, bad := required(req, "category")
	if bad != nil {
		return bad, nil
	}
	title, bad := required(req, "title")
	if bad != nil {
		return bad, nil
	}
	content, bad := required(req, "content")
	if bad != nil {
		return bad, nil
	}
	meta, _ := req.GetArguments()["metadata"].(map[string]any)

	d, err := t.devlogs.Add(ctx, services.CreateDevlogParams{
		Category:    category,
		Title:       title,
		Content:     content,
		Author:      t.identity.Author,
		AgentID:     t.identity.AgentID,
		ServiceName: req.GetString("service_name", ""),
		Tags:        stringsArg(req, "tags"),
		Metadata:    meta,
	})
	if err != nil {
		return errorResult("add devlog", err), nil
	}
	t.activity.record(ctx, models.ActivityCreateDevlog, "devlog", d.ID, d.Category+": "+d.Title)
	return jsonResult(d)
}

// ─── DevlogListTool ─────────────────────────────────────────────────────────

// DevlogListTool handles the devlog_list MCP tool.
type DevlogListTool struct {
	devlogs *services.DevlogService
}

// NewDevlogListTool creates a DevlogListTool.
func NewDevlogListTool(devlogs *services.DevlogService) *DevlogListTool {
	return &DevlogListTool{devlogs: devlogs}
}

// Definition returns the MCP tool definition for devlog_list.
func (t *DevlogListTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_list",
		mcp.WithDescription("List recent devlog entries, newest first."),
		mcp.WithString("category", mcp.Description("Filter by category"), categoryEnum),
		mcp.WithString("service_name", mcp.Description("Filter by service")),
		mcp.WithString("agent_id", mcp.Description("Filter by writing agent")),
		mcp.WithArray("tags", mcp.Description("Match entries carrying any of these tags"), stringItems),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
		mcp.WithNumber("offset", mcp.Description("Results to skip")),
	)
}

// Handle processes the devlog_list tool call.
func (t *DevlogListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devlogs, err := t.devlogs.List(ctx, services.DevlogFilter{
		Category:    req.GetString("category", ""),
		ServiceName: req.GetString("service_name", ""),
		AgentID:     req.GetString("agent_id", ""),
		Tags:        stringsArg(req, "tags"),
		Limit:       intArg(req, "limit", 20),
		Offset:      intArg(req, "offset", 0),
	})
	if err != nil {
		return errorResult("list devlogs", err), nil
	}
	return jsonResult(devlogList{Devlogs: devlogs, Count: len(devlogs)})
}

// ─── DevlogGetTool ──────────────────────────────────────────────────────────

// DevlogGetTool handles the devlog_get MCP tool.
type DevlogGetTool struct {
	devlogs *services.DevlogService
}

// NewDevlogGetTool creates a DevlogGetTool.
func NewDevlogGetTool(devlogs *services.DevlogService) *DevlogGetTool {
	return &DevlogGetTool{devlogs: devlogs}
}

// Definition returns the MCP tool definition for devlog_get.
func (t *DevlogGetTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_get",
		mcp.WithDescription("Get a full devlog entry by ID."),
		mcp.WithString("devlog_id", mcp.Required(), mcp.Description("Devlog ID")),
	)
}

// Handle processes the devlog_get tool call.
func (t *DevlogGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := required(req, "devlog_id")
	if bad != nil {
		return bad, nil
	}
	d, err := t.devlogs.Get(ctx, id)
	if err != nil {
		return errorResult("get devlog", err), nil
	}
	if d == nil {
		return notFound("Devlog", id), nil
	}
	return jsonResult(d)
}

// ─── DevlogSearchTool ───────────────────────────────────────────────────────

// DevlogSearchTool handles the devlog_search MCP tool.
type DevlogSearchTool struct {
	devlogs *services.DevlogService
}

// NewDevlogSearchTool creates a DevlogSearchTool.
func NewDevlogSearchTool(devlogs *services.DevlogService) *DevlogSearchTool {
	return &DevlogSearchTool{devlogs: devlogs}
}

// Definition returns the MCP tool definition for devlog_search.
func (t *DevlogSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_search",
		mcp.WithDescription(
			"Search devlogs by title and content. Ranked by relevance on "+
				"PostgreSQL, substring match on SQLite.",
		),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithString("category", mcp.Description("Optional category filter"), categoryEnum),
		mcp.WithString("service_name", mcp.Description("Optional service filter")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	)
}

// Handle processes the devlog_search tool call.
func (t *DevlogSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, bad := required(req, "query")
	if bad != nil {
		return bad, nil
	}
	devlogs, err := t.devlogs.Search(ctx, query,
		req.GetString("category", ""), req.GetString("service_name", ""), intArg(req, "limit", 20))
	if err != nil {
		return errorResult("search devlogs", err), nil
	}
	return jsonResult(devlogList{Devlogs: devlogs, Count: len(devlogs), Query: query})
}

// ─── DevlogUpdateTool ───────────────────────────────────────────────────────

// DevlogUpdateTool handles the devlog_update MCP tool.
type DevlogUpdateTool struct {
	devlogs *services.DevlogService
}

// NewDevlogUpdateTool creates a DevlogUpdateTool.
func NewDevlogUpdateTool(devlogs *services.DevlogService) *DevlogUpdateTool {
	return &DevlogUpdateTool{devlogs: devlogs}
}

// Definition returns the MCP tool definition for devlog_update.
func (t *DevlogUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_update",
		mcp.WithDescription("Update an existing devlog entry. Only the fields given are changed."),
		mcp.WithString("devlog_id", mcp.Required(), mcp.Description("Devlog ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New content")),
		mcp.WithString("category", mcp.Description("New category"), categoryEnum),
		mcp.WithString("service_name", mcp.Description("New service")),
		mcp.WithArray("tags", mcp.Description("New tags (replaces existing)"), stringItems),
		mcp.WithObject("metadata", mcp.Description("New metadata (replaces existing)")),
	)
}

// Handle processes the devlog_update tool call.
func (t *DevlogUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := required(req, "devlog_id")
	if bad != nil {
		return bad, nil
	}
	meta, _ := req.GetArguments()["metadata"].(map[string]any)
	d, err := t.devlogs.Update(ctx, id, services.DevlogUpdate{
		Category:    optString(req, "category"),
		Title:       optString(req, "title"),
		Content:     optString(req, "content"),
		ServiceName: optString(req, "service_name"),
		Tags:        stringsArg(req, "tags"),
		Metadata:    meta,
	})
	if err != nil {
		return errorResult("update devlog", err), nil
	}
	if d == nil {
		return notFound("Devlog", id), nil
	}
	return jsonResult(d)
}

// ─── DevlogDeleteTool ───────────────────────────────────────────────────────

// DevlogDeleteTool handles the devlog_delete MCP tool.
type DevlogDeleteTool struct {
	devlogs *services.DevlogService
}

// NewDevlogDeleteTool creates a DevlogDeleteTool.
func NewDevlogDeleteTool(devlogs *services.DevlogService) *DevlogDeleteTool {
	return &DevlogDeleteTool{devlogs: devlogs}
}

// Definition returns the MCP tool definition for devlog_delete.
func (t *DevlogDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("devlog_delete",
		mcp.WithDescription("Soft-delete a devlog entry."),
		mcp.WithString("devlog_id", mcp.Required(), mcp.Description("Devlog ID")),
	)
}

// Handle processes the devlog_delete tool call.
func (t *DevlogDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := required(req, "devlog_id")
	if bad != nil {
		return bad, nil
	}
	ok, err := t.devlogs.Delete(ctx, id)
	if err != nil {
		return errorResult("delete devlog", err), nil
	}
	return jsonResult(deleteResult{Deleted: ok, ID: id})
}
