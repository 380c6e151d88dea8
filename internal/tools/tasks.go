package tools

import (
	"context"
	"strings"

	"github.com/HendryAvila/taskr/internal/models"
	"github.com/HendryAvila/taskr/internal/services"
	"github.com/mark3labs/mcp-go/mcp"
)

var (
	statusEnum   = mcp.Enum(models.TaskStatuses...)
	priorityEnum = mcp.Enum(models.TaskPriorities...)
	stringItems  = mcp.Items(map[string]any{"type": "string"})
)

type taskList struct {
	Tasks []*models.Task `json:"tasks"`
	Count int            `json:"count"`
	Query string         `json:"query,omitempty"`
}

// ─── TaskListTool ───────────────────────────────────────────────────────────

// TaskListTool handles the taskr_list MCP tool.
type TaskListTool struct {
	tasks *services.TaskService
}

// NewTaskListTool creates a TaskListTool.
func NewTaskListTool(tasks *services.TaskService) *TaskListTool {
	return &TaskListTool{tasks: tasks}
}

// Definition returns the MCP tool definition for taskr_list.
func (t *TaskListTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_list",
		mcp.WithDescription("List tasks, newest first, with optional filters."),
		mcp.WithString("status", mcp.Description("Filter by status"), statusEnum),
		mcp.WithString("priority", mcp.Description("Filter by priority"), priorityEnum),
		mcp.WithString("assignee", mcp.Description("Filter by assignee")),
		mcp.WithArray("tags", mcp.Description("Match tasks carrying any of these tags"), stringItems),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Results to skip")),
	)
}

// Handle processes the taskr_list tool call.
func (t *TaskListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := t.tasks.List(ctx, services.TaskFilter{
		Status:   req.GetString("status", ""),
		Priority: req.GetString("priority", ""),
		Assignee: req.GetString("assignee", ""),
		Tags:     stringsArg(req, "tags"),
		Limit:    intArg(req, "limit", 50),
		Offset:   intArg(req, "offset", 0),
	})
	if err != nil {
		return errorResult("list tasks", err), nil
	}
	return jsonResult(taskList{Tasks: tasks, Count: len(tasks)})
}

// ─── TaskCreateTool ─────────────────────────────────────────────────────────

// TaskCreateTool handles the taskr_create MCP tool.
type TaskCreateTool struct {
	tasks    *services.TaskService
	identity Identity
	activity *ActivityLog
}

// NewTaskCreateTool creates a TaskCreateTool. Tasks are attributed to
// identity.Author.
func NewTaskCreateTool(tasks *services.TaskService, identity Identity, activity *ActivityLog) *TaskCreateTool {
	return &TaskCreateTool{tasks: tasks, identity: identity, activity: activity}
}

// Definition returns the MCP tool definition for taskr_create.
func (t *TaskCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_create",
		mcp.WithDescription("Create a new task."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("status", mcp.Description("Status (default open)"), statusEnum),
		mcp.WithString("priority", mcp.Description("Priority (default medium)"), priorityEnum),
		mcp.WithString("assignee", mcp.Description("Assign to username")),
		mcp.WithArray("tags", mcp.Description("Tags"), stringItems),
		mcp.WithString("due_at", mcp.Description("Due date, RFC 3339 or YYYY-MM-DD")),
	)
}

// Handle processes the taskr_create tool call.
func (t *TaskCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, bad := required(req, "title")
	if bad != nil {
		return bad, nil
	}
	due, err := timeArg(req, "due_at")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task, err := t.tasks.Create(ctx, services.CreateTaskParams{
		Title:       title,
		Description: req.GetString("description", ""),
		Status:      req.GetString("status", ""),
		Priority:    req.GetString("priority", ""),
		Assignee:    req.GetString("assignee", ""),
		Tags:        stringsArg(req, "tags"),
		CreatedBy:   t.identity.Author,
		DueAt:       due,
	})
	if err != nil {
		return errorResult("create task", err), nil
	}
	t.activity.record(ctx, models.ActivityCreateTask, "task", task.ID, task.Title)
	return jsonResult(task)
}

// ─── TaskShowTool ───────────────────────────────────────────────────────────

// TaskShowTool handles the taskr_show MCP tool.
type TaskShowTool struct {
	tasks *services.TaskService
}

// NewTaskShowTool creates a TaskShowTool.
func NewTaskShowTool(tasks *services.TaskService) *TaskShowTool {
	return &TaskShowTool{tasks: tasks}
}

// Definition returns the MCP tool definition for taskr_show.
func (t *TaskShowTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_show",
		mcp.WithDescription("Get full details of a task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
	)
}

// Handle processes the taskr_show tool call.
func (t *TaskShowTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := required(req, "task_id")
	if bad != nil {
		return bad, nil
	}
	task, err := t.tasks.Get(ctx, id)
	if err != nil {
		return errorResult("get task", err), nil
	}
	if task == nil {
		return notFound("Task", id), nil
	}
	return jsonResult(task)
}

// ─── TaskUpdateTool ─────────────────────────────────────────────────────────

// TaskUpdateTool handles the taskr_update MCP tool.
type TaskUpdateTool struct {
	tasks    *services.TaskService
	activity *ActivityLog
}

// NewTaskUpdateTool creates a TaskUpdateTool.
func NewTaskUpdateTool(tasks *services.TaskService, activity *ActivityLog) *TaskUpdateTool {
	return &TaskUpdateTool{tasks: tasks, activity: activity}
}

// Definition returns the MCP tool definition for taskr_update.
func (t *TaskUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_update",
		mcp.WithDescription(
			"Update an existing task. Only the fields given are changed. "+
				"Setting status to done records the completion time.",
		),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New status"), statusEnum),
		mcp.WithString("priority", mcp.Description("New priority"), priorityEnum),
		mcp.WithString("assignee", mcp.Description("New assignee")),
		mcp.WithArray("tags", mcp.Description("New tags (replaces existing)"), stringItems),
		mcp.WithString("due_at", mcp.Description("New due date, RFC 3339 or YYYY-MM-DD")),
		mcp.WithBoolean("clear_completed", mcp.Description("Reset the completion time, e.g. when reopening")),
	)
}

// Handle processes the taskr_update tool call.
func (t *TaskUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := required(req, "task_id")
	if bad != nil {
		return bad, nil
	}
	due, err := timeArg(req, "due_at")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	u := services.TaskUpdate{
		Title:          optString(req, "title"),
		Description:    optString(req, "description"),
		Status:         optString(req, "status"),
		Priority:       optString(req, "priority"),
		Assignee:       optString(req, "assignee"),
		Tags:           stringsArg(req, "tags"),
		DueAt:          due,
		ClearCompleted: boolArg(req, "clear_completed", false),
	}
	task, err := t.tasks.Update(ctx, id, u)
	if err != nil {
		return errorResult("update task", err), nil
	}
	if task == nil {
		return notFound("Task", id), nil
	}
	t.activity.record(ctx, taskActivity(u.Status), "task", task.ID, changedFields(req))
	return jsonResult(task)
}

func taskActivity(status *string) string {
	if status != nil && *status == models.StatusDone {
		return models.ActivityCompleteTask
	}
	return models.ActivityUpdateTask
}

// changedFields names the update arguments present in req.
func changedFields(req mcp.CallToolRequest) string {
	var fields []string
	for _, k := range []string{"title", "description", "status", "priority", "assignee", "tags", "due_at"} {
		if _, ok := req.GetArguments()[k]; ok {
			fields = append(fields, k)
		}
	}
	return "updated: " + strings.Join(fields, ", ")
}

// ─── TaskSearchTool ─────────────────────────────────────────────────────────

// TaskSearchTool handles the taskr_search MCP tool.
type TaskSearchTool struct {
	tasks *services.TaskService
}

// NewTaskSearchTool creates a TaskSearchTool.
func NewTaskSearchTool(tasks *services.TaskService) *TaskSearchTool {
	return &TaskSearchTool{tasks: tasks}
}

// Definition returns the MCP tool definition for taskr_search.
func (t *TaskSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_search",
		mcp.WithDescription(
			"Search tasks by title and description. Ranked full-text search on "+
				"PostgreSQL, case-insensitive substring match on SQLite.",
		),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithString("status", mcp.Description("Optional status filter"), statusEnum),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	)
}

// Handle processes the taskr_search tool call.
func (t *TaskSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, bad := required(req, "query")
	if bad != nil {
		return bad, nil
	}
	tasks, err := t.tasks.Search(ctx, query, req.GetString("status", ""), intArg(req, "limit", 20))
	if err != nil {
		return errorResult("search tasks", err), nil
	}
	return jsonResult(taskList{Tasks: tasks, Count: len(tasks), Query: query})
}

// ─── TaskAssignTool ─────────────────────────────────────────────────────────

// TaskAssignTool handles the taskr_assign MCP tool.
type TaskAssignTool struct {
	tasks    *services.TaskService
	activity *ActivityLog
}

// NewTaskAssignTool creates a TaskAssignTool.
func NewTaskAssignTool(tasks *services.TaskService, activity *ActivityLog) *TaskAssignTool {
	return &TaskAssignTool{tasks: tasks, activity: activity}
}

// Definition returns the MCP tool definition for taskr_assign.
func (t *TaskAssignTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_assign",
		mcp.WithDescription("Assign a task to a user."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("assignee", mcp.Required(), mcp.Description("Username to assign")),
	)
}

// Handle processes the taskr_assign tool call.
func (t *TaskAssignTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := required(req, "task_id")
	if bad != nil {
		return bad, nil
	}
	assignee, bad := required(req, "assignee")
	if bad != nil {
		return bad, nil
	}
	task, err := t.tasks.Assign(ctx, id, assignee)
	if err != nil {
		return errorResult("assign task", err), nil
	}
	if task == nil {
		return notFound("Task", id), nil
	}
	t.activity.record(ctx, models.ActivityUpdateTask, "task", task.ID, "assigned to "+assignee)
	return jsonResult(task)
}

// ─── TaskCloseTool ──────────────────────────────────────────────────────────

// TaskCloseTool handles the taskr_close MCP tool.
type TaskCloseTool struct {
	tasks    *services.TaskService
	activity *ActivityLog
}

// NewTaskCloseTool creates a TaskCloseTool.
func NewTaskCloseTool(tasks *services.TaskService, activity *ActivityLog) *TaskCloseTool {
	return &TaskCloseTool{tasks: tasks, activity: activity}
}

// Definition returns the MCP tool definition for taskr_close.
func (t *TaskCloseTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_close",
		mcp.WithDescription("Mark a task as done."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
	)
}

// Handle processes the taskr_close tool call.
func (t *TaskCloseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := required(req, "task_id")
	if bad != nil {
		return bad, nil
	}
	task, err := t.tasks.Close(ctx, id)
	if err != nil {
		return errorResult("close task", err), nil
	}
	if task == nil {
		return notFound("Task", id), nil
	}
	t.activity.record(ctx, models.ActivityCompleteTask, "task", task.ID, task.Title)
	return jsonResult(task)
}

// ─── TaskDeleteTool ─────────────────────────────────────────────────────────

// TaskDeleteTool handles the taskr_delete MCP tool.
type TaskDeleteTool struct {
	tasks *services.TaskService
}

// NewTaskDeleteTool creates a TaskDeleteTool.
func NewTaskDeleteTool(tasks *services.TaskService) *TaskDeleteTool {
	return &TaskDeleteTool{tasks: tasks}
}

// Definition returns the MCP tool definition for taskr_delete.
func (t *TaskDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("taskr_delete",
		mcp.WithDescription("Soft-delete a task. It disappears from lists and searches."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
	)
}

type deleteResult struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Handle processes the taskr_delete tool call.
func (t *TaskDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := required(req, "task_id")
	if bad != nil {
		return bad, nil
	}
	ok, err := t.tasks.Delete(ctx, id)
	if err != nil {
		return errorResult("delete task", err), nil
	}
	return jsonResult(deleteResult{Deleted: ok, ID: id})
}
