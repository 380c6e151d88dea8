package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/models"
)

const tasksTable = "tasks"

// TaskService manages tasks.
type TaskService struct {
	base
}

// NewTaskService creates a TaskService over a.
func NewTaskService(a db.Adapter, opts ...Option) *TaskService {
	return &TaskService{base: newBase(a, opts)}
}

// CreateTaskParams holds the input for a new task.
type CreateTaskParams struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// TaskUpdate holds partial update fields. Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	// ClearCompleted resets completed_at, e.g. when reopening a task.
	ClearCompleted bool `json:"clear_completed,omitempty"`
}

func (u TaskUpdate) empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.Priority == nil &&
		u.Assignee == nil && u.Tags == nil && u.DueAt == nil && !u.ClearCompleted
}

// TaskFilter holds AND-combined list filters.
type TaskFilter struct {
	Status    string   `json:"status,omitempty"`
	Priority  string   `json:"priority,omitempty"`
	Assignee  string   `json:"assignee,omitempty"`
	CreatedBy string   `json:"created_by,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
}

var taskSelect = strings.Join(models.TaskColumns, ", ")

// Create validates and inserts a task.
func (s *TaskService) Create(ctx context.Context, p CreateTaskParams) (*models.Task, error) {
	t, err := models.NewTask(p.Title, p.Status, p.Priority, s.clock.tick())
	if err != nil {
		return nil, err
	}
	t.Description = p.Description
	t.Assignee = p.Assignee
	t.CreatedBy = p.CreatedBy
	t.DueAt = p.DueAt
	if p.Tags != nil {
		t.Tags = p.Tags
	}
	if t.Status == models.StatusDone {
		done := t.CreatedAt
		t.CompletedAt = &done
	}

	q := db.NewQuery(s.dialect())
	values := []string{
		q.Arg(t.ID), q.Arg(t.Title), q.Arg(nullable(t.Description)), q.Arg(t.Status), q.Arg(t.Priority),
		q.Arg(nullable(t.Assignee)), q.Tags(t.Tags), q.Arg(nullable(t.CreatedBy)),
		q.Time(t.CreatedAt), q.Time(t.UpdatedAt), s.optionalTime(q, t.DueAt), s.optionalTime(q, t.CompletedAt),
	}
	sql := fmt.Sprintf(`INSERT INTO %s
		(id, title, description, status, priority, assignee, tags, created_by, created_at, updated_at, due_at, completed_at)
		VALUES (%s)`, q.Table(tasksTable), strings.Join(values, ", "))
	if _, err := s.db.Execute(ctx, sql, q.Args()...); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("task created", "id", t.ID, "title", t.Title)
	return t, nil
}

func (s *TaskService) optionalTime(q *db.Query, t *time.Time) string {
	if t == nil {
		return q.Arg(nil)
	}
	return q.Time(*t)
}

// Get returns the task, or nil when it does not exist or is soft-deleted.
func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	q := db.NewQuery(s.dialect())
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s AND deleted_at IS NULL",
		taskSelect, q.Table(tasksTable), q.Arg(id))
	row, err := s.db.FetchOne(ctx, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return models.TaskFromRow(row), nil
}

// Update writes only the supplied fields in one statement. Setting status
// to done also sets completed_at; other statuses leave it alone. An empty
// update is a Get. Returns nil when the task does not exist.
func (s *TaskService) Update(ctx context.Context, id string, u TaskUpdate) (*models.Task, error) {
	if u.Status != nil {
		if err := models.ValidateStatus(*u.Status); err != nil {
			return nil, err
		}
	}
	if u.Priority != nil {
		if err := models.ValidatePriority(*u.Priority); err != nil {
			return nil, err
		}
	}
	if u.Title != nil {
		if err := models.Required("title", *u.Title); err != nil {
			return nil, err
		}
	}
	if u.empty() {
		return s.Get(ctx, id)
	}

	now := s.clock.tick()
	q := db.NewQuery(s.dialect())
	var sets []string
	if u.Title != nil {
		sets = append(sets, "title = "+q.Arg(*u.Title))
	}
	if u.Description != nil {
		sets = append(sets, "description = "+q.Arg(nullable(*u.Description)))
	}
	if u.Status != nil {
		sets = append(sets, "status = "+q.Arg(*u.Status))
		if *u.Status == models.StatusDone {
			sets = append(sets, "completed_at = "+q.Time(now))
		}
	}
	if u.ClearCompleted && (u.Status == nil || *u.Status != models.StatusDone) {
		sets = append(sets, "completed_at = NULL")
	}
	if u.Priority != nil {
		sets = append(sets, "priority = "+q.Arg(*u.Priority))
	}
	if u.Assignee != nil {
		sets = append(sets, "assignee = "+q.Arg(nullable(*u.Assignee)))
	}
	if u.Tags != nil {
		sets = append(sets, "tags = "+q.Tags(u.Tags))
	}
	if u.DueAt != nil {
		sets = append(sets, "due_at = "+q.Time(*u.DueAt))
	}
	sets = append(sets, "updated_at = "+q.Time(now))

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s AND deleted_at IS NULL RETURNING %s",
		q.Table(tasksTable), strings.Join(sets, ", "), q.Arg(id), taskSelect)
	row, err := s.db.FetchOne(ctx, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return models.TaskFromRow(row), nil
}

// Delete soft-deletes the task and reports whether a row was affected.
func (s *TaskService) Delete(ctx context.Context, id string) (bool, error) {
	now := s.clock.tick()
	q := db.NewQuery(s.dialect())
	sql := fmt.Sprintf("UPDATE %s SET deleted_at = %s, updated_at = %s WHERE id = %s AND deleted_at IS NULL",
		q.Table(tasksTable), q.Time(now), q.Time(now), q.Arg(id))
	res, err := s.db.Execute(ctx, sql, q.Args()...)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// List returns live tasks matching f, newest first.
func (s *TaskService) List(ctx context.Context, f TaskFilter) ([]*models.Task, error) {
	if f.Status != "" {
		if err := models.ValidateStatus(f.Status); err != nil {
			return nil, err
		}
	}
	if f.Priority != "" {
		if err := models.ValidatePriority(f.Priority); err != nil {
			return nil, err
		}
	}

	q := db.NewQuery(s.dialect())
	conds := []string{"deleted_at IS NULL"}
	if f.Status != "" {
		conds = append(conds, "status = "+q.Arg(f.Status))
	}
	if f.Priority != "" {
		conds = append(conds, "priority = "+q.Arg(f.Priority))
	}
	if f.Assignee != "" {
		conds = append(conds, "assignee = "+q.Arg(f.Assignee))
	}
	if f.CreatedBy != "" {
		conds = append(conds, "created_by = "+q.Arg(f.CreatedBy))
	}
	if len(f.Tags) > 0 {
		conds = append(conds, q.TagsOverlap("tags", f.Tags))
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		taskSelect, q.Table(tasksTable), db.Where(conds...),
		q.Arg(clampLimit(f.Limit, defaultListLimit)), q.Arg(max(f.Offset, 0)))

	rows, err := s.db.Fetch(ctx, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasksFromRows(rows), nil
}

// Search matches title and description, optionally within one status.
func (s *TaskService) Search(ctx context.Context, query, status string, limit int) ([]*models.Task, error) {
	req := db.SearchRequest{
		Table:   tasksTable,
		Query:   query,
		Columns: []string{"title", "description"},
		Select:  models.TaskColumns,
		Limit:   clampLimit(limit, defaultSearchLimit),
	}
	if status != "" {
		if err := models.ValidateStatus(status); err != nil {
			return nil, err
		}
		req.Where = db.E("status = ?", status)
	}
	rows, err := s.db.SearchText(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	return tasksFromRows(rows), nil
}

// Assign sets the assignee.
func (s *TaskService) Assign(ctx context.Context, id, assignee string) (*models.Task, error) {
	return s.Update(ctx, id, TaskUpdate{Assignee: &assignee})
}

// Close marks the task done.
func (s *TaskService) Close(ctx context.Context, id string) (*models.Task, error) {
	done := models.StatusDone
	return s.Update(ctx, id, TaskUpdate{Status: &done})
}

func tasksFromRows(rows []db.Row) []*models.Task {
	out := make([]*models.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.TaskFromRow(r))
	}
	return out
}
