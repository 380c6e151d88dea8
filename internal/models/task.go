package models

import (
	"time"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/google/uuid"
)

// Task statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

// Task priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// TaskStatuses is the closed set of task statuses.
var TaskStatuses = []string{StatusOpen, StatusInProgress, StatusDone, StatusCancelled}

// TaskPriorities is the closed set of task priorities.
var TaskPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// TaskColumns lists the persisted task columns in select order.
var TaskColumns = []string{
	"id", "title", "description", "status", "priority", "assignee", "tags", "created_by",
	"created_at", "updated_at", "due_at", "completed_at", "deleted_at",
}

// Task is a tracked work item. completed_at is maintained by the task
// service, not by this type.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Assignee    string     `json:"assignee,omitempty"`
	Tags        []string   `json:"tags"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// NewTask builds a validated open task. Empty status and priority take
// their defaults.
func NewTask(title, status, priority string, now time.Time) (*Task, error) {
	if status == "" {
		status = StatusOpen
	}
	if priority == "" {
		priority = PriorityMedium
	}
	t := &Task{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    status,
		Priority:  priority,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the title and enum fields.
func (t *Task) Validate() error {
	if err := Required("title", t.Title); err != nil {
		return err
	}
	if err := ValidateStatus(t.Status); err != nil {
		return err
	}
	return ValidatePriority(t.Priority)
}

// ValidateStatus rejects values outside TaskStatuses.
func ValidateStatus(s string) error { return checkEnum("status", s, TaskStatuses) }

// ValidatePriority rejects values outside TaskPriorities.
func ValidatePriority(p string) error { return checkEnum("priority", p, TaskPriorities) }

// IsOpen reports whether work on the task is still pending.
func (t *Task) IsOpen() bool { return t.Status == StatusOpen || t.Status == StatusInProgress }

// IsComplete reports whether the task is done.
func (t *Task) IsComplete() bool { return t.Status == StatusDone }

// IsDeleted reports whether the task is soft-deleted.
func (t *Task) IsDeleted() bool { return t.DeletedAt != nil }

// TaskFromRow decodes a task row from either backend.
func TaskFromRow(r db.Row) *Task {
	return &Task{
		ID:          rowString(r, "id"),
		Title:       rowString(r, "title"),
		Description: rowString(r, "description"),
		Status:      rowString(r, "status"),
		Priority:    rowString(r, "priority"),
		Assignee:    rowString(r, "assignee"),
		Tags:        rowTags(r, "tags"),
		CreatedBy:   rowString(r, "created_by"),
		CreatedAt:   rowTime(r, "created_at"),
		UpdatedAt:   rowTime(r, "updated_at"),
		DueAt:       rowTimePtr(r, "due_at"),
		CompletedAt: rowTimePtr(r, "completed_at"),
		DeletedAt:   rowTimePtr(r, "deleted_at"),
	}
}
