package models

import (
	"time"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/google/uuid"
)

// DefaultAgentID is recorded when no agent identifies itself.
const DefaultAgentID = "claude-code"

// DevlogCategories is the closed set of devlog categories.
var DevlogCategories = []string{
	"feature",
	"bugfix",
	"deployment",
	"config",
	"incident",
	"refactor",
	"research",
	"decision",
	"migration",
	"note",
}

// DevlogColumns lists the persisted devlog columns in select order.
var DevlogColumns = []string{
	"id", "category", "title", "content", "author", "agent_id", "service_name", "tags", "metadata",
	"created_at", "updated_at", "deleted_at",
}

// Devlog is a development log entry: a decision, incident, deployment note.
type Devlog struct {
	ID          string         `json:"id"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Author      string         `json:"author,omitempty"`
	AgentID     string         `json:"agent_id"`
	ServiceName string         `json:"service_name,omitempty"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// NewDevlog builds a devlog, failing on a category outside
// DevlogCategories.
func NewDevlog(category, title, content string, now time.Time) (*Devlog, error) {
	d := &Devlog{
		ID:        uuid.NewString(),
		Category:  category,
		Title:     title,
		Content:   content,
		AgentID:   DefaultAgentID,
		Tags:      []string{},
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ValidateCategory(category); err != nil {
		return nil, err
	}
	if err := Required("title", title); err != nil {
		return nil, err
	}
	return d, nil
}

// ValidateCategory rejects values outside DevlogCategories.
func ValidateCategory(c string) error { return checkEnum("category", c, DevlogCategories) }

// IsDeleted reports whether the devlog is soft-deleted.
func (d *Devlog) IsDeleted() bool { return d.DeletedAt != nil }

// DevlogFromRow decodes a devlog row from either backend.
func DevlogFromRow(r db.Row) *Devlog {
	return &Devlog{
		ID:          rowString(r, "id"),
		Category:    rowString(r, "category"),
		Title:       rowString(r, "title"),
		Content:     rowString(r, "content"),
		Author:      rowString(r, "author"),
		AgentID:     rowString(r, "agent_id"),
		ServiceName: rowString(r, "service_name"),
		Tags:        rowTags(r, "tags"),
		Metadata:    rowJSON(r, "metadata"),
		CreatedAt:   rowTime(r, "created_at"),
		UpdatedAt:   rowTime(r, "updated_at"),
		DeletedAt:   rowTimePtr(r, "deleted_at"),
	}
}
