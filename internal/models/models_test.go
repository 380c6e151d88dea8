package models

import (
	"errors"
	"testing"
	"time"

	"github.com/HendryAvila/taskr/internal/db"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNewDevlog_AllValidCategories(t *testing.T) {
	for _, c := range DevlogCategories {
		d, err := NewDevlog(c, "title", "content", testNow)
		if err != nil {
			t.Errorf("NewDevlog(%q) error: %v", c, err)
			continue
		}
		if d.AgentID != DefaultAgentID {
			t.Errorf("AgentID = %q, want %q", d.AgentID, DefaultAgentID)
		}
	}
	if len(DevlogCategories) != 10 {
		t.Errorf("len(DevlogCategories) = %d, want 10", len(DevlogCategories))
	}
}

func TestNewDevlog_InvalidCategory(t *testing.T) {
	for _, c := range []string{"", "bug", "Feature", "notes", "deploy"} {
		_, err := NewDevlog(c, "title", "content", testNow)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("NewDevlog(%q) error = %v, want ErrValidation", c, err)
		}
	}
}

func TestNewTask_DefaultsAndValidation(t *testing.T) {
	task, err := NewTask("Fix login bug", "", "", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != StatusOpen || task.Priority != PriorityMedium {
		t.Errorf("defaults = %q/%q", task.Status, task.Priority)
	}
	if !task.IsOpen() || task.IsComplete() || task.IsDeleted() {
		t.Error("fresh task flags wrong")
	}

	tests := []struct {
		name, title, status, priority string
	}{
		{"blank title", "  ", "", ""},
		{"bad status", "x", "closed", ""},
		{"bad priority", "x", "", "urgent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTask(tt.title, tt.status, tt.priority, testNow)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
		})
	}
}

func TestTaskFromRow_SQLiteShape(t *testing.T) {
	row := db.Row{
		"id":           "t1",
		"title":        "x",
		"status":       "done",
		"priority":     "high",
		"tags":         `["a","b"]`,
		"created_at":   "2025-06-01T12:00:00.000000Z",
		"updated_at":   "2025-06-01T12:00:00.000000Z",
		"completed_at": "2025-06-01T13:00:00.000000Z",
		"due_at":       nil,
	}
	task := TaskFromRow(row)
	if len(task.Tags) != 2 || task.Tags[1] != "b" {
		t.Errorf("Tags = %v", task.Tags)
	}
	if task.CompletedAt == nil || task.CompletedAt.Hour() != 13 {
		t.Errorf("CompletedAt = %v", task.CompletedAt)
	}
	if task.DueAt != nil {
		t.Errorf("DueAt = %v, want nil", task.DueAt)
	}
	if !task.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v", task.CreatedAt)
	}
}

func TestDevlogFromRow_PostgresShape(t *testing.T) {
	row := db.Row{
		"id":         "d1",
		"category":   "note",
		"tags":       []any{"x"},
		"metadata":   map[string]any{"k": "v"},
		"created_at": testNow,
	}
	d := DevlogFromRow(row)
	if len(d.Tags) != 1 || d.Tags[0] != "x" {
		t.Errorf("Tags = %v", d.Tags)
	}
	if d.Metadata["k"] != "v" {
		t.Errorf("Metadata = %v", d.Metadata)
	}
	if !d.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v", d.CreatedAt)
	}
}

func TestSession_ActiveAndDuration(t *testing.T) {
	s := &Session{StartedAt: testNow}
	if !s.IsActive() {
		t.Error("session without ended_at should be active")
	}
	if got := s.Duration(testNow.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Duration = %v", got)
	}
	end := testNow.Add(time.Hour)
	s.EndedAt = &end
	if s.IsActive() {
		t.Error("ended session reported active")
	}
	if got := s.Duration(testNow.Add(5 * time.Hour)); got != time.Hour {
		t.Errorf("Duration = %v, want 1h", got)
	}
}

func TestActivity_Validate(t *testing.T) {
	ok := &Activity{AgentID: "a", ActivityType: ActivityClaimWork, TargetType: "issue"}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	bad := &Activity{AgentID: "a", ActivityType: "steal_work"}
	if !errors.Is(bad.Validate(), ErrValidation) {
		t.Error("bad activity type accepted")
	}
	if TargetKey("o/r", "123") != "o/r#123" {
		t.Errorf("TargetKey = %q", TargetKey("o/r", "123"))
	}
}
