package models

import (
	"time"

	"github.com/HendryAvila/taskr/internal/db"
)

// Activity types.
const (
	ActivityClaimWork    = "claim_work"
	ActivityReleaseWork  = "release_work"
	ActivityCreateTask   = "create_task"
	ActivityUpdateTask   = "update_task"
	ActivityCompleteTask = "complete_task"
	ActivityCreateDevlog = "create_devlog"
	ActivityOther        = "other"
)

// ActivityTypes is the closed set of activity types.
var ActivityTypes = []string{
	ActivityClaimWork, ActivityReleaseWork, ActivityCreateTask, ActivityUpdateTask,
	ActivityCompleteTask, ActivityCreateDevlog, ActivityOther,
}

// TargetTypes is the closed set of activity target types.
var TargetTypes = []string{"task", "issue", "pr", "devlog", "qa", "other"}

// Release statuses recorded when work is handed back.
const (
	ReleaseCompleted = "completed"
	ReleaseBlocked   = "blocked"
	ReleaseDeferred  = "deferred"
)

// ReleaseStatuses is the closed set of release statuses.
var ReleaseStatuses = []string{ReleaseCompleted, ReleaseBlocked, ReleaseDeferred}

// SessionColumns lists the persisted session columns in select order.
var SessionColumns = []string{
	"id", "agent_id", "started_at", "ended_at", "summary", "handoff_notes", "context", "created_at", "updated_at",
}

// ActivityColumns lists the persisted activity columns in select order.
var ActivityColumns = []string{
	"id", "agent_id", "session_id", "activity_type", "target_type", "target_id", "repo", "notes", "created_at",
}

// Session is one agent work period.
type Session struct {
	ID           string     `json:"id"`
	AgentID      string     `json:"agent_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	HandoffNotes string     `json:"handoff_notes,omitempty"`
	Context      string     `json:"context,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActive reports whether the session has not ended.
func (s *Session) IsActive() bool { return s.EndedAt == nil }

// Duration is the wall-clock length of the session, measured to now while
// it is active.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(s.StartedAt)
}

// SessionFromRow decodes a session row from either backend.
func SessionFromRow(r db.Row) *Session {
	return &Session{
		ID:           rowString(r, "id"),
		AgentID:      rowString(r, "agent_id"),
		StartedAt:    rowTime(r, "started_at"),
		EndedAt:      rowTimePtr(r, "ended_at"),
		Summary:      rowString(r, "summary"),
		HandoffNotes: rowString(r, "handoff_notes"),
		Context:      rowString(r, "context"),
		CreatedAt:    rowTime(r, "created_at"),
		UpdatedAt:    rowTime(r, "updated_at"),
	}
}

// Activity is an immutable entry in the agent activity log.
type Activity struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	SessionID    string    `json:"session_id,omitempty"`
	ActivityType string    `json:"activity_type"`
	TargetType   string    `json:"target_type,omitempty"`
	TargetID     string    `json:"target_id,omitempty"`
	Repo         string    `json:"repo,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the agent and enum fields. An empty target type is
// allowed.
func (a *Activity) Validate() error {
	if err := Required("agent_id", a.AgentID); err != nil {
		return err
	}
	if err := checkEnum("activity_type", a.ActivityType, ActivityTypes); err != nil {
		return err
	}
	if a.TargetType == "" {
		return nil
	}
	return checkEnum("target_type", a.TargetType, TargetTypes)
}

// ValidateReleaseStatus rejects values outside ReleaseStatuses.
func ValidateReleaseStatus(s string) error { return checkEnum("status", s, ReleaseStatuses) }

// ValidateTargetType rejects values outside TargetTypes.
func ValidateTargetType(s string) error { return checkEnum("work_type", s, TargetTypes) }

// TargetKey is the composite key of externally sourced work.
func TargetKey(repo, workID string) string { return repo + "#" + workID }

// ActivityFromRow decodes an activity row from either backend.
func ActivityFromRow(r db.Row) *Activity {
	return &Activity{
		ID:           rowString(r, "id"),
		AgentID:      rowString(r, "agent_id"),
		SessionID:    rowString(r, "session_id"),
		ActivityType: rowString(r, "activity_type"),
		TargetType:   rowString(r, "target_type"),
		TargetID:     rowString(r, "target_id"),
		Repo:         rowString(r, "repo"),
		Notes:        rowString(r, "notes"),
		CreatedAt:    rowTime(r, "created_at"),
	}
}
