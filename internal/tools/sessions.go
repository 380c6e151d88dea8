package tools

import (
	"context"
	"time"

	"github.com/HendryAvila/taskr/internal/models"
	"github.com/HendryAvila/taskr/internal/services"
	"github.com/mark3labs/mcp-go/mcp"
)

var (
	workTypeEnum      = mcp.Enum(models.TargetTypes...)
	releaseStatusEnum = mcp.Enum(models.ReleaseStatuses...)
)

// agentArg returns the agent_id argument, or the server identity.
func agentArg(req mcp.CallToolRequest, identity Identity) string {
	if a := req.GetString("agent_id", ""); a != "" {
		return a
	}
	return identity.AgentID
}

// ─── SessionStartTool ───────────────────────────────────────────────────────

// SessionStartTool handles the session_start MCP tool.
type SessionStartTool struct {
	sessions *services.SessionService
	identity Identity
}

// NewSessionStartTool creates a SessionStartTool.
func NewSessionStartTool(sessions *services.SessionService, identity Identity) *SessionStartTool {
	return &SessionStartTool{sessions: sessions, identity: identity}
}

// Definition returns the MCP tool definition for session_start.
func (t *SessionStartTool) Definition() mcp.Tool {
	return mcp.NewTool("session_start",
		mcp.WithDescription(
			"Start an agent session. Returns the new session ID plus the handoff "+
				"notes and summary left by this agent's previous session. Call this "+
				"at the beginning of every work period.",
		),
		mcp.WithString("context", mcp.Description("What this session is about")),
		mcp.WithString("agent_id", mcp.Description("Agent identifier (default: configured agent)")),
	)
}

// Handle processes the session_start tool call.
func (t *SessionStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.sessions.Start(ctx, agentArg(req, t.identity), req.GetString("context", ""))
	if err != nil {
		return errorResult("start session", err), nil
	}
	return jsonResult(res)
}

// ─── SessionEndTool ─────────────────────────────────────────────────────────

// SessionEndTool handles the session_end MCP tool.
type SessionEndTool struct {
	sessions *services.SessionService
}

// NewSessionEndTool creates a SessionEndTool.
func NewSessionEndTool(sessions *services.SessionService) *SessionEndTool {
	return &SessionEndTool{sessions: sessions}
}

// Definition returns the MCP tool definition for session_end.
func (t *SessionEndTool) Definition() mcp.Tool {
	return mcp.NewTool("session_end",
		mcp.WithDescription(
			"End an agent session with a summary. Handoff notes are shown to the "+
				"next session this agent starts.",
		),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID from session_start")),
		mcp.WithString("summary", mcp.Required(), mcp.Description("What was accomplished")),
		mcp.WithString("handoff_notes", mcp.Description("Notes for the next session")),
	)
}

// Handle processes the session_end tool call.
func (t *SessionEndTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := required(req, "session_id")
	if bad != nil {
		return bad, nil
	}
	summary, bad := required(req, "summary")
	if bad != nil {
		return bad, nil
	}
	res, err := t.sessions.End(ctx, id, summary, req.GetString("handoff_notes", ""))
	if err != nil {
		return errorResult("end session", err), nil
	}
	if res == nil {
		return notFound("Session", id), nil
	}
	return jsonResult(res)
}

// ─── SessionListTool ────────────────────────────────────────────────────────

// SessionListTool handles the session_list MCP tool.
type SessionListTool struct {
	sessions *services.SessionService
}

// NewSessionListTool creates a SessionListTool.
func NewSessionListTool(sessions *services.SessionService) *SessionListTool {
	return &SessionListTool{sessions: sessions}
}

// Definition returns the MCP tool definition for session_list.
func (t *SessionListTool) Definition() mcp.Tool {
	return mcp.NewTool("session_list",
		mcp.WithDescription("List agent sessions, most recent first."),
		mcp.WithString("agent_id", mcp.Description("Only this agent's sessions")),
		mcp.WithBoolean("active_only", mcp.Description("Only sessions that have not ended")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	)
}

type sessionList struct {
	Sessions []*models.Session `json:"sessions"`
	Count    int               `json:"count"`
}

// Handle processes the session_list tool call.
func (t *SessionListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := t.sessions.List(ctx, services.SessionFilter{
		AgentID:    req.GetString("agent_id", ""),
		ActiveOnly: boolArg(req, "active_only", false),
		Limit:      intArg(req, "limit", 20),
	})
	if err != nil {
		return errorResult("list sessions", err), nil
	}
	return jsonResult(sessionList{Sessions: sessions, Count: len(sessions)})
}

// ─── ClaimWorkTool ──────────────────────────────────────────────────────────

// ClaimWorkTool handles the claim_work MCP tool.
type ClaimWorkTool struct {
	sessions *services.SessionService
	identity Identity
}

// NewClaimWorkTool creates a ClaimWorkTool.
func NewClaimWorkTool(sessions *services.SessionService, identity Identity) *ClaimWorkTool {
	return &ClaimWorkTool{sessions: sessions, identity: identity}
}

// Definition returns the MCP tool definition for claim_work.
func (t *ClaimWorkTool) Definition() mcp.Tool {
	return mcp.NewTool("claim_work",
		mcp.WithDescription(
			"Claim a work item so no other agent starts it. Call before starting "+
				"an issue, PR or QA job. If another agent holds an unreleased claim, "+
				"claimed is false and claimed_by names the holder.",
		),
		mcp.WithString("work_type", mcp.Required(), mcp.Description("Kind of work"), workTypeEnum),
		mcp.WithString("work_id", mcp.Required(), mcp.Description("Issue number or work item ID")),
		mcp.WithString("repo", mcp.Description("Repository as owner/repo")),
		mcp.WithString("session_id", mcp.Description("Current session ID")),
		mcp.WithString("agent_id", mcp.Description("Claiming agent (default: configured agent)")),
	)
}

// Handle processes the claim_work tool call.
func (t *ClaimWorkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workType, bad := required(req, "work_type")
	if bad != nil {
		return bad, nil
	}
	workID, bad := required(req, "work_id")
	if bad != nil {
		return bad, nil
	}
	res, err := t.sessions.ClaimWork(ctx, services.ClaimRequest{
		AgentID:   agentArg(req, t.identity),
		WorkType:  workType,
		WorkID:    workID,
		Repo:      req.GetString("repo", ""),
		SessionID: req.GetString("session_id", ""),
	})
	if err != nil {
		return errorResult("claim work", err), nil
	}
	return jsonResult(res)
}

// ─── ReleaseWorkTool ────────────────────────────────────────────────────────

// ReleaseWorkTool handles the release_work MCP tool.
type ReleaseWorkTool struct {
	sessions *services.SessionService
	identity Identity
}

// NewReleaseWorkTool creates a ReleaseWorkTool.
func NewReleaseWorkTool(sessions *services.SessionService, identity Identity) *ReleaseWorkTool {
	return &ReleaseWorkTool{sessions: sessions, identity: identity}
}

// Definition returns the MCP tool definition for release_work.
func (t *ReleaseWorkTool) Definition() mcp.Tool {
	return mcp.NewTool("release_work",
		mcp.WithDescription("Release claimed work so another agent can pick it up."),
		mcp.WithString("work_type", mcp.Required(), mcp.Description("Kind of work"), workTypeEnum),
		mcp.WithString("work_id", mcp.Required(), mcp.Description("Work item ID")),
		mcp.WithString("repo", mcp.Description("Repository as owner/repo")),
		mcp.WithString("status", mcp.Description("Outcome (default completed)"), releaseStatusEnum),
		mcp.WithString("notes", mcp.Description("Optional notes")),
		mcp.WithString("session_id", mcp.Description("Current session ID")),
		mcp.WithString("agent_id", mcp.Description("Releasing agent (default: configured agent)")),
	)
}

// Handle processes the release_work tool call.
func (t *ReleaseWorkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workType, bad := required(req, "work_type")
	if bad != nil {
		return bad, nil
	}
	workID, bad := required(req, "work_id")
	if bad != nil {
		return bad, nil
	}
	res, err := t.sessions.ReleaseWork(ctx, services.ReleaseRequest{
		AgentID:   agentArg(req, t.identity),
		WorkType:  workType,
		WorkID:    workID,
		Repo:      req.GetString("repo", ""),
		SessionID: req.GetString("session_id", ""),
		Status:    req.GetString("status", ""),
		Notes:     req.GetString("notes", ""),
	})
	if err != nil {
		return errorResult("release work", err), nil
	}
	return jsonResult(res)
}

// ─── WhatChangedTool ────────────────────────────────────────────────────────

// WhatChangedTool handles the what_changed MCP tool.
type WhatChangedTool struct {
	sessions *services.SessionService
	now      func() time.Time
}

// NewWhatChangedTool creates a WhatChangedTool.
func NewWhatChangedTool(sessions *services.SessionService) *WhatChangedTool {
	return &WhatChangedTool{sessions: sessions, now: time.Now}
}

// Definition returns the MCP tool definition for what_changed.
func (t *WhatChangedTool) Definition() mcp.Tool {
	return mcp.NewTool("what_changed",
		mcp.WithDescription(
			"Catch up on activity and sessions since a point in time. Useful after "+
				"being away; meant for short windows.",
		),
		mcp.WithNumber("hours_ago", mcp.Description("Look back this many hours (default 24)")),
		mcp.WithString("since", mcp.Description("Explicit start time, RFC 3339; overrides hours_ago")),
		mcp.WithString("agent_id", mcp.Description("Only this agent's changes")),
	)
}

// Handle processes the what_changed tool call.
func (t *WhatChangedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	since, err := timeArg(req, "since")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if since == nil {
		hours := intArg(req, "hours_ago", 24)
		if hours <= 0 {
			return mcp.NewToolResultError("'hours_ago' must be positive"), nil
		}
		s := t.now().Add(-time.Duration(hours) * time.Hour)
		since = &s
	}
	res, err := t.sessions.WhatChanged(ctx, *since, req.GetString("agent_id", ""))
	if err != nil {
		return errorResult("list changes", err), nil
	}
	return jsonResult(res)
}
