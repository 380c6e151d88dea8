// Package tools implements the taskr MCP tool handlers.
//
// Each tool is a struct holding the services it needs, injected via its
// constructor:
//   - Definition() returns the mcp.Tool schema
//   - Handle() validates arguments, calls the service and renders JSON
//
// Handlers never return a Go error for domain failures; those become tool
// errors with a category prefix so the calling agent can react.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/models"
	"github.com/HendryAvila/taskr/internal/services"
	"github.com/mark3labs/mcp-go/mcp"
)

// Identity is who the server writes records as.
type Identity struct {
	Author  string `json:"author,omitempty"`
	AgentID string `json:"agent_id"`
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// optString returns nil when the argument is absent, so partial updates can
// tell "not given" from "set to empty".
func optString(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// stringsArg reads a list argument. A JSON array and a comma-separated
// string are both accepted. Absent means nil.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	switch v := req.GetArguments()[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return v
	case string:
		out := []string{}
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// timeArg parses an RFC 3339 timestamp or a plain date.
func timeArg(req mcp.CallToolRequest, key string) (*time.Time, error) {
	s := req.GetString(key, "")
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid input: %s must be RFC 3339 or YYYY-MM-DD, got %q", key, s)
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult maps an error to a tool error prefixed by its category.
func errorResult(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, models.ErrValidation):
		return mcp.NewToolResultError("invalid input: " + err.Error())
	case errors.Is(err, db.ErrConfig):
		return mcp.NewToolResultError("configuration error: " + err.Error())
	case errors.Is(err, db.ErrStore):
		return mcp.NewToolResultError(fmt.Sprintf("storage error: %s: %v", action, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

func notFound(kind, id string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s not found: %s", kind, id))
}

func required(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	v := req.GetString(key, "")
	if strings.TrimSpace(v) == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("'%s' is required", key))
	}
	return v, nil
}

// ActivityLog records what tools did in the agent activity log. A nil
// *ActivityLog records nothing. Failures are logged, never surfaced: the
// write the activity describes has already succeeded.
type ActivityLog struct {
	sessions *services.SessionService
	agentID  string
	logger   *slog.Logger
}

// NewActivityLog creates an ActivityLog writing as agentID.
func NewActivityLog(sessions *services.SessionService, agentID string, logger *slog.Logger) *ActivityLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityLog{sessions: sessions, agentID: agentID, logger: logger}
}

func (l *ActivityLog) record(ctx context.Context, activityType, targetType, targetID, notes string) {
	if l == nil {
		return
	}
	_, err := l.sessions.LogActivity(ctx, models.Activity{
		AgentID:      l.agentID,
		ActivityType: activityType,
		TargetType:   targetType,
		TargetID:     targetID,
		Notes:        notes,
	})
	if err != nil {
		l.logger.Warn("activity not recorded", "type", activityType, "target", targetID, "error", err)
	}
}
