package plugins

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ContextPlugin adds taskr_triage, a workflow coach agents call when they
// start work.
type ContextPlugin struct{}

// NewContextPlugin creates the built-in context plugin.
func NewContextPlugin() *ContextPlugin { return &ContextPlugin{} }

// Info implements Plugin.
func (p *ContextPlugin) Info() Info {
	return Info{
		Name:        "context",
		Version:     "1.0.0",
		Description: "Workflow guidance for agents using taskr",
	}
}

// RegisterTools implements Plugin.
func (p *ContextPlugin) RegisterTools(h Host) error {
	h.AddTool(mcp.NewTool("taskr_triage",
		mcp.WithDescription(
			"Workflow coach. Call when starting work for guidance on sessions, "+
				"claiming work, devlogs and agent coordination.",
		),
	), p.handleTriage)
	return nil
}

// Triage is the taskr_triage payload.
type Triage struct {
	Guidance      string            `json:"guidance"`
	QuickCommands map[string]string `json:"quick_commands"`
}

func (p *ContextPlugin) handleTriage(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(Triage{
		Guidance: triageGuide,
		QuickCommands: map[string]string{
			"start_work":     "session_start(context='...')",
			"check_patterns": "devlog_search(query='...')",
			"claim_issue":    "claim_work(work_type='issue', work_id='...', repo='...')",
			"log_decision":   "devlog_add(category='decision', title='...', content='...')",
			"end_session":    "session_end(session_id='...', summary='...', handoff_notes='...')",
		},
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

const triageGuide = `## Taskr Workflow Guide

### Starting Work
1. **Start a session**: session_start(context="what you're working on")
2. **Check for handoff notes**: review notes left by the previous session
3. **Claim work**: claim_work(work_type="issue", work_id="123", repo="owner/repo")

### During Work
- **Search devlogs** before implementing: devlog_search(query="topic")
- **Create devlogs** for decisions, patterns and gotchas
- **Use categories**: feature, bugfix, decision, research, incident, ...

### Finishing Work
1. **Release work**: release_work(...) with status completed, blocked or deferred
2. **End session**: session_end(session_id, summary="what you did", handoff_notes="for next session")

### Best Practices
- Search devlogs before non-trivial features
- Write a devlog for any decision that might confuse a future agent
- Use handoff_notes to talk to your future self
- Claim work before starting so two agents never duplicate effort
`
