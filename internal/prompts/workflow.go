// Package prompts implements MCP prompt handlers for taskr.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// WorkflowPrompt handles the taskr-workflow MCP prompt.
// It walks the agent through a full session: start, claim, work, release, end.
type WorkflowPrompt struct{}

// NewWorkflowPrompt creates a WorkflowPrompt.
func NewWorkflowPrompt() *WorkflowPrompt {
	return &WorkflowPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *WorkflowPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("taskr-workflow",
		mcp.WithPromptDescription(
			"Run a coordinated work session with taskr: pick up handoff notes, "+
				"claim the work so no other agent duplicates it, record decisions "+
				"as devlogs and hand off cleanly at the end.",
		),
		mcp.WithArgument("work_id",
			mcp.ArgumentDescription("Issue number, PR number or task ID to work on (optional)"),
		),
		mcp.WithArgument("work_type",
			mcp.ArgumentDescription("task, issue, pr or qa. Default: issue"),
		),
		mcp.WithArgument("repo",
			mcp.ArgumentDescription("Repository as owner/repo (optional)"),
		),
	)
}

// Handle processes the taskr-workflow prompt request.
func (p *WorkflowPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	workID := strings.TrimSpace(args["work_id"])
	workType := strings.TrimSpace(args["work_type"])
	if workType == "" {
		workType = "issue"
	}
	repo := strings.TrimSpace(args["repo"])

	var b strings.Builder
	b.WriteString("Run this work session with taskr.\n\n")
	b.WriteString("1. Call `session_start` with a short context. Read `handoff_notes` and `last_summary` from the result before doing anything else.\n")

	if workID != "" {
		claim := fmt.Sprintf("work_type='%s', work_id='%s'", workType, workID)
		if repo != "" {
			claim += fmt.Sprintf(", repo='%s'", repo)
		}
		fmt.Fprintf(&b, "2. Call `claim_work` with %s. If `claimed` is false, stop and tell me who holds it (`claimed_by`).\n", claim)
	} else {
		b.WriteString("2. Call `taskr_list` with status='open' and propose what to pick up. Once I agree, call `claim_work` for it. If `claimed` is false, pick something else.\n")
	}

	b.WriteString("3. Call `devlog_search` for the topic before implementing, so earlier decisions and incidents are respected.\n")
	b.WriteString("4. While working, record decisions and gotchas with `devlog_add` (category decision, bugfix, incident, ...). Keep tasks current with `taskr_update`.\n")
	b.WriteString("5. When done or blocked, call `release_work` with status completed, blocked or deferred and a one-line note.\n")
	b.WriteString("6. Call `session_end` with a summary of what changed and `handoff_notes` for the next session.\n\n")
	b.WriteString("If you were away, `what_changed` shows what other agents did since a given time.")

	desc := "taskr work session"
	if workID != "" {
		desc = fmt.Sprintf("taskr work session: %s %s", workType, workID)
	}
	return &mcp.GetPromptResult{
		Description: desc,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(b.String()),
			},
		},
	}, nil
}
