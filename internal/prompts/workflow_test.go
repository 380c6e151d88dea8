package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, args map[string]string) (string, string) {
	t.Helper()
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = args
	res, err := NewWorkflowPrompt().Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(res.Messages))
	}
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", res.Messages[0].Content)
	}
	return res.Description, tc.Text
}

func TestWorkflowPrompt_Definition(t *testing.T) {
	def := NewWorkflowPrompt().Definition()
	if def.Name != "taskr-workflow" {
		t.Errorf("prompt name = %q", def.Name)
	}
	if len(def.Arguments) != 3 {
		t.Errorf("arguments = %d, want 3", len(def.Arguments))
	}
}

func TestWorkflowPrompt_WithWorkItem(t *testing.T) {
	desc, text := promptText(t, map[string]string{"work_id": "42", "repo": "acme/api"})
	if desc != "taskr work session: issue 42" {
		t.Errorf("description = %q", desc)
	}
	if !strings.Contains(text, "work_type='issue', work_id='42', repo='acme/api'") {
		t.Errorf("claim step missing:\n%s", text)
	}
	for _, tool := range []string{"session_start", "devlog_search", "release_work", "session_end"} {
		if !strings.Contains(text, tool) {
			t.Errorf("prompt does not mention %s", tool)
		}
	}
}

func TestWorkflowPrompt_WithoutWorkItem(t *testing.T) {
	desc, text := promptText(t, nil)
	if desc != "taskr work session" {
		t.Errorf("description = %q", desc)
	}
	if !strings.Contains(text, "taskr_list") || strings.Contains(text, "work_id='") {
		t.Errorf("unexpected prompt:\n%s", text)
	}
}
