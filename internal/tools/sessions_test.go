package tools

import (
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/taskr/internal/services"
)

func TestSessionTools_Handoff(t *testing.T) {
	env := newTestEnv(t)
	start := NewSessionStartTool(env.sessions, testIdentity)
	end := NewSessionEndTool(env.sessions)

	first := decode[services.StartResult](t, call(t, start, map[string]interface{}{"context": "triage"}))
	if first.Session == nil || first.Session.AgentID != "agent-a" || first.PreviousSessionID != "" {
		t.Fatalf("first start = %+v", first)
	}

	ended := decode[services.EndResult](t, call(t, end, map[string]interface{}{
		"session_id":    first.Session.ID,
		"summary":       "Triaged 4 issues",
		"handoff_notes": "Look at #42 next",
	}))
	if ended.SessionID != first.Session.ID || ended.DurationSeconds < 0 {
		t.Errorf("ended = %+v", ended)
	}

	second := decode[services.StartResult](t, call(t, start, map[string]interface{}{}))
	if second.PreviousSessionID != first.Session.ID || second.HandoffNotes != "Look at #42 next" ||
		second.LastSummary != "Triaged 4 issues" {
		t.Errorf("second start = %+v", second)
	}

	other := decode[services.StartResult](t, call(t, start, map[string]interface{}{"agent_id": "agent-b"}))
	if other.Session.AgentID != "agent-b" || other.HandoffNotes != "" {
		t.Errorf("other agent start = %+v", other)
	}

	active := decode[sessionList](t, call(t, NewSessionListTool(env.sessions), map[string]interface{}{
		"agent_id": "agent-a", "active_only": true,
	}))
	if active.Count != 1 || active.Sessions[0].ID != second.Session.ID {
		t.Errorf("active sessions = %+v", active)
	}
	all := decode[sessionList](t, call(t, NewSessionListTool(env.sessions), map[string]interface{}{}))
	if all.Count != 3 {
		t.Errorf("all sessions count = %d, want 3", all.Count)
	}
}

func TestSessionEndTool_Errors(t *testing.T) {
	env := newTestEnv(t)
	end := NewSessionEndTool(env.sessions)
	if msg := callErr(t, end, map[string]interface{}{"session_id": "nope", "summary": "x"}); msg != "Session not found: nope" {
		t.Errorf("end missing = %q", msg)
	}
	if msg := callErr(t, end, map[string]interface{}{"session_id": "nope"}); msg != "'summary' is required" {
		t.Errorf("end without summary = %q", msg)
	}
}

func TestClaimTools_ExclusionAndRelease(t *testing.T) {
	env := newTestEnv(t)
	claim := NewClaimWorkTool(env.sessions, testIdentity)
	release := NewReleaseWorkTool(env.sessions, testIdentity)
	issue := map[string]interface{}{"work_type": "issue", "work_id": "42", "repo": "acme/api"}

	first := decode[services.ClaimResult](t, call(t, claim, issue))
	if !first.Claimed || first.TargetID != "acme/api#42" || first.ClaimID == "" {
		t.Fatalf("first claim = %+v", first)
	}

	rival := decode[services.ClaimResult](t, call(t, claim, map[string]interface{}{
		"work_type": "issue", "work_id": "42", "repo": "acme/api", "agent_id": "agent-b",
	}))
	if rival.Claimed || rival.ClaimedBy != "agent-a" || !strings.Contains(rival.Message, "already claimed by agent-a") {
		t.Errorf("rival claim = %+v", rival)
	}

	rel := decode[services.ReleaseResult](t, call(t, release, map[string]interface{}{
		"work_type": "issue", "work_id": "42", "repo": "acme/api", "status": "blocked", "notes": "waiting on API key",
	}))
	if !rel.Released || rel.Status != "blocked" || rel.Message != "Released issue acme/api#42 (blocked)" {
		t.Errorf("release = %+v", rel)
	}

	retry := decode[services.ClaimResult](t, call(t, claim, map[string]interface{}{
		"work_type": "issue", "work_id": "42", "repo": "acme/api", "agent_id": "agent-b",
	}))
	if !retry.Claimed {
		t.Errorf("claim after release = %+v", retry)
	}
}

func TestClaimTools_Errors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		tool handler
		args map[string]interface{}
		want string
	}{
		{"claim bad type", NewClaimWorkTool(env.sessions, testIdentity),
			map[string]interface{}{"work_type": "epic", "work_id": "1"}, "invalid input:"},
		{"claim without id", NewClaimWorkTool(env.sessions, testIdentity),
			map[string]interface{}{"work_type": "issue"}, "'work_id' is required"},
		{"release bad status", NewReleaseWorkTool(env.sessions, testIdentity),
			map[string]interface{}{"work_type": "issue", "work_id": "1", "status": "abandoned"}, "invalid input:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := callErr(t, tt.tool, tt.args); !strings.Contains(got, tt.want) {
				t.Errorf("error = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestWhatChangedTool(t *testing.T) {
	env := newTestEnv(t)
	call(t, NewSessionStartTool(env.sessions, testIdentity), map[string]interface{}{})
	call(t, NewClaimWorkTool(env.sessions, testIdentity), map[string]interface{}{"work_type": "task", "work_id": "t1"})
	call(t, NewClaimWorkTool(env.sessions, testIdentity), map[string]interface{}{
		"work_type": "task", "work_id": "t2", "agent_id": "agent-b",
	})

	tool := NewWhatChangedTool(env.sessions)
	recent := decode[services.Changes](t, call(t, tool, map[string]interface{}{}))
	if recent.ActivityCount != 2 || recent.SessionCount != 1 {
		t.Errorf("what_changed = %+v", recent)
	}
	mine := decode[services.Changes](t, call(t, tool, map[string]interface{}{"agent_id": "agent-b"}))
	if mine.ActivityCount != 1 || mine.SessionCount != 0 {
		t.Errorf("what_changed(agent-b) = %+v", mine)
	}

	tool.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	stale := decode[services.Changes](t, call(t, tool, map[string]interface{}{"hours_ago": float64(1)}))
	if stale.ActivityCount != 0 {
		t.Errorf("what_changed(1h, two days later) = %+v", stale)
	}

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	none := decode[services.Changes](t, call(t, tool, map[string]interface{}{"since": future}))
	if none.ActivityCount != 0 || none.SessionCount != 0 {
		t.Errorf("what_changed(since future) = %+v", none)
	}

	if msg := callErr(t, tool, map[string]interface{}{"hours_ago": float64(0)}); !strings.Contains(msg, "positive") {
		t.Errorf("hours_ago=0 error = %q", msg)
	}
	if msg := callErr(t, tool, map[string]interface{}{"since": "yesterday"}); !strings.HasPrefix(msg, "invalid input") {
		t.Errorf("bad since error = %q", msg)
	}
}
