package tools

import (
	"strings"
	"testing"

	"github.com/HendryAvila/taskr/internal/models"
)

func TestDevlogAddTool_Definition(t *testing.T) {
	def := NewDevlogAddTool(nil, testIdentity, nil).Definition()
	if def.Name != "devlog_add" {
		t.Errorf("tool name = %q, want devlog_add", def.Name)
	}
	want := map[string]bool{"category": true, "title": true, "content": true}
	for _, r := range def.InputSchema.Required {
		delete(want, r)
	}
	if len(want) != 0 {
		t.Errorf("required = %v, missing %v", def.InputSchema.Required, want)
	}
	if _, ok := def.InputSchema.Properties["metadata"]; !ok {
		t.Error("missing 'metadata' parameter")
	}
}

func TestDevlogTools_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	added := decode[models.Devlog](t, call(t, NewDevlogAddTool(env.devlogs, testIdentity, env.activity), map[string]interface{}{
		"category":     "decision",
		"title":        "Use pgx for PostgreSQL",
		"content":      "Pooled connections and native arrays.",
		"service_name": "taskr",
		"tags":         []interface{}{"db"},
		"metadata":     map[string]interface{}{"ticket": "T-12"},
	}))
	if added.ID == "" || added.Author != "alice" || added.AgentID != "agent-a" {
		t.Fatalf("added = %+v", added)
	}
	if added.Metadata["ticket"] != "T-12" {
		t.Errorf("metadata = %v", added.Metadata)
	}

	got := decode[models.Devlog](t, call(t, NewDevlogGetTool(env.devlogs), map[string]interface{}{"devlog_id": added.ID}))
	if got.Content != "Pooled connections and native arrays." {
		t.Errorf("got = %+v", got)
	}

	updated := decode[models.Devlog](t, call(t, NewDevlogUpdateTool(env.devlogs), map[string]interface{}{
		"devlog_id": added.ID,
		"category":  "research",
		"tags":      []interface{}{"db", "postgres"},
	}))
	if updated.Category != "research" || len(updated.Tags) != 2 || updated.Title != added.Title {
		t.Errorf("updated = %+v", updated)
	}

	del := decode[deleteResult](t, call(t, NewDevlogDeleteTool(env.devlogs), map[string]interface{}{"devlog_id": added.ID}))
	if !del.Deleted {
		t.Error("delete reported false")
	}
	if msg := callErr(t, NewDevlogGetTool(env.devlogs), map[string]interface{}{"devlog_id": added.ID}); msg != "Devlog not found: "+added.ID {
		t.Errorf("get after delete = %q", msg)
	}

	types := env.activityTypes(t)
	if len(types) != 1 || types[0] != models.ActivityCreateDevlog {
		t.Errorf("activity = %v", types)
	}
}

func TestDevlogTools_ListAndSearch(t *testing.T) {
	env := newTestEnv(t)
	add := NewDevlogAddTool(env.devlogs, testIdentity, nil)
	for _, a := range []map[string]interface{}{
		{"category": "incident", "title": "Checkout outage", "content": "Redis evicted sessions", "service_name": "shop"},
		{"category": "deployment", "title": "Shop v2 rollout", "content": "Blue/green", "service_name": "shop"},
		{"category": "incident", "title": "Search latency", "content": "Missing index", "service_name": "search"},
	} {
		call(t, add, a)
	}

	incidents := decode[devlogList](t, call(t, NewDevlogListTool(env.devlogs), map[string]interface{}{"category": "incident"}))
	if incidents.Count != 2 || incidents.Devlogs[0].Title != "Search latency" {
		t.Errorf("list(incident) = %+v", incidents)
	}
	shop := decode[devlogList](t, call(t, NewDevlogListTool(env.devlogs), map[string]interface{}{"service_name": "shop"}))
	if shop.Count != 2 {
		t.Errorf("list(shop) count = %d, want 2", shop.Count)
	}

	found := decode[devlogList](t, call(t, NewDevlogSearchTool(env.devlogs), map[string]interface{}{
		"query": "redis", "category": "incident",
	}))
	if found.Count != 1 || found.Devlogs[0].Title != "Checkout outage" || found.Query != "redis" {
		t.Errorf("search = %+v", found)
	}
}

func TestDevlogTools_Errors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		tool handler
		args map[string]interface{}
		want string
	}{
		{"add bad category", NewDevlogAddTool(env.devlogs, testIdentity, nil),
			map[string]interface{}{"category": "rumor", "title": "x", "content": "y"}, "invalid input:"},
		{"add without content", NewDevlogAddTool(env.devlogs, testIdentity, nil),
			map[string]interface{}{"category": "note", "title": "x"}, "'content' is required"},
		{"list bad category", NewDevlogListTool(env.devlogs), map[string]interface{}{"category": "rumor"}, "invalid input:"},
		{"update missing", NewDevlogUpdateTool(env.devlogs), map[string]interface{}{"devlog_id": "nope", "title": "x"}, "Devlog not found: nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := callErr(t, tt.tool, tt.args); !strings.Contains(got, tt.want) {
				t.Errorf("error = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
