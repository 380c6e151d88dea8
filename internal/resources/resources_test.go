package resources

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/mark3labs/mcp-go/mcp"
)

func read(t *testing.T, fn func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error), uri string) mcp.TextResourceContents {
	t.Helper()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	out, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("read %s: %v", uri, err)
	}
	if len(out) != 1 {
		t.Fatalf("read %s: %d contents, want 1", uri, len(out))
	}
	tc, ok := out[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content type = %T", out[0])
	}
	return tc
}

func TestHandleHealth(t *testing.T) {
	a := db.NewSQLiteAdapter(filepath.Join(t.TempDir(), "taskr.db"), nil)
	t.Cleanup(func() { _ = a.Close() })
	h := NewHandler(a)

	if h.HealthResource().URI != HealthURI {
		t.Errorf("URI = %q", h.HealthResource().URI)
	}
	tc := read(t, h.HandleHealth, HealthURI)
	if tc.MIMEType != "application/json" {
		t.Errorf("MIME type = %q", tc.MIMEType)
	}
	var r db.HealthReport
	if err := json.Unmarshal([]byte(tc.Text), &r); err != nil {
		t.Fatalf("health is not JSON: %v", err)
	}
	if r.Status != db.StatusHealthy || r.DatabaseType != db.KindSQLite {
		t.Errorf("health = %+v", r)
	}
}

func TestHandleCategories(t *testing.T) {
	tc := read(t, NewHandler(nil).HandleCategories, CategoriesURI)
	var out map[string][]string
	if err := json.Unmarshal([]byte(tc.Text), &out); err != nil {
		t.Fatal(err)
	}
	if len(out["categories"]) != 10 || out["categories"][0] != "feature" {
		t.Errorf("categories = %v", out)
	}
}

func TestErrorResource(t *testing.T) {
	out := errorResource("taskr://x", "boom")
	tc := out[0].(mcp.TextResourceContents)
	if tc.Text != "Error: boom" || tc.MIMEType != "text/plain" {
		t.Errorf("errorResource = %+v", tc)
	}
}
