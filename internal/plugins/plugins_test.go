package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/migrate"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// fakeHost records registered tools.
type fakeHost struct {
	tools map[string]server.ToolHandlerFunc
}

func newFakeHost() *fakeHost { return &fakeHost{tools: map[string]server.ToolHandlerFunc{}} }

func (h *fakeHost) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	h.tools[tool.Name] = handler
}

// stubPlugin is a configurable plugin with lifecycle hooks.
type stubPlugin struct {
	info        Info
	registerErr error
	settings    map[string]any
	events      *[]string
}

func (p *stubPlugin) Info() Info { return p.info }

func (p *stubPlugin) RegisterTools(h Host) error {
	if p.registerErr != nil {
		return p.registerErr
	}
	h.AddTool(mcp.NewTool(p.info.Name+"_tool"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})
	return nil
}

func (p *stubPlugin) Configure(s map[string]any) error {
	p.settings = s
	return nil
}

func (p *stubPlugin) OnStartup() error {
	*p.events = append(*p.events, "start:"+p.info.Name)
	return nil
}

func (p *stubPlugin) OnShutdown() error {
	*p.events = append(*p.events, "stop:"+p.info.Name)
	return nil
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	if tc, ok := r.Content[0].(mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(NewContextPlugin()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(NewContextPlugin()); err == nil {
		t.Error("duplicate Register() should fail")
	}
	if err := r.Register(&stubPlugin{}); err == nil {
		t.Error("nameless Register() should fail")
	}
	if got := r.Available(); len(got) != 1 || got[0].Name != "context" {
		t.Errorf("Available() = %v", got)
	}
}

func TestRegistry_LoadGatesAndOrders(t *testing.T) {
	var events []string
	r := NewRegistry(nil)
	a := &stubPlugin{info: Info{Name: "alpha"}, events: &events}
	pg := &stubPlugin{info: Info{Name: "pgonly", RequiresPostgres: true}, events: &events}
	broken := &stubPlugin{info: Info{Name: "broken"}, registerErr: errors.New("boom"), events: &events}
	b := &stubPlugin{info: Info{Name: "beta"}, events: &events}
	for _, p := range []Plugin{a, pg, broken, b} {
		if err := r.Register(p); err != nil {
			t.Fatal(err)
		}
	}

	host := newFakeHost()
	loaded := r.Load(context.Background(), host, LoadOptions{
		Enabled:  []string{"beta", "missing", "pgonly", "broken", "alpha"},
		Caps:     db.Capabilities{Placeholder: db.PlaceholderQMark},
		Settings: map[string]map[string]any{"alpha": {"k": "v"}},
	})

	if len(loaded) != 2 || loaded[0].Name != "beta" || loaded[1].Name != "alpha" {
		t.Fatalf("loaded = %v, want [beta alpha]", loaded)
	}
	if _, ok := host.tools["pgonly_tool"]; ok {
		t.Error("postgres-only plugin registered on sqlite")
	}
	if a.settings["k"] != "v" {
		t.Errorf("alpha settings = %v", a.settings)
	}
	if b.settings == nil {
		t.Error("plugin without settings should get an empty map")
	}

	r.Shutdown()
	want := []string{"start:beta", "start:alpha", "stop:alpha", "stop:beta"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
	if len(r.Loaded()) != 0 {
		t.Error("Loaded() not cleared by Shutdown()")
	}
}

func TestRegistry_PostgresPluginLoadsWithFTS(t *testing.T) {
	var events []string
	r := NewRegistry(nil)
	_ = r.Register(&stubPlugin{info: Info{Name: "pgonly", RequiresPostgres: true}, events: &events})

	loaded := r.Load(context.Background(), newFakeHost(), LoadOptions{Enabled: []string{"pgonly"}, Caps: db.Capabilities{FTS: true, Placeholder: db.PlaceholderDollar}})
	if len(loaded) != 1 {
		t.Errorf("loaded = %v, want pgonly", loaded)
	}
}

func TestRegistry_NothingEnabled(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(NewContextPlugin())
	if loaded := r.Load(context.Background(), newFakeHost(), LoadOptions{}); len(loaded) != 0 {
		t.Errorf("loaded = %v, want none", loaded)
	}
}

func TestRegistry_BuiltinLoadsWithoutConfig(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.RegisterBuiltin(NewContextPlugin()); err != nil {
		t.Fatal(err)
	}
	host := newFakeHost()
	loaded := r.Load(context.Background(), host, LoadOptions{})
	if len(loaded) != 1 || loaded[0].Name != "context" {
		t.Fatalf("loaded = %v, want [context]", loaded)
	}
	if _, ok := host.tools["taskr_triage"]; !ok {
		t.Error("taskr_triage not registered")
	}

	// Naming a builtin in the enabled list does not load it twice.
	r2 := NewRegistry(nil)
	_ = r2.RegisterBuiltin(NewContextPlugin())
	if loaded := r2.Load(context.Background(), newFakeHost(), LoadOptions{Enabled: []string{"context"}}); len(loaded) != 1 {
		t.Errorf("loaded = %v, want one context", loaded)
	}
}

// notesPlugin owns a table created by its migrations.
type notesPlugin struct {
	files fstest.MapFS
}

func (p *notesPlugin) Info() Info { return Info{Name: "notes", Version: "0.1.0"} }

func (p *notesPlugin) RegisterTools(h Host) error {
	h.AddTool(mcp.NewTool("notes_add"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})
	return nil
}

func (p *notesPlugin) Migrations() fs.FS { return p.files }

func newSQLiteAdapter(t *testing.T) db.Adapter {
	t.Helper()
	ctx := context.Background()
	a := db.NewSQLiteAdapter(filepath.Join(t.TempDir(), "taskr.db"), nil)
	t.Cleanup(func() { _ = a.Close() })
	if _, err := migrate.Apply(ctx, a, nil); err != nil {
		t.Fatalf("migrate.Apply() error: %v", err)
	}
	return a
}

func TestRegistry_AppliesPluginMigrations(t *testing.T) {
	ctx := context.Background()
	a := newSQLiteAdapter(t)
	files := fstest.MapFS{
		"sqlite/001_notes.sql": {Data: []byte("CREATE TABLE plugin_notes (id TEXT PRIMARY KEY, body TEXT NOT NULL);")},
	}

	for i := 0; i < 2; i++ {
		r := NewRegistry(nil)
		_ = r.Register(&notesPlugin{files: files})
		host := newFakeHost()
		loaded := r.Load(ctx, host, LoadOptions{Enabled: []string{"notes"}, Caps: a.Capabilities(), Adapter: a})
		if len(loaded) != 1 {
			t.Fatalf("load %d: loaded = %v", i, loaded)
		}
		if _, ok := host.tools["notes_add"]; !ok {
			t.Errorf("load %d: notes_add not registered", i)
		}
	}

	n, err := a.FetchScalar(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'plugin_notes'")
	if err != nil || n != int64(1) {
		t.Errorf("plugin_notes table = %v, %v", n, err)
	}
	rows, err := a.FetchScalar(ctx, "SELECT COUNT(*) FROM plugin_migrations WHERE plugin = 'notes'")
	if err != nil || rows != int64(1) {
		t.Errorf("plugin_migrations rows = %v, %v; want 1 after two loads", rows, err)
	}
}

func TestRegistry_FailedMigrationSkipsPlugin(t *testing.T) {
	a := newSQLiteAdapter(t)
	r := NewRegistry(nil)
	_ = r.Register(&notesPlugin{files: fstest.MapFS{
		"sqlite/001_notes.sql": {Data: []byte("CREATE TABLE plugin_notes (;")},
	}})
	host := newFakeHost()
	if loaded := r.Load(context.Background(), host, LoadOptions{Enabled: []string{"notes"}, Adapter: a}); len(loaded) != 0 {
		t.Errorf("loaded = %v, want none", loaded)
	}
	if _, ok := host.tools["notes_add"]; ok {
		t.Error("tools registered despite failed migration")
	}
}

func TestRegistry_MigratorNeedsAdapter(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&notesPlugin{files: fstest.MapFS{}})
	if loaded := r.Load(context.Background(), newFakeHost(), LoadOptions{Enabled: []string{"notes"}}); len(loaded) != 0 {
		t.Errorf("loaded = %v, want none without an adapter", loaded)
	}
}

func TestContextPlugin_Triage(t *testing.T) {
	host := newFakeHost()
	if err := NewContextPlugin().RegisterTools(host); err != nil {
		t.Fatal(err)
	}
	h, ok := host.tools["taskr_triage"]
	if !ok {
		t.Fatal("taskr_triage not registered")
	}
	res, err := h(context.Background(), mcp.CallToolRequest{})
	if err != nil || res.IsError {
		t.Fatalf("triage = %v, %v", res, err)
	}
	var out Triage
	if err := json.Unmarshal([]byte(resultText(res)), &out); err != nil {
		t.Fatalf("triage output not JSON: %v", err)
	}
	if out.QuickCommands["claim_issue"] == "" || out.Guidance == "" {
		t.Errorf("triage = %+v", out)
	}
}
