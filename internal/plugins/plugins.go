// Package plugins lets optional feature sets add MCP tools to the server.
//
// Plugins are compiled in and registered by name. Builtins always load;
// config decides which of the others do. A plugin that needs PostgreSQL-only
// features is skipped on an adapter without full-text search. Plugins that
// own tables ship migrations, applied before their tools register.
package plugins

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/migrate"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Info describes a plugin.
type Info struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	Description      string `json:"description"`
	RequiresPostgres bool   `json:"requires_postgres"`
	Author           string `json:"author,omitempty"`
}

// Host is where plugins register tools. *server.MCPServer satisfies it.
type Host interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// Plugin adds tools to a Host.
type Plugin interface {
	Info() Info
	RegisterTools(h Host) error
}

// Configurable plugins receive their settings block before registering.
type Configurable interface {
	Configure(settings map[string]any) error
}

// Starter plugins run a hook once their tools are registered.
type Starter interface {
	OnStartup() error
}

// Stopper plugins run a hook at shutdown.
type Stopper interface {
	OnShutdown() error
}

// Migrator plugins own schema. Migrations returns files laid out as
// <backend>/NNN_name.sql, e.g. sqlite/001_notes.sql.
type Migrator interface {
	Migrations() fs.FS
}

// Registry holds the known plugins and tracks which ones loaded.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	known    map[string]Plugin
	builtins []string
	loaded   []Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, known: map[string]Plugin{}}
}

// Register adds p. Registering a second plugin under the same name fails.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Info().Name
	if name == "" {
		return fmt.Errorf("plugin has no name")
	}
	if _, dup := r.known[name]; dup {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.known[name] = p
	return nil
}

// RegisterBuiltin adds p and marks it to load whatever the enabled list says.
func (r *Registry) RegisterBuiltin(p Plugin) error {
	if err := r.Register(p); err != nil {
		return err
	}
	r.mu.Lock()
	r.builtins = append(r.builtins, p.Info().Name)
	r.mu.Unlock()
	return nil
}

// Available returns metadata for every registered plugin, sorted by name.
func (r *Registry) Available() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.known))
	for _, p := range r.known {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadOptions selects and configures plugins.
type LoadOptions struct {
	Enabled  []string
	Caps     db.Capabilities
	Settings map[string]map[string]any
	// Adapter runs plugin migrations. A Migrator plugin is skipped without it.
	Adapter db.Adapter
}

// Load registers the tools of every builtin and then every enabled plugin,
// in order. Unknown names, plugins whose backend requirement is unmet, and
// plugins that fail to migrate, configure or register are logged and
// skipped. It returns the plugins that loaded.
func (r *Registry) Load(ctx context.Context, h Host, opts LoadOptions) []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := append(slices.Clone(r.builtins), opts.Enabled...)
	if len(names) == 0 {
		r.logger.Info("no plugins enabled")
		return nil
	}
	var infos []Info
	for _, name := range names {
		p, ok := r.known[name]
		if !ok {
			r.logger.Warn("unknown plugin, skipping", "plugin", name)
			continue
		}
		if slices.ContainsFunc(r.loaded, func(l Plugin) bool { return l.Info().Name == name }) {
			continue
		}
		info := p.Info()
		if info.RequiresPostgres && !opts.Caps.FTS {
			r.logger.Warn("plugin requires PostgreSQL, skipping on this backend", "plugin", name)
			continue
		}
		if err := r.migrate(ctx, p, opts.Adapter); err != nil {
			r.logger.Error("plugin migrations failed", "plugin", name, "error", err)
			continue
		}
		if err := r.start(h, p, opts.Settings[name]); err != nil {
			r.logger.Error("plugin failed to load", "plugin", name, "error", err)
			continue
		}
		r.loaded = append(r.loaded, p)
		infos = append(infos, info)
		r.logger.Info("plugin loaded", "plugin", name, "version", info.Version)
	}
	return infos
}

func (r *Registry) migrate(ctx context.Context, p Plugin, a db.Adapter) error {
	m, ok := p.(Migrator)
	if !ok {
		return nil
	}
	if a == nil {
		return fmt.Errorf("no database adapter for plugin migrations")
	}
	_, err := migrate.ApplyPlugin(ctx, a, p.Info().Name, m.Migrations(), r.logger)
	return err
}

func (r *Registry) start(h Host, p Plugin, settings map[string]any) error {
	if c, ok := p.(Configurable); ok {
		if settings == nil {
			settings = map[string]any{}
		}
		if err := c.Configure(settings); err != nil {
			return fmt.Errorf("configure: %w", err)
		}
	}
	if err := p.RegisterTools(h); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	if s, ok := p.(Starter); ok {
		if err := s.OnStartup(); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
	}
	return nil
}

// Loaded returns metadata for the plugins that loaded, in load order.
func (r *Registry) Loaded() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.loaded))
	for _, p := range r.loaded {
		out = append(out, p.Info())
	}
	return out
}

// Shutdown runs shutdown hooks in reverse load order. Hook errors are
// logged, never returned.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.loaded) - 1; i >= 0; i-- {
		p := r.loaded[i]
		s, ok := p.(Stopper)
		if !ok {
			continue
		}
		if err := s.OnShutdown(); err != nil {
			r.logger.Error("plugin shutdown error", "plugin", p.Info().Name, "error", err)
		}
	}
	r.loaded = nil
}
