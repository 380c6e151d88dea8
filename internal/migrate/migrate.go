// Package migrate applies the embedded schema migrations for each backend.
//
// Migrations are plain SQL files named NNN_name.sql under sql/<backend>/.
// Each one is applied at most once; applied versions are tracked in a
// schema_migrations table next to the data. Plugins ship their own files in
// the same layout and are tracked per plugin in plugin_migrations.
package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/HendryAvila/taskr/internal/db"
)

//go:embed sql/postgres/*.sql sql/sqlite/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

func loadMigrations(kind db.Kind) ([]Migration, error) {
	return readMigrations(migrationsFS, "sql/"+string(kind))
}

// readMigrations reads NNN_name.sql files from dir in version order. A
// missing dir holds no migrations.
func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", dir, err)
	}
	var migrations []Migration
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, f.Name()))
		if err != nil {
			return nil, err
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("migrate: invalid migration filename %s: %w", f.Name(), err)
		}
		migrations = append(migrations, Migration{Version: v, Name: f.Name(), UpSQL: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Status lists embedded migrations and which of them are applied.
type Status struct {
	Applied []string `json:"applied"`
	Pending []string `json:"pending"`
}

// Check reports applied and pending migrations without changing anything.
func Check(ctx context.Context, a db.Adapter) (*Status, error) {
	migrations, err := loadMigrations(a.Kind())
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, a)
	if err != nil {
		return nil, err
	}
	st := &Status{Applied: []string{}, Pending: []string{}}
	for _, m := range migrations {
		if applied[m.Version] {
			st.Applied = append(st.Applied, m.Name)
		} else {
			st.Pending = append(st.Pending, m.Name)
		}
	}
	return st, nil
}

// Apply runs every pending migration in version order and returns the
// names it applied. Each migration and its bookkeeping row commit together.
func Apply(ctx context.Context, a db.Adapter, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	migrations, err := loadMigrations(a.Kind())
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, a)
	if err != nil {
		return nil, err
	}

	table := a.Dialect().Table("schema_migrations")
	return run(ctx, a, migrations, applied, func(q *db.Query, m Migration) string {
		return fmt.Sprintf("INSERT INTO %s (version, name, applied_at) VALUES (%s, %s, %s)",
			table, q.Arg(m.Version), q.Arg(m.Name), q.Arg(db.FormatTime(db.Now())))
	}, logger.With("backend", a.Kind()))
}

// ApplyPlugin runs the pending migrations a plugin ships in fsys under
// <backend>/NNN_name.sql. Versions are tracked per plugin, so two plugins
// may both have a 001. Core migrations must already be applied.
func ApplyPlugin(ctx context.Context, a db.Adapter, plugin string, fsys fs.FS, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	migrations, err := readMigrations(fsys, string(a.Kind()))
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", plugin, err)
	}
	if len(migrations) == 0 {
		return nil, nil
	}
	applied, err := pluginVersions(ctx, a, plugin)
	if err != nil {
		return nil, err
	}

	table := a.Dialect().Table("plugin_migrations")
	return run(ctx, a, migrations, applied, func(q *db.Query, m Migration) string {
		return fmt.Sprintf("INSERT INTO %s (plugin, version, name, applied_at) VALUES (%s, %s, %s, %s)",
			table, q.Arg(plugin), q.Arg(m.Version), q.Arg(m.Name), q.Arg(db.FormatTime(db.Now())))
	}, logger.With("backend", a.Kind(), "plugin", plugin))
}

// run applies each migration not in applied, together with the bookkeeping
// row record renders, in one transaction per migration.
func run(ctx context.Context, a db.Adapter, migrations []Migration, applied map[int]bool,
	record func(*db.Query, Migration) string, logger *slog.Logger) ([]string, error) {
	var ran []string
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		err := a.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
			for _, stmt := range SplitStatements(m.UpSQL) {
				if _, err := tx.Execute(ctx, stmt); err != nil {
					return err
				}
			}
			q := db.NewQuery(a.Dialect())
			_, err := tx.Execute(ctx, record(q, m), q.Args()...)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("migrate: %s: %w", m.Name, err)
		}
		logger.Info("migration applied", "name", m.Name)
		ran = append(ran, m.Name)
	}
	return ran, nil
}

func appliedVersions(ctx context.Context, a db.Adapter) (map[int]bool, error) {
	if err := a.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("migrate: ensure schema: %w", err)
	}
	table := a.Dialect().Table("schema_migrations")
	if _, err := a.Execute(ctx, "CREATE TABLE IF NOT EXISTS "+table+
		" (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TEXT NOT NULL)"); err != nil {
		return nil, fmt.Errorf("migrate: create schema_migrations: %w", err)
	}
	rows, err := a.Fetch(ctx, "SELECT version FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("migrate: read schema_migrations: %w", err)
	}
	return versionSet(rows), nil
}

func pluginVersions(ctx context.Context, a db.Adapter, plugin string) (map[int]bool, error) {
	if err := a.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("migrate: ensure schema: %w", err)
	}
	table := a.Dialect().Table("plugin_migrations")
	if _, err := a.Execute(ctx, "CREATE TABLE IF NOT EXISTS "+table+
		" (plugin TEXT NOT NULL, version INTEGER NOT NULL, name TEXT NOT NULL, applied_at TEXT NOT NULL,"+
		" PRIMARY KEY (plugin, version))"); err != nil {
		return nil, fmt.Errorf("migrate: create plugin_migrations: %w", err)
	}
	q := db.NewQuery(a.Dialect())
	rows, err := a.Fetch(ctx, "SELECT version FROM "+table+" WHERE plugin = "+q.Arg(plugin), q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("migrate: read plugin_migrations: %w", err)
	}
	return versionSet(rows), nil
}

func versionSet(rows []db.Row) map[int]bool {
	applied := make(map[int]bool, len(rows))
	for _, r := range rows {
		switch v := r["version"].(type) {
		case int64:
			applied[int(v)] = true
		case int32:
			applied[int(v)] = true
		case int:
			applied[v] = true
		}
	}
	return applied
}
