// taskr: shared task tracker and development log for coding agents.
//
// An MCP server that lets several AI agents share tasks, devlogs and work
// claims through one PostgreSQL database or a local SQLite file.
//
// Usage:
//
//	taskr serve          # Start MCP server (stdio transport)
//	taskr serve --http :8420  # MCP over HTTP plus the /v1 JSON API
//	taskr migrate        # Apply pending schema migrations
//	taskr health         # Check database connectivity
//	taskr tasks          # List tasks as a table
//	taskr config show    # Print the effective configuration
//	taskr version --check  # Compare against the latest GitHub release
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/HendryAvila/taskr/internal/config"
	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/migrate"
	taskrserver "github.com/HendryAvila/taskr/internal/server"
	"github.com/HendryAvila/taskr/internal/services"
	"github.com/HendryAvila/taskr/internal/updater"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand resolves from flags and environment.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix(config.EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "taskr",
		Short: "Shared tasks, devlogs and work claims for coding agents",
		Long: `taskr is an MCP server that lets several coding agents coordinate through
one database: tasks, development logs, agent sessions with handoff notes,
and work claims so two agents never pick up the same issue.

Storage is a local SQLite file by default, or PostgreSQL when
TASKR_DATABASE_URL is set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate("taskr {{.Version}}\n")
	root.Version = taskrserver.Version

	root.PersistentFlags().String("config", "", "config file (default ~/.taskr/config.yaml)")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	root.PersistentFlags().Bool("json", false, "output JSON")
	_ = a.v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = a.v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("json", root.PersistentFlags().Lookup("json"))

	root.AddCommand(
		a.serveCmd(),
		a.migrateCmd(),
		a.healthCmd(),
		a.tasksCmd(),
		a.configCmd(),
		a.versionCmd(),
	)
	return root
}

// setup loads the configuration and builds the stderr logger. Stdout is
// reserved for the MCP stdio transport.
func (a *app) setup(cmd *cobra.Command) error {
	bootstrap := newLogger(cmd.ErrOrStderr(), a.v.GetString("log-level"))
	a.cfg = config.Load(a.v.GetString("config"), bootstrap)

	level := a.cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = a.v.GetString("log-level")
	}
	a.logger = newLogger(cmd.ErrOrStderr(), level)
	slog.SetDefault(a.logger)
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// withDB opens and migrates the configured database for one command.
func (a *app) withDB(ctx context.Context, fn func(context.Context, db.Adapter) error) error {
	adapter, err := taskrserver.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer adapter.Close()
	return fn(ctx, adapter)
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio, or over HTTP with --http",
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := taskrserver.Open(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			s, cleanup, err := taskrserver.New(a.cfg, adapter, a.logger)
			if err != nil {
				_ = adapter.Close()
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			if addr == "" {
				a.logger.Info("taskr serving on stdio",
					"version", taskrserver.Version,
					"backend", adapter.Kind(),
					"agent_id", a.cfg.Identity.AgentID)
				return server.ServeStdio(s)
			}

			handler, err := taskrserver.HTTPHandler(s, adapter, a.logger)
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			a.logger.Info("taskr serving on http",
				"addr", addr,
				"mcp", "/mcp",
				"api", "/v1",
				"backend", adapter.Kind())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "listen address for the HTTP transport (e.g. 127.0.0.1:8420)")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			adapter, err := db.Init(ctx, a.cfg.DBConfig(), db.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer adapter.Close()

			if statusOnly {
				st, err := migrate.Check(ctx, adapter)
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), st, func(w io.Writer) {
					for _, n := range st.Applied {
						fmt.Fprintf(w, "applied  %s\n", n)
					}
					for _, n := range st.Pending {
						fmt.Fprintf(w, "pending  %s\n", n)
					}
				})
			}

			ran, err := migrate.Apply(ctx, adapter, a.logger)
			if err != nil {
				return err
			}
			if ran == nil {
				ran = []string{}
			}
			return a.print(cmd.OutOrStdout(), map[string]any{"applied": ran}, func(w io.Writer) {
				if len(ran) == 0 {
					fmt.Fprintln(w, "Migrations complete: nothing to apply")
					return
				}
				fmt.Fprintf(w, "Migrations complete: applied %s\n", strings.Join(ran, ", "))
			})
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "show applied and pending migrations without applying")
	return cmd
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := db.New(a.cfg.DBConfig(), db.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer adapter.Close()
			r := db.Health(cmd.Context(), adapter)
			if err := printJSON(cmd.OutOrStdout(), r); err != nil {
				return err
			}
			if r.Status != db.StatusHealthy {
				return fmt.Errorf("database unhealthy: %s", r.Error)
			}
			return nil
		},
	}
}

func (a *app) tasksCmd() *cobra.Command {
	var f services.TaskFilter
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd.Context(), func(ctx context.Context, adapter db.Adapter) error {
				tasks, err := services.NewTaskService(adapter, services.WithLogger(a.logger)).List(ctx, f)
				if err != nil {
					return err
				}
				return a.print(cmd.OutOrStdout(), tasks, func(w io.Writer) {
					tw := table.NewWriter()
					tw.SetOutputMirror(w)
					tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee", "Tags"})
					for _, t := range tasks {
						tw.AppendRow(table.Row{shortID(t.ID), t.Title, t.Status, t.Priority, t.Assignee, strings.Join(t.Tags, ",")})
					}
					tw.AppendFooter(table.Row{"", fmt.Sprintf("%d tasks", len(tasks))})
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.Assignee, "assignee", "", "assignee filter")
	cmd.Flags().StringSliceVar(&f.Tags, "tag", nil, "match any of these tags")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect or create the configuration file"}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			red := a.cfg.Redacted()
			if a.v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), red)
			}
			out, err := red.Marshal()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", a.cfg.Path, out)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.cfg.Path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.cfg.Path)
			}
			if err := a.cfg.Save(a.cfg.Path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", a.cfg.Path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)
	return cfgCmd
}

func (a *app) versionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if !check {
				fmt.Fprintf(w, "taskr v%s\n", taskrserver.Version)
				return nil
			}
			r, err := updater.Checker{Endpoint: a.v.GetString("release-url")}.Check(cmd.Context(), taskrserver.Version)
			if err != nil {
				return err
			}
			return a.print(w, r, func(w io.Writer) {
				fmt.Fprintf(w, "taskr v%s\n", taskrserver.Version)
				if r.UpdateAvailable {
					fmt.Fprintf(w, "Update available: v%s\n%s\n", r.LatestVersion, r.ReleaseURL)
					return
				}
				fmt.Fprintf(w, "Up to date (latest release v%s)\n", r.LatestVersion)
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}

// print writes v as JSON under --json, otherwise calls text.
func (a *app) print(w io.Writer, v any, text func(io.Writer)) error {
	if a.v.GetBool("json") {
		return printJSON(w, v)
	}
	text(w)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
