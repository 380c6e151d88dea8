// Package config loads taskr settings from ~/.taskr/config.yaml and the
// environment.
//
// A missing file yields defaults. A malformed file is logged and ignored,
// so a typo in the config never keeps the server from starting. Environment
// variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/models"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the per-user config directory under $HOME.
	DirName = ".taskr"
	// FileName is the config file inside DirName.
	FileName = "config.yaml"

	// EnvPrefix prefixes every taskr environment variable.
	EnvPrefix = "TASKR"
)

// Database selects and locates the backend.
type Database struct {
	Type        string `json:"type"`
	SQLitePath  string `json:"sqlite_path"`
	PostgresURL string `json:"postgres_url,omitempty"`
}

// Identity names who is writing records.
type Identity struct {
	Author  string `json:"author,omitempty"`
	AgentID string `json:"agent_id"`
}

// Plugins lists enabled plugins and their settings blocks.
type Plugins struct {
	Enabled  []string                  `json:"enabled"`
	Settings map[string]map[string]any `json:"settings,omitempty"`
}

// Config is the complete taskr configuration.
type Config struct {
	Database Database `json:"database"`
	Identity Identity `json:"identity"`
	Plugins  Plugins  `json:"plugins"`
	LogLevel string   `json:"log_level"`

	// Path is the file the config was read from, or would be saved to.
	Path string `json:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: Database{Type: string(db.KindSQLite), SQLitePath: db.DefaultSQLitePath},
		Identity: Identity{AgentID: models.DefaultAgentID},
		Plugins:  Plugins{Enabled: []string{}, Settings: map[string]map[string]any{}},
		LogLevel: "info",
		Path:     DefaultPath(),
	}
}

// DefaultPath returns ~/.taskr/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(DirName, FileName)
	}
	return filepath.Join(home, DirName, FileName)
}

// fileLayout mirrors the YAML document.
type fileLayout struct {
	Database struct {
		Type   string `yaml:"type,omitempty"`
		SQLite struct {
			Path string `yaml:"path,omitempty"`
		} `yaml:"sqlite,omitempty"`
		Postgres struct {
			URL    string `yaml:"url,omitempty"`
			URLEnv string `yaml:"url_env,omitempty"`
		} `yaml:"postgres,omitempty"`
	} `yaml:"database"`
	Identity struct {
		Author  string `yaml:"author,omitempty"`
		AgentID string `yaml:"agent_id,omitempty"`
	} `yaml:"identity"`
	Plugins  pluginsLayout `yaml:"plugins"`
	LogLevel string        `yaml:"log_level,omitempty"`
}

// pluginsLayout holds "enabled" plus one mapping per plugin name.
type pluginsLayout struct {
	Enabled []string       `yaml:"enabled"`
	Rest    map[string]any `yaml:",inline"`
}

// Parse decodes YAML onto the defaults. Fields absent from data keep their
// default values.
func Parse(data []byte) (*Config, error) {
	var f fileLayout
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg := Default()
	if f.Database.Type != "" {
		cfg.Database.Type = f.Database.Type
	}
	if f.Database.SQLite.Path != "" {
		cfg.Database.SQLitePath = f.Database.SQLite.Path
	}
	cfg.Database.PostgresURL = f.Database.Postgres.URL
	if cfg.Database.PostgresURL == "" && f.Database.Postgres.URLEnv != "" {
		cfg.Database.PostgresURL = os.Getenv(f.Database.Postgres.URLEnv)
	}
	cfg.Identity.Author = f.Identity.Author
	if f.Identity.AgentID != "" {
		cfg.Identity.AgentID = f.Identity.AgentID
	}
	if f.Plugins.Enabled != nil {
		cfg.Plugins.Enabled = f.Plugins.Enabled
	}
	for name, v := range f.Plugins.Rest {
		if m, ok := v.(map[string]any); ok {
			cfg.Plugins.Settings[name] = m
		}
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	return cfg, nil
}

// ReadFile parses the file at path, failing on any read or parse error.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Load reads the config file and applies environment overrides. An empty
// path means $TASKR_CONFIG, then DefaultPath. It never fails: unreadable or
// malformed files are logged and defaults are used.
func Load(path string, logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}
	env := newEnv()
	if path == "" {
		path = env.GetString("config")
	}
	if path == "" {
		path = DefaultPath()
	}
	path = db.ExpandHome(path)

	cfg, err := ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		cfg = Default()
	default:
		logger.Warn("could not load config, using defaults", "path", path, "error", err)
		cfg = Default()
	}
	cfg.Path = path
	applyEnv(cfg, env)
	return cfg
}

// newEnv binds the TASKR_* variables plus the SUPABASE_DB_URL fallback.
func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("supabase_db_url", "SUPABASE_DB_URL")
	return v
}

func applyEnv(cfg *Config, v *viper.Viper) {
	if url := v.GetString("database_url"); url != "" {
		cfg.Database.Type = string(db.KindPostgres)
		cfg.Database.PostgresURL = url
	} else if url := v.GetString("supabase_db_url"); url != "" {
		cfg.Database.Type = string(db.KindPostgres)
		cfg.Database.PostgresURL = url
	}
	if author := v.GetString("author"); author != "" {
		cfg.Identity.Author = author
	}
	if agent := v.GetString("agent_id"); agent != "" {
		cfg.Identity.AgentID = agent
	}
	if level := v.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
}

// DBConfig returns the adapter factory settings.
func (c *Config) DBConfig() db.Config {
	return db.Config{
		Type:        c.Database.Type,
		SQLitePath:  c.Database.SQLitePath,
		PostgresURL: c.Database.PostgresURL,
	}
}

// PluginSettings returns the settings block for one plugin, never nil.
func (c *Config) PluginSettings(name string) map[string]any {
	if s, ok := c.Plugins.Settings[name]; ok {
		return s
	}
	return map[string]any{}
}

// Redacted returns a copy safe to print: the PostgreSQL URL is cut after
// 30 characters, or fully masked when shorter.
func (c *Config) Redacted() *Config {
	out := *c
	if url := c.Database.PostgresURL; url != "" {
		if len(url) > 30 {
			out.Database.PostgresURL = url[:30] + "..."
		} else {
			out.Database.PostgresURL = "***"
		}
	}
	return &out
}

// Marshal renders the config in the file layout.
func (c *Config) Marshal() ([]byte, error) {
	var f fileLayout
	f.Database.Type = c.Database.Type
	if c.Database.Type == string(db.KindSQLite) {
		f.Database.SQLite.Path = c.Database.SQLitePath
	} else {
		f.Database.Postgres.URL = c.Database.PostgresURL
	}
	f.Identity.Author = c.Identity.Author
	if c.Identity.AgentID != models.DefaultAgentID {
		f.Identity.AgentID = c.Identity.AgentID
	}
	f.Plugins.Enabled = c.Plugins.Enabled
	if f.Plugins.Enabled == nil {
		f.Plugins.Enabled = []string{}
	}
	if len(c.Plugins.Settings) > 0 {
		f.Plugins.Rest = make(map[string]any, len(c.Plugins.Settings))
		for name, s := range c.Plugins.Settings {
			f.Plugins.Rest[name] = s
		}
	}
	if c.LogLevel != "info" {
		f.LogLevel = c.LogLevel
	}
	return yaml.Marshal(&f)
}

// Save writes the config to path (c.Path when empty), readable only by the
// owner since it may hold a database password.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.Path
	}
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return os.Chmod(path, 0o600)
}
