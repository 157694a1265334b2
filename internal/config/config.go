// Package config loads the scenes configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"scenes/internal/binding"
	"scenes/internal/domain"
	"scenes/internal/entitydb"
	"scenes/internal/feed"
	"scenes/internal/scene"
	"scenes/internal/secret"
	"scenes/internal/storage"
)

// Environment overrides, applied after the file is read.
const (
	EnvDataDir       = "SCENES_DATA_DIR"
	EnvBackendDriver = "SCENES_BACKEND_DRIVER"
	EnvBackendDSN    = "SCENES_BACKEND_DSN"
)

type Config struct {
	DataDir string           `toml:"data_dir"`
	Backend Backend          `toml:"backend"`
	Engine  Engine           `toml:"engine"`
	Load    scene.LoadPolicy `toml:"load"`
	Refresh []Refresh        `toml:"refresh"`
	Feeds   []feed.Job       `toml:"feed"`
	Watch   Watch            `toml:"watch"`
	MCP     MCP              `toml:"mcp"`
}

// Backend addresses the external entity store.
type Backend struct {
	Driver   string `toml:"driver"`
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	Username string `toml:"username"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `toml:"password_env"`
	// PasswordSecret is env:NAME, file:/path or keychain:account and wins
	// over PasswordEnv.
	PasswordSecret string `toml:"password_secret"`
	SSLMode     string `toml:"ssl_mode"`
}

type Engine struct {
	Concurrency int `toml:"concurrency"`
	// HistoryLimit bounds the in-memory undo stack of an open scene.
	HistoryLimit int `toml:"history_limit"`
	// PersistedHistory bounds the undo entries kept on disk per scene.
	PersistedHistory int        `toml:"persisted_history"`
	PasteOffset      [2]float64 `toml:"paste_offset"`
	ErrorLimit       int        `toml:"error_limit"`
}

// Refresh schedules a re-evaluation of one scene against one entity.
type Refresh struct {
	Scene    string `toml:"scene"`
	Entity   int64  `toml:"entity"`
	Schedule string `toml:"schedule"`
}

type Watch struct {
	Dir     string `toml:"dir"`
	Enabled bool   `toml:"enabled"`
}

type MCP struct {
	// RequireApproval holds delete_scene and delete_nodes until an
	// operator runs `scenes approve`.
	RequireApproval bool `toml:"require_approval"`
}

// DefaultDataDir is ~/.local/share/scenes.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "scenes")
}

// DefaultPath is the config file looked up when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Backend: Backend{Driver: entitydb.DriverSQLite},
		Engine: Engine{
			Concurrency:      binding.DefaultConcurrency,
			HistoryLimit:     scene.DefaultHistoryLimit,
			PersistedHistory: storage.DefaultHistoryCap,
			PasteOffset:      [2]float64{scene.DefaultPasteOffset.X, scene.DefaultPasteOffset.Y},
			ErrorLimit:       100,
		},
		Load: scene.LoadPolicy{
			MissingComponent: scene.MissingDrop,
			DanglingParent:   scene.DanglingOrphan,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults;
// unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, fmt.Errorf("parse config %s: %s", path, strict.String())
			}
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Watch.Dir = expandHome(cfg.Watch.Dir)
	if cfg.Watch.Dir == "" {
		cfg.Watch.Dir = filepath.Join(cfg.DataDir, "documents")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvBackendDriver); v != "" {
		c.Backend.Driver = v
	}
	if v := os.Getenv(EnvBackendDSN); v != "" {
		c.Backend.DSN = v
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

var drivers = []string{
	entitydb.DriverMemory,
	entitydb.DriverSQLite,
	entitydb.DriverPostgres,
	entitydb.DriverMySQL,
	entitydb.DriverMongo,
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is empty"))
	}
	if !slices.Contains(drivers, c.Backend.Driver) {
		errs = append(errs, fmt.Errorf("backend.driver %q: want one of %s", c.Backend.Driver, strings.Join(drivers, ", ")))
	}
	if c.Engine.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("engine.concurrency must be at least 1, got %d", c.Engine.Concurrency))
	}
	if c.Engine.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("engine.history_limit must be at least 1, got %d", c.Engine.HistoryLimit))
	}
	if ref := c.Backend.PasswordSecret; ref != "" {
		if err := secret.ParseRef(ref); err != nil {
			errs = append(errs, fmt.Errorf("backend.password_secret: %w", err))
		}
	}
	if err := c.Load.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("load: %w", err))
	}
	for i, r := range c.Refresh {
		if r.Scene == "" || r.Schedule == "" {
			errs = append(errs, fmt.Errorf("refresh[%d]: scene and schedule are required", i))
		}
	}
	for i, f := range c.Feeds {
		if f.Name == "" || f.Source == "" {
			errs = append(errs, fmt.Errorf("feed[%d]: name and source are required", i))
		}
	}
	return errors.Join(errs...)
}

// EntityDB returns the backend settings with the password resolved and a
// SQLite file under data_dir when no DSN is given.
func (c *Config) EntityDB() (entitydb.Config, error) {
	b := c.Backend
	cfg := entitydb.Config{
		Driver:   b.Driver,
		DSN:      b.DSN,
		Host:     b.Host,
		Port:     b.Port,
		Database: b.Database,
		Username: b.Username,
		SSLMode:  b.SSLMode,
	}
	switch {
	case b.PasswordSecret != "":
		pw, err := secret.Resolve(b.PasswordSecret)
		if err != nil {
			return cfg, fmt.Errorf("backend password: %w", err)
		}
		cfg.Password = pw
	case b.PasswordEnv != "":
		cfg.Password = os.Getenv(b.PasswordEnv)
	}
	if cfg.Driver == entitydb.DriverSQLite && cfg.DSN == "" {
		cfg.DSN = filepath.Join(c.DataDir, "entities.db")
	}
	return cfg, nil
}

// DBPath is the SQLite file holding the scene index and history.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "scenes.db")
}

func (c *Config) PasteOffset() domain.Point {
	return domain.Point{X: c.Engine.PasteOffset[0], Y: c.Engine.PasteOffset[1]}
}

// Encode renders c as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
