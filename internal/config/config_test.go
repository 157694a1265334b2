package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenes/internal/config"
	"scenes/internal/entitydb"
	"scenes/internal/scene"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(config.EnvDataDir, "")
	t.Setenv(config.EnvBackendDriver, "")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.Driver != entitydb.DriverSQLite {
		t.Errorf("expected sqlite driver, got %q", cfg.Backend.Driver)
	}
	if cfg.Engine.HistoryLimit != scene.DefaultHistoryLimit {
		t.Errorf("expected default history limit, got %d", cfg.Engine.HistoryLimit)
	}
	if cfg.Load.MissingComponent != scene.MissingDrop || cfg.Load.DanglingParent != scene.DanglingOrphan {
		t.Errorf("unexpected load policy: %+v", cfg.Load)
	}
	if cfg.Watch.Dir != filepath.Join(cfg.DataDir, "documents") {
		t.Errorf("unexpected watch dir %q", cfg.Watch.Dir)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
data_dir = "`+dir+`"

[backend]
driver = "postgres"
host = "db.local"
database = "plant"
username = "scada"
password_env = "TEST_SCENES_PW"

[engine]
concurrency = 4
history_limit = 10
paste_offset = [5.0, 7.0]

[load]
missing_component = "fail"
dangling_parent = "drop"

[mcp]
require_approval = true

[[refresh]]
scene = "s1"
entity = 42
schedule = "@every 30s"
`)
	t.Setenv("TEST_SCENES_PW", "hunter2")
	t.Setenv(config.EnvDataDir, "")
	t.Setenv(config.EnvBackendDSN, "")
	t.Setenv(config.EnvBackendDriver, "mysql")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.MCP.RequireApproval {
		t.Error("expected mcp.require_approval from file")
	}
	if cfg.Backend.Driver != "mysql" {
		t.Errorf("env should override driver, got %q", cfg.Backend.Driver)
	}
	db, err := cfg.EntityDB()
	if err != nil {
		t.Fatalf("entity db: %v", err)
	}
	if db.Password != "hunter2" || db.Host != "db.local" {
		t.Errorf("unexpected entity db config: %+v", db)
	}
	if cfg.Engine.Concurrency != 4 || cfg.PasteOffset().X != 5 || cfg.PasteOffset().Y != 7 {
		t.Errorf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Engine.PersistedHistory == 0 {
		t.Error("unset keys should keep their defaults")
	}
	if cfg.Load.MissingComponent != scene.MissingFail || cfg.Load.DanglingParent != scene.DanglingDrop {
		t.Errorf("unexpected load policy: %+v", cfg.Load)
	}
	if len(cfg.Refresh) != 1 || cfg.Refresh[0].Entity != 42 {
		t.Errorf("unexpected refresh jobs: %+v", cfg.Refresh)
	}
	if cfg.DBPath() != filepath.Join(dir, "scenes.db") {
		t.Errorf("unexpected db path %q", cfg.DBPath())
	}
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv(config.EnvBackendDriver, "")
	cases := map[string]string{
		"unknown key":    "colour = \"red\"\n",
		"unknown driver": "[backend]\ndriver = \"oracle\"\n",
		"bad policy":     "[load]\nmissing_component = \"ignore\"\n",
		"bad refresh":    "[[refresh]]\nscene = \"s1\"\n",
		"bad secret":     "[backend]\npassword_secret = \"vault:db\"\n",
		"bad feed":       "[[feed]]\nsource = \"csv_file\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestEntityDB_SQLiteDefaultsUnderDataDir(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/srv/scenes"
	db, err := cfg.EntityDB()
	if err != nil {
		t.Fatalf("entity db: %v", err)
	}
	if db.DSN != "/srv/scenes/entities.db" {
		t.Fatalf("unexpected dsn %q", db.DSN)
	}
}

func TestEntityDB_PasswordSecret(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pg"), []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("SCENES_TEST_PG", "from-env")
	cfg := config.Default()
	cfg.Backend.PasswordEnv = "SCENES_TEST_PG"
	cfg.Backend.PasswordSecret = "file:" + filepath.Join(dir, "pg")

	db, err := cfg.EntityDB()
	if err != nil {
		t.Fatalf("entity db: %v", err)
	}
	if db.Password != "from-file" {
		t.Fatalf("expected the secret to win over password_env, got %q", db.Password)
	}

	cfg.Backend.PasswordSecret = "file:" + filepath.Join(dir, "missing")
	if _, err := cfg.EntityDB(); err == nil {
		t.Fatal("expected an error for a missing secret")
	}
}

func TestEncode_RoundTrips(t *testing.T) {
	t.Setenv(config.EnvDataDir, "")
	t.Setenv(config.EnvBackendDriver, "")
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), "history_limit") {
		t.Fatalf("expected engine keys in output:\n%s", data)
	}
	path := writeConfig(t, string(data))
	back, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload encoded config: %v", err)
	}
	if back.Engine != cfg.Engine {
		t.Fatalf("engine changed: %+v vs %+v", back.Engine, cfg.Engine)
	}
}
