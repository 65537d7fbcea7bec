package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arctir/corral/supervisor"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "corral.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}
	return path
}

func TestLoadParsesToolsAndServer(t *testing.T) {
	path := writeConfig(t, `
theme = "dark"

[server]
port = 9000
api_tool_name = "bridge"

[[tools]]
name = "db"
command = "postgres"
args = ["-D", "data"]

[[tools]]
name = "api"
command = "myapi"
depends_on = ["db"]
env = { PORT = "8080" }
cleanup = ["rm -rf tmp"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(cfg.Tools))
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Theme != "dark" {
		t.Errorf("Theme = %q, want dark", cfg.Theme)
	}
	if cfg.APIToolName != "bridge" {
		t.Errorf("APIToolName = %q, want bridge", cfg.APIToolName)
	}

	api := cfg.Tools[1]
	if api.Name != "api" || api.Command != "myapi" {
		t.Errorf("unexpected tool: %+v", api)
	}
	if len(api.DependsOn) != 1 || api.DependsOn[0] != "db" {
		t.Errorf("DependsOn = %v, want [db]", api.DependsOn)
	}
	if api.Env["PORT"] != "8080" {
		t.Errorf("Env[PORT] = %q, want 8080", api.Env["PORT"])
	}
}

func TestLoadDefaultsPortAndAPIName(t *testing.T) {
	path := writeConfig(t, `
[[tools]]
name = "a"
command = "echo"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", cfg.Port, DefaultPort)
	}
	if cfg.APIToolName != "MCP API" {
		t.Errorf("APIToolName = %q, want default MCP API", cfg.APIToolName)
	}
}

func TestLoadSkipsInvalidToolsWithWarnings(t *testing.T) {
	path := writeConfig(t, `
[[tools]]
command = "echo"

[[tools]]
name = "b"

[[tools]]
name = "c"
command = "echo"

[[tools]]
name = "c"
command = "echo"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Name != "c" {
		t.Fatalf("expected only tool %q to survive, got %+v", "c", cfg.Tools)
	}
	if len(cfg.Warnings) != 3 {
		t.Errorf("got %d warnings, want 3: %v", len(cfg.Warnings), cfg.Warnings)
	}
}

func TestLoadWarnsOnUnknownDependency(t *testing.T) {
	path := writeConfig(t, `
[[tools]]
name = "api"
command = "echo"
depends_on = ["ghost"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	found := false
	for _, w := range cfg.Warnings {
		if w == `tool "api" depends on unknown tool "ghost"` {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unknown-dependency warning, got %v", cfg.Warnings)
	}
}

func TestLoadEmptyToolListReturnsErrEmptyConfig(t *testing.T) {
	path := writeConfig(t, `theme = "dark"`)
	_, err := Load(path)
	if err != supervisor.ErrEmptyConfig {
		t.Errorf("error = %v, want ErrEmptyConfig", err)
	}
}

func TestLoadMissingPathReturnsErrNoConfigPath(t *testing.T) {
	_, err := Load("")
	if err != supervisor.ErrNoConfigPath {
		t.Errorf("error = %v, want ErrNoConfigPath", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	path := writeConfig(t, `this is not valid toml [[[`)
	_, err := Load(path)
	if err == nil {
		t.Error("expected an error for malformed TOML")
	}
}
