package pidregistry

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFilePathStableAndDistinct(t *testing.T) {
	a1 := filePath("/home/dev/project-a/corral.toml")
	a2 := filePath("/home/dev/project-a/corral.toml")
	b := filePath("/home/dev/project-b/corral.toml")

	if a1 != a2 {
		t.Fatalf("filePath not stable across calls: %q != %q", a1, a2)
	}
	if a1 == b {
		t.Fatalf("filePath collided for distinct configuration paths: %q", a1)
	}
}

func TestFilePathFallback(t *testing.T) {
	p := filePath("")
	if filepath.Base(p) != "corral-procs-default.json" {
		t.Fatalf("unexpected fallback file name: %q", p)
	}
}

func TestLoadMissingFile(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "does-not-exist", "cfg.toml"))
	_, ok := r.Load()
	if ok {
		t.Fatalf("Load on missing file reported ok=true")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cfg.toml")
	r := New(configPath)
	if err := os.WriteFile(r.Path(), []byte("not json"), 0o644); err != nil {
		t.Fatalf("setup write failed: %s", err)
	}
	defer os.Remove(r.Path())

	_, ok := r.Load()
	if ok {
		t.Fatalf("Load on malformed JSON reported ok=true")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cfg.toml")
	r := New(configPath)
	defer r.Delete()

	want := &PidFileData{
		Version: CurrentVersion,
		Processes: []PidFileEntry{
			{ToolIndex: 0, ToolName: "web", PID: 1234, StartTime: 1000, Command: "npm", Args: []string{"run", "dev"}, Cwd: "/app"},
		},
	}
	if err := r.Save(want); err != nil {
		t.Fatalf("Save failed: %s", err)
	}

	got, ok := r.Load()
	if !ok {
		t.Fatalf("Load after Save reported ok=false")
	}
	if got.Version != want.Version || len(got.Processes) != 1 || !reflect.DeepEqual(got.Processes[0], want.Processes[0]) {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestUpdateReplacesSameIndex(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cfg.toml")
	r := New(configPath)
	defer r.Delete()

	if err := r.Update(PidFileEntry{ToolIndex: 0, ToolName: "web", PID: 100}); err != nil {
		t.Fatalf("first Update failed: %s", err)
	}
	if err := r.Update(PidFileEntry{ToolIndex: 0, ToolName: "web", PID: 200}); err != nil {
		t.Fatalf("second Update failed: %s", err)
	}

	data, ok := r.Load()
	if !ok {
		t.Fatalf("Load failed after Update")
	}
	if len(data.Processes) != 1 {
		t.Fatalf("expected exactly one entry for toolIndex 0, got %d", len(data.Processes))
	}
	if data.Processes[0].PID != 200 {
		t.Fatalf("expected latest PID 200, got %d", data.Processes[0].PID)
	}
}

func TestUpdateThenRemoveLeavesNoEntry(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cfg.toml")
	r := New(configPath)
	defer r.Delete()

	if err := r.Update(PidFileEntry{ToolIndex: 3, ToolName: "db", PID: 42}); err != nil {
		t.Fatalf("Update failed: %s", err)
	}
	if err := r.Remove(3); err != nil {
		t.Fatalf("Remove failed: %s", err)
	}

	data, ok := r.Load()
	if ok {
		for _, e := range data.Processes {
			if e.ToolIndex == 3 {
				t.Fatalf("entry for toolIndex 3 still present after Remove")
			}
		}
	}
}

func TestRemoveDeletesFileWhenEmpty(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "cfg.toml")
	r := New(configPath)

	if err := r.Update(PidFileEntry{ToolIndex: 0, ToolName: "only", PID: 1}); err != nil {
		t.Fatalf("Update failed: %s", err)
	}
	if err := r.Remove(0); err != nil {
		t.Fatalf("Remove failed: %s", err)
	}
	if _, err := os.Stat(r.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file to be deleted once empty, stat err: %v", err)
	}
}
