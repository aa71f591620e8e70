package repository

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeSettings(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestSettingsDir_ListAndExists(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeSettings(t, dir, "default.yaml", "path: a/\n")
	writeSettings(t, dir, "thermal.yml", "path: b/\n")
	writeSettings(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	repo := NewSettingsDir(dir)
	names := repo.List()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "default" || names[1] != "thermal" {
		t.Fatalf("names = %v", names)
	}

	if !repo.Exists("default") || !repo.Exists("thermal") {
		t.Fatalf("expected known names to exist")
	}
	if repo.Exists("notes") || repo.Exists("missing") {
		t.Fatalf("unexpected name reported as existing")
	}
}

func TestSettingsDir_MissingDir(t *testing.T) {
	t.Parallel()
	repo := NewSettingsDir(filepath.Join(t.TempDir(), "nope"))
	if names := repo.List(); len(names) != 0 {
		t.Fatalf("names = %v, want empty", names)
	}
	if repo.Exists("anything") {
		t.Fatalf("nothing should exist")
	}
}

func TestSettingsDir_Load(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeSettings(t, dir, "default.yaml", "path: greenhouse-a/daily/\ngreenhouse: greenhouse-a\nsensors:\n  thermal:\n    in-use: true\n")
	writeSettings(t, dir, "broken.yaml", "path: [unclosed")

	repo := NewSettingsDir(dir)

	doc, err := repo.Load("default")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc["path"] != "greenhouse-a/daily/" || doc["greenhouse"] != "greenhouse-a" {
		t.Fatalf("doc = %v", doc)
	}
	if _, ok := doc["sensors"].(map[string]any); !ok {
		t.Fatalf("sensors block = %T", doc["sensors"])
	}

	if _, err := repo.Load("missing"); err == nil {
		t.Fatalf("missing settings must fail")
	}
	if _, err := repo.Load("broken"); err == nil {
		t.Fatalf("broken settings must fail")
	}
}
