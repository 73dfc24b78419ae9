package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFind_WalksUp(t *testing.T) {
	root := t.TempDir()
	cfg := filepath.Join(root, "foundry.yaml")
	writeFile(t, cfg, "id: demo\n")
	nested := filepath.Join(root, "src", "lib")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Find(nested)
	if err != nil {
		t.Fatal(err)
	}
	if got != cfg {
		t.Errorf("Find = %q, want %q", got, cfg)
	}
}

func TestFind_IgnoresDirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "foundry.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := Find(root)
	if err != nil {
		t.Fatal(err)
	}
	if got == filepath.Join(root, "foundry.yaml") {
		t.Errorf("Find returned a directory: %q", got)
	}
}

func TestLoad_Explicit(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "ci", "foundry.yaml")
	writeFile(t, path, "id: ci\nsrcdir: ..\n")

	p, err := Load(path, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if p.Path != path {
		t.Errorf("Path = %q", p.Path)
	}
	if p.Config.ID() != "ci" {
		t.Errorf("ID = %q", p.Config.ID())
	}
	if p.Config.SrcDir() != root {
		t.Errorf("SrcDir = %q, want %q", p.Config.SrcDir(), root)
	}
	data, err := p.ReadFile()
	if err != nil || len(data) == 0 {
		t.Errorf("ReadFile = %q, %v", data, err)
	}
}

func TestLoad_MissingExplicit(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "."); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoad_Default(t *testing.T) {
	dir := t.TempDir()
	p, err := Load("", dir)
	if err != nil {
		t.Fatal(err)
	}
	if p.Path != "" {
		t.Skipf("an ancestor of the temp dir has a foundry.yaml: %s", p.Path)
	}
	if p.Config.SrcDir() != dir {
		t.Errorf("SrcDir = %q, want %q", p.Config.SrcDir(), dir)
	}
	if _, err := p.ReadFile(); err == nil {
		t.Error("ReadFile should fail without a config file")
	}
}
