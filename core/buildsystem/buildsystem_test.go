package buildsystem

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"make only", []string{"Makefile"}, "make"},
		{"meson beats make", []string{"Makefile", "meson.build"}, "meson"},
		{"cargo beats meson", []string{"meson.build", "Cargo.toml"}, "cargo"},
		{"go", []string{"go.mod"}, "go"},
		{"gradle kotlin dsl", []string{"build.gradle.kts"}, "gradle"},
		{"tie keeps registration order", []string{"go.mod", "Cargo.toml"}, "cargo"},
		{"maven", []string{"pom.xml"}, "maven"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				touch(t, dir, f)
			}
			bs, err := Default().Discover(dir)
			if err != nil {
				t.Fatalf("Discover: %v", err)
			}
			if bs == nil {
				t.Fatal("no build system found")
			}
			if bs.ID() != tt.want {
				t.Errorf("Discover = %q, want %q", bs.ID(), tt.want)
			}
		})
	}
}

func TestDiscoverNothing(t *testing.T) {
	bs, err := Default().Discover(t.TempDir())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if bs != nil {
		t.Errorf("expected nil, got %s", bs.ID())
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewMarkers("make", "Make", 0, "Makefile")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(NewMarkers("make", "GNU Make", 0, "GNUmakefile")); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Makefile")
	r := Default()

	bs, err := r.Resolve(dir, "")
	if err != nil || bs.ID() != "make" {
		t.Fatalf("Resolve discover = %v, %v", bs, err)
	}
	bs, err = r.Resolve(dir, "meson")
	if err != nil || bs.ID() != "meson" {
		t.Fatalf("Resolve override = %v, %v", bs, err)
	}
	if _, err := r.Resolve(dir, "scons"); err == nil {
		t.Error("expected error for unknown override")
	}
	if _, err := r.Resolve(t.TempDir(), ""); err == nil {
		t.Error("expected error for empty tree")
	}
}
