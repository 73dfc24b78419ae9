package addinkit

import (
	"strconv"
	"testing"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/config"
	"github.com/initializ/foundry/core/diagnostics"
	"github.com/initializ/foundry/core/pipeline"
)

func newPipeline(t *testing.T, f config.File, buildSystem string) *pipeline.Pipeline {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.New(f, dir)
	if err != nil {
		t.Fatal(err)
	}
	p, err := pipeline.New(pipeline.Options{Config: cfg, SrcDir: dir, BuildSystem: buildSystem})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRequireBuildSystem(t *testing.T) {
	p := newPipeline(t, config.File{}, "make")
	if err := RequireBuildSystem(p, "makefile", "make"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := RequireBuildSystem(p, "meson", "meson"); !builderr.IsNotSupported(err) {
		t.Errorf("err = %v, want not supported", err)
	}
}

func TestBaseUnload(t *testing.T) {
	p := newPipeline(t, config.File{}, "make")
	var b Base
	if _, err := b.AttachCommand(p, pipeline.PhaseBuild, 0, Command("make", "make")); err != nil {
		t.Fatal(err)
	}
	if err := b.AddErrorFormat(p, diagnostics.GCCFormat); err != nil {
		t.Fatal(err)
	}
	if len(p.Stages()) != 1 || len(b.IDs()) != 1 {
		t.Fatalf("stages = %v", p.Stages())
	}

	if err := b.Unload(p); err != nil {
		t.Fatal(err)
	}
	if len(p.Stages()) != 0 {
		t.Errorf("stages after unload = %v", p.Stages())
	}
	if _, ok := p.Diagnostics().Feed("a.c:1:1: error: x"); ok {
		t.Error("error format still registered")
	}
}

func TestConfigHelpers(t *testing.T) {
	p := newPipeline(t, config.File{Parallelism: 3, Prefix: "/opt/app", Settings: map[string]string{"k": "v"}}, "make")
	if Jobs(p) != "-j3" {
		t.Errorf("Jobs = %q", Jobs(p))
	}
	if Prefix(p) != "/opt/app" {
		t.Errorf("Prefix = %q", Prefix(p))
	}
	if Setting(p, "k", "d") != "v" || Setting(p, "missing", "d") != "d" {
		t.Error("Setting mismatch")
	}

	bare, err := pipeline.New(pipeline.Options{SrcDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if Parallelism(bare) < 1 || Jobs(bare) != "-j"+strconv.Itoa(Parallelism(bare)) {
		t.Errorf("Jobs without config = %q", Jobs(bare))
	}
	if Prefix(bare) != "/usr/local" {
		t.Errorf("Prefix without config = %q", Prefix(bare))
	}
}
