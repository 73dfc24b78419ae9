package makefile

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/config"
	"github.com/initializ/foundry/core/pipeline"
)

const testMakefile = `all:
	echo built > built.txt

install:
	echo $(PREFIX) > installed.txt

clean:
	rm -f built.txt installed.txt
`

func newPipeline(t *testing.T, buildSystem string) *pipeline.Pipeline {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.New(config.File{Parallelism: 2, Prefix: "/opt/demo"}, dir)
	if err != nil {
		t.Fatal(err)
	}
	p, err := pipeline.New(pipeline.Options{
		Config:      cfg,
		SrcDir:      dir,
		BuildSystem: buildSystem,
		Addins:      []pipeline.Addin{New()},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() }) //nolint:errcheck
	return p
}

func TestAddin_Name(t *testing.T) {
	if New().Name() != "makefile" {
		t.Errorf("Name() = %q", New().Name())
	}
}

func TestAddin_DeclinesOtherBuildSystems(t *testing.T) {
	p := newPipeline(t, "meson")
	if err := New().Load(p); !builderr.IsNotSupported(err) {
		t.Errorf("Load = %v, want not supported", err)
	}
}

func TestAddin_Stages(t *testing.T) {
	p := newPipeline(t, "make")
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	stages := p.Stages()
	if len(stages) != 2 {
		t.Fatalf("expected 2 stages, got %v", stages)
	}
	if stages[0].Phase != pipeline.PhaseBuild || stages[1].Phase != pipeline.PhaseInstall {
		t.Errorf("phases = %v, %v", stages[0].Phase, stages[1].Phase)
	}

	s, _ := p.StageByID(stages[0].ID)
	ms := s.(*makeStage)
	if got := ms.Command().Argv(); !reflect.DeepEqual(got, []string{"make", "-j2"}) {
		t.Errorf("build argv = %v", got)
	}
	s, _ = p.StageByID(stages[1].ID)
	if got := s.(*makeStage).Command().Argv(); !reflect.DeepEqual(got, []string{"make", "install", "PREFIX=/opt/demo"}) {
		t.Errorf("install argv = %v", got)
	}

	if err := p.Unload(); err != nil {
		t.Fatal(err)
	}
	if len(p.Stages()) != 0 {
		t.Error("stages left after unload")
	}
}

func TestAddin_BuildChainsInstall(t *testing.T) {
	if _, err := exec.LookPath("make"); err != nil {
		t.Skip("make not installed")
	}
	p := newPipeline(t, "make")
	if err := os.WriteFile(p.SrcDirPath("Makefile"), []byte(testMakefile), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Load(); err != nil {
		t.Fatal(err)
	}

	var started []string
	p.AddObserver(pipeline.ObserverFunc(func(e pipeline.Event) {
		if e.Kind == pipeline.EventStageStarted {
			started = append(started, e.Stage)
		}
	}))

	if err := p.Build(context.Background(), pipeline.PhaseInstall); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(started, []string{"make"}) {
		t.Errorf("started = %v, want install chained into make", started)
	}
	for _, f := range []string{"built.txt", "installed.txt"} {
		if _, err := os.Stat(filepath.Join(p.SrcDir(), f)); err != nil {
			t.Errorf("%s not created: %v", f, err)
		}
	}
	data, _ := os.ReadFile(p.SrcDirPath("installed.txt"))
	if strings.TrimSpace(string(data)) != "/opt/demo" {
		t.Errorf("installed.txt = %q", data)
	}

	if err := p.Clean(context.Background(), pipeline.PhaseBuild); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(p.SrcDirPath("built.txt")); !os.IsNotExist(err) {
		t.Error("make clean did not run")
	}
}

func TestAddin_BuildOnlyDoesNotInstall(t *testing.T) {
	if _, err := exec.LookPath("make"); err != nil {
		t.Skip("make not installed")
	}
	p := newPipeline(t, "make")
	if err := os.WriteFile(p.SrcDirPath("Makefile"), []byte(testMakefile), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Load(); err != nil {
		t.Fatal(err)
	}
	if err := p.Build(context.Background(), pipeline.PhaseBuild); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := os.Stat(p.SrcDirPath("installed.txt")); !os.IsNotExist(err) {
		t.Error("install ran for build phase")
	}
}
