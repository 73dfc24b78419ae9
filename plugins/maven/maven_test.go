package maven

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/config"
	"github.com/initializ/foundry/core/diagnostics"
	"github.com/initializ/foundry/core/pipeline"
)

func newPipeline(t *testing.T, buildSystem string) *pipeline.Pipeline {
	t.Helper()
	dir := t.TempDir()
	p, err := pipeline.New(pipeline.Options{Config: config.Default(dir), SrcDir: dir, BuildSystem: buildSystem})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAddin_DeclinesOtherBuildSystems(t *testing.T) {
	if err := New().Load(newPipeline(t, "gradle")); !builderr.IsNotSupported(err) {
		t.Errorf("Load = %v, want not supported", err)
	}
}

func TestAddin_Stages(t *testing.T) {
	p := newPipeline(t, "maven")
	if err := New().Load(p); err != nil {
		t.Fatalf("Load: %v", err)
	}
	stages := p.Stages()
	if len(stages) != 2 {
		t.Fatalf("stages = %v", stages)
	}
	s, _ := p.StageByID(stages[0].ID)
	build := s.(*pipeline.CommandStage)
	if got := build.Command().Argv(); !reflect.DeepEqual(got, []string{"mvn", "--batch-mode", "compile"}) {
		t.Errorf("build argv = %v", got)
	}
	if got := build.CleanCommand().Argv(); !reflect.DeepEqual(got, []string{"mvn", "--batch-mode", "clean"}) {
		t.Errorf("clean argv = %v", got)
	}
	if stages[1].Phase != pipeline.PhaseInstall || stages[1].Name != "mvn install" {
		t.Errorf("install stage = %+v", stages[1])
	}
}

func TestProgram(t *testing.T) {
	newWith := func(t *testing.T, settings map[string]string, wrapper bool) *pipeline.Pipeline {
		t.Helper()
		dir := t.TempDir()
		if wrapper {
			if err := os.WriteFile(filepath.Join(dir, "mvnw"), []byte("#!/bin/sh\n"), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		cfg, err := config.New(config.File{Settings: settings}, dir)
		if err != nil {
			t.Fatal(err)
		}
		p, err := pipeline.New(pipeline.Options{Config: cfg, SrcDir: dir, BuildSystem: "maven"})
		if err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name     string
		settings map[string]string
		wrapper  bool
		want     string
	}{
		{"path", nil, false, "mvn"},
		{"wrapper", nil, true, "./mvnw"},
		{"setting beats wrapper", map[string]string{"maven.command": "/opt/maven/bin/mvn"}, true, "/opt/maven/bin/mvn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := program(newWith(t, tt.settings, tt.wrapper)); got != tt.want {
				t.Errorf("program() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMavenFormat(t *testing.T) {
	parser := diagnostics.NewParser("/proj")
	if _, err := parser.AddFormat(mavenFormat); err != nil {
		t.Fatal(err)
	}
	d, ok := parser.Feed("[ERROR] /proj/src/main/java/App.java:[12,5] cannot find symbol")
	if !ok {
		t.Fatal("line not matched")
	}
	if d.File != "/proj/src/main/java/App.java" || d.Line != 12 || d.Column != 5 || d.Severity != diagnostics.SeverityError {
		t.Errorf("diagnostic = %+v", d)
	}
	if _, ok := parser.Feed("[INFO] BUILD SUCCESS"); ok {
		t.Error("info line matched")
	}
}
