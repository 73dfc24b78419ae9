package container

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/config"
	"github.com/initializ/foundry/core/pipeline"
)

// fakeEngine writes a docker stand-in that records its arguments and
// prints a docker-style build result.
func fakeEngine(t *testing.T) (path, log string) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "docker")
	log = filepath.Join(dir, "calls.log")
	script := `#!/bin/sh
echo "$@" >> "` + log + `"
if [ "$1" = build ]; then
	echo "Step 1/1 : FROM scratch"
	echo "Successfully built 0123abcd"
fi
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path, log
}

func newPipeline(t *testing.T, settings map[string]string, files ...string) *pipeline.Pipeline {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("FROM scratch\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := config.New(config.File{Settings: settings}, dir)
	if err != nil {
		t.Fatal(err)
	}
	p, err := pipeline.New(pipeline.Options{Config: cfg, SrcDir: dir, Addins: []pipeline.Addin{New()}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() }) //nolint:errcheck
	return p
}

func TestAddin_Declines(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]string
		files    []string
	}{
		{"no image", nil, []string{"Containerfile"}},
		{"no container file", map[string]string{"container.image": "demo"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, tt.settings, tt.files...)
			if err := New().Load(p); !builderr.IsNotSupported(err) {
				t.Errorf("Load = %v, want not supported", err)
			}
		})
	}
}

func TestAddin_InvalidSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]string
	}{
		{"unknown engine", map[string]string{"container.image": "demo", "container.engine": "kaniko"}},
		{"missing file", map[string]string{"container.image": "demo", "container.file": "build/Containerfile"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, tt.settings, "Dockerfile")
			if err := New().Load(p); builderr.CodeOf(err) != builderr.CodeInvalidConfig {
				t.Errorf("Load = %v, want invalid configuration", err)
			}
		})
	}
}

func TestAddin_PrefersContainerfile(t *testing.T) {
	p := newPipeline(t, map[string]string{"container.image": "demo"}, "Dockerfile", "Containerfile")
	got, err := findContainerFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "Containerfile" {
		t.Errorf("findContainerFile = %q", got)
	}
}

func TestAddin_Stages(t *testing.T) {
	p := newPipeline(t, map[string]string{"container.image": "demo", "container.push": "true"}, "Dockerfile")
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	stages := p.Stages()
	if len(stages) != 2 {
		t.Fatalf("stages = %v", stages)
	}
	if stages[0].Phase != pipeline.PhaseExport || stages[1].Phase != pipeline.PhaseFinal {
		t.Errorf("phases = %v, %v", stages[0].Phase, stages[1].Phase)
	}
}

func TestAddin_BuildAndPush(t *testing.T) {
	engine, log := fakeEngine(t)
	p := newPipeline(t, map[string]string{
		"container.image":      "example/demo:dev",
		"container.engine":     "docker",
		"container.program":    engine,
		"container.push":       "true",
		"container.build_args": "VERSION=1",
	}, "Containerfile")
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var lines []string
	p.AddObserver(pipeline.ObserverFunc(func(e pipeline.Event) {
		if e.Kind == pipeline.EventLog {
			lines = append(lines, e.Line)
		}
	}))
	if err := p.Build(context.Background(), pipeline.PhaseFinal); err != nil {
		t.Fatalf("Build: %v", err)
	}

	id, err := os.ReadFile(p.BuildDirPath(ImageIDFile))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(id)) != "0123abcd" {
		t.Errorf("image id = %q", id)
	}

	data, err := os.ReadFile(log)
	if err != nil {
		t.Fatal(err)
	}
	calls := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(calls) != 2 {
		t.Fatalf("calls = %q", calls)
	}
	wantBuild := "build -t example/demo:dev -f " + p.SrcDirPath("Containerfile") + " --build-arg VERSION=1 " + p.SrcDir()
	if calls[0] != wantBuild {
		t.Errorf("build call = %q\nwant %q", calls[0], wantBuild)
	}
	if calls[1] != "push example/demo:dev" {
		t.Errorf("push call = %q", calls[1])
	}
	if len(lines) == 0 || lines[len(lines)-1] != "Successfully built 0123abcd" {
		t.Errorf("log lines = %q", lines)
	}

	if err := p.Clean(context.Background(), pipeline.PhaseExport); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(p.BuildDirPath(ImageIDFile)); !os.IsNotExist(err) {
		t.Errorf("image id file survived clean: %v", err)
	}
}

func TestLogLines_LongLines(t *testing.T) {
	p := newPipeline(t, nil)
	var lines []string
	p.AddObserver(pipeline.ObserverFunc(func(e pipeline.Event) {
		if e.Kind == pipeline.EventLog {
			lines = append(lines, e.Line)
		}
	}))

	long := strings.Repeat("x", 100*1024)
	stage := pipeline.NewFuncStage("Building container image", nil)
	logLines(p, stage, pipeline.StreamStdout, []byte(long+"\nSuccessfully built 0123abcd"))

	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if len(lines[0]) != len(long) {
		t.Errorf("first line has %d bytes, want %d", len(lines[0]), len(long))
	}
	if lines[1] != "Successfully built 0123abcd" {
		t.Errorf("last line = %q", lines[1])
	}
}
