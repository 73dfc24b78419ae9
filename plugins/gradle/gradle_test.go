package gradle

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

// fakeGradle writes a gradle stand-in whose "wrapper" task creates an
// executable gradlew that records the tasks it was asked to run.
func fakeGradle(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gradle")
	script := `#!/bin/sh
echo wrapper >> calls.log
printf '#!/bin/sh\necho "$@" >> calls.log\n' > gradlew
chmod +x gradlew
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newPipeline(t *testing.T, buildSystem string, settings map[string]string) *pipeline.Pipeline {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.New(config.File{Settings: settings}, dir)
	if err != nil {
		t.Fatal(err)
	}
	p, err := pipeline.New(pipeline.Options{Config: cfg, SrcDir: dir, BuildSystem: buildSystem, Addins: []pipeline.Addin{New()}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() }) //nolint:errcheck
	return p
}

func TestAddin_DeclinesOtherBuildSystems(t *testing.T) {
	if err := New().Load(newPipeline(t, "maven", nil)); !builderr.IsNotSupported(err) {
		t.Errorf("Load = %v, want not supported", err)
	}
}

func TestAddin_WrapperRunsOnce(t *testing.T) {
	p := newPipeline(t, "gradle", map[string]string{"gradle.command": fakeGradle(t)})
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx := context.Background()
	if err := p.Build(ctx, pipeline.PhaseBuild, "assemble"); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	p.InvalidatePhase(pipeline.PhaseAutogen)
	if err := p.Build(ctx, pipeline.PhaseBuild); err != nil {
		t.Fatalf("second Build: %v", err)
	}

	data, err := os.ReadFile(p.SrcDirPath("calls.log"))
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{"wrapper", "build --console=plain assemble", "build --console=plain"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %q, want %q", got, want)
	}
}
