package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/initializ/foundry/core/diagnostics"
	"github.com/initializ/foundry/core/pipeline"
)

func newTestRenderer(buf *bytes.Buffer, verbose bool) *Renderer {
	r := NewRenderer(buf, NewStyles(DarkTheme, buf), "build", verbose)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(250 * time.Millisecond)
		return clock
	}
	return r
}

func TestRenderer_Success(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRenderer(&buf, false)

	r.OnEvent(pipeline.Event{Kind: pipeline.EventRunStarted})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventStageStarted, StageID: 1, Stage: "make", Phase: pipeline.PhaseBuild})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventLog, Stage: "make", Line: "cc -c main.c"})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventStageCompleted, StageID: 1, Stage: "make", Phase: pipeline.PhaseBuild})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventStageSkipped, StageID: 2, Stage: "make install", Phase: pipeline.PhaseInstall})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventRunFinished})

	out := buf.String()
	for _, want := range []string{"==> Building", "✓ make 250ms", "- make install (disabled)", "Build succeeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "cc -c main.c") {
		t.Errorf("stage output shown for a successful stage:\n%s", out)
	}
}

func TestRenderer_FailureShowsOutput(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRenderer(&buf, false)

	d := diagnostics.Diagnostic{File: "/src/main.c", Line: 3, Column: 1, Severity: diagnostics.SeverityError, Message: "expected ';'"}
	r.OnEvent(pipeline.Event{Kind: pipeline.EventRunStarted})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventStageStarted, StageID: 4, Stage: "make", Phase: pipeline.PhaseBuild})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventLog, Stage: "make", Line: "main.c:3:1: error: expected ';'"})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventDiagnostic, Stage: "make", Diagnostic: &d})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventStageFailed, StageID: 4, Stage: "make", State: pipeline.StateFailed})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventRunFailed, Err: errors.New("stage make: exited with status 2\nmore output")})

	out := buf.String()
	for _, want := range []string{
		"/src/main.c:3:1: error: expected ';'",
		"✗ make",
		"    main.c:3:1: error: expected ';'",
		"Build failed: stage make: exited with status 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "more output") {
		t.Errorf("run failure should only show the first error line:\n%s", out)
	}
}

func TestRenderer_VerboseAndCancelled(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRenderer(&buf, true)

	r.OnEvent(pipeline.Event{Kind: pipeline.EventStageStarted, StageID: 1, Stage: "configure", Phase: pipeline.PhaseConfigure})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventLog, Stage: "configure", Line: "checking for gcc... yes"})
	r.OnEvent(pipeline.Event{Kind: pipeline.EventStageFailed, StageID: 1, Stage: "configure", State: pipeline.StatePending})

	out := buf.String()
	for _, want := range []string{"▸ configure", "checking for gcc... yes", "! configure cancelled"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStages(t *testing.T) {
	var buf bytes.Buffer
	styles := NewStyles(DarkTheme, &buf)
	RenderStages(&buf, styles, []pipeline.StageInfo{
		{ID: 1, Name: "meson setup", Phase: pipeline.PhaseConfigure, Priority: 0, State: pipeline.StateCompleted},
		{ID: 2, Name: "ninja", Phase: pipeline.PhaseBuild, Priority: 0, State: pipeline.StatePending},
	})
	out := buf.String()
	for _, want := range []string{"PHASE", "meson setup", "configure", "ninja", "build"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	RenderStages(&buf, styles, nil)
	if !strings.Contains(buf.String(), "no stages attached") {
		t.Errorf("empty table = %q", buf.String())
	}
}

func TestDetectTheme(t *testing.T) {
	t.Setenv("FOUNDRY_THEME", "")
	t.Setenv("COLORFGBG", "")
	if got := DetectTheme("light").Name; got != "light" {
		t.Errorf("flag light = %q", got)
	}
	t.Setenv("FOUNDRY_THEME", "light")
	if got := DetectTheme("").Name; got != "light" {
		t.Errorf("env light = %q", got)
	}
	if got := DetectTheme("dark").Name; got != "dark" {
		t.Errorf("flag overrides env: %q", got)
	}
	t.Setenv("FOUNDRY_THEME", "")
	t.Setenv("COLORFGBG", "0;15")
	if got := DetectTheme("").Name; got != "light" {
		t.Errorf("COLORFGBG light = %q", got)
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("buffer reported as terminal")
	}
	if Width(&bytes.Buffer{}, 80) != 80 {
		t.Error("Width should fall back for non-files")
	}
}
