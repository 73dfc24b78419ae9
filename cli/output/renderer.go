package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/initializ/foundry/core/diagnostics"
	"github.com/initializ/foundry/core/pipeline"
)

// maxFailureLines bounds the output kept per stage for failure reports.
const maxFailureLines = 40

// Renderer prints pipeline events as they arrive. Stage output is only
// shown for failing stages unless Verbose is set; diagnostics are always
// shown.
type Renderer struct {
	mu      sync.Mutex
	w       io.Writer
	styles  *Styles
	op      string
	verbose bool

	phase   pipeline.Phase
	current uint
	started map[uint]time.Time
	output  map[uint][]string
	runAt   time.Time
	now     func() time.Time
}

// NewRenderer creates a renderer for the operation named op ("build",
// "clean", ...).
func NewRenderer(w io.Writer, styles *Styles, op string, verbose bool) *Renderer {
	return &Renderer{
		w:       w,
		styles:  styles,
		op:      op,
		verbose: verbose,
		started: make(map[uint]time.Time),
		output:  make(map[uint][]string),
		now:     time.Now,
	}
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...) //nolint:errcheck
}

func (r *Renderer) OnEvent(e pipeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.styles
	switch e.Kind {
	case pipeline.EventRunStarted:
		r.runAt = r.now()
		r.phase = pipeline.PhaseNone
		clear(r.started)
		clear(r.output)

	case pipeline.EventStageStarted:
		if base := e.Phase.Base(); base != r.phase {
			r.phase = base
			r.printf("%s %s\n", s.Title.Render("==>"), s.Phase.Render(base.Message()))
		}
		r.started[e.StageID] = r.now()
		r.current = e.StageID
		if r.verbose {
			r.printf("  %s %s\n", s.Dim.Render("▸"), s.Stage.Render(e.Stage))
		}

	case pipeline.EventStageCompleted:
		d := r.now().Sub(r.started[e.StageID])
		r.printf("  %s %s %s\n", s.Success.Render("✓"), e.Stage, s.Dim.Render(formatDuration(d)))
		delete(r.output, e.StageID)

	case pipeline.EventStageSkipped:
		r.printf("  %s %s %s\n", s.Dim.Render("-"), s.Dim.Render(e.Stage), s.Dim.Render("(disabled)"))

	case pipeline.EventStageFailed:
		if e.State == pipeline.StatePending {
			r.printf("  %s %s %s\n", s.Warning.Render("!"), e.Stage, s.Warning.Render("cancelled"))
			break
		}
		r.printf("  %s %s\n", s.Error.Render("✗"), s.Stage.Render(e.Stage))
		for _, line := range r.output[e.StageID] {
			r.printf("    %s\n", s.Secondary.Render(line))
		}
		delete(r.output, e.StageID)

	case pipeline.EventLog:
		if r.verbose {
			r.printf("    %s\n", s.Dim.Render(e.Line))
			break
		}
		// Stages run one at a time, so output belongs to the current one.
		r.output[r.current] = appendBounded(r.output[r.current], e.Line, maxFailureLines)

	case pipeline.EventDiagnostic:
		if e.Diagnostic != nil {
			r.printf("    %s\n", r.diagnostic(*e.Diagnostic))
		}

	case pipeline.EventCleanStarted:
		r.printf("%s %s\n", s.Title.Render("==>"), s.Phase.Render("Cleaning from "+strings.ToLower(e.Phase.String())))

	case pipeline.EventRunFinished:
		r.printf("%s %s %s\n", s.Success.Render("✓"), capitalize(r.op)+" succeeded", s.Dim.Render(formatDuration(r.now().Sub(r.runAt))))

	case pipeline.EventRunFailed:
		r.printf("%s %s: %s\n", s.Error.Render("✗"), capitalize(r.op)+" failed", firstLine(e.Err))
	}
}

func (r *Renderer) diagnostic(d diagnostics.Diagnostic) string {
	var style lipgloss.Style
	switch {
	case d.Severity >= diagnostics.SeverityError:
		style = r.styles.Error
	case d.Severity >= diagnostics.SeverityWarning:
		style = r.styles.Warning
	default:
		style = r.styles.Secondary
	}
	return style.Render(d.String())
}

// RenderStages writes the attached stages as a table.
func RenderStages(w io.Writer, styles *Styles, stages []pipeline.StageInfo) {
	if len(stages) == 0 {
		fmt.Fprintln(w, styles.Dim.Render("no stages attached")) //nolint:errcheck
		return
	}
	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(s.ID), 10),
			s.Phase.String(),
			strconv.Itoa(s.Priority),
			s.State.String(),
			s.Name,
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.Dim).
		Headers("ID", "PHASE", "PRIORITY", "STATE", "NAME").
		Rows(rows...)
	fmt.Fprintln(w, t.String()) //nolint:errcheck
}

func appendBounded(lines []string, line string, limit int) []string {
	lines = append(lines, line)
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}
