// Package tui is the live build view shown by "foundry build --tui".
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/initializ/foundry/cli/output"
	"github.com/initializ/foundry/core/pipeline"
)

const logLines = 8

type stageRow struct {
	id      uint
	name    string
	phase   pipeline.Phase
	state   pipeline.StageState
	started time.Time
	elapsed time.Duration
}

// EventMsg carries a pipeline event into the program.
type EventMsg struct{ pipeline.Event }

// DoneMsg reports that the build function returned.
type DoneMsg struct{ Err error }

// Model renders stage progress with a spinner on the active stage and a
// short tail of its output.
type Model struct {
	styles  *output.Styles
	spinner spinner.Model
	title   string
	cancel  func()

	stages     []stageRow
	index      map[uint]int
	logs       []string
	phase      pipeline.Phase
	cancelling bool
	done       bool
	err        error
	width      int
}

// New creates the model. cancel is called when the user presses ctrl+c;
// the model keeps running until the build reports DoneMsg.
func New(styles *output.Styles, title string, cancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Phase
	return Model{
		styles:  styles,
		spinner: sp,
		title:   title,
		cancel:  cancel,
		index:   make(map[uint]int),
		width:   80,
	}
}

func (m Model) Init() tea.Cmd { return m.spinner.Tick }

// Done reports whether the build has finished, and its error.
func (m Model) Done() (bool, error) { return m.done, m.err }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.cancelling {
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case EventMsg:
		m.apply(msg.Event)
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) row(e pipeline.Event) *stageRow {
	i, ok := m.index[e.StageID]
	if !ok {
		i = len(m.stages)
		m.index[e.StageID] = i
		m.stages = append(m.stages, stageRow{id: e.StageID, name: e.Stage, phase: e.Phase})
	}
	return &m.stages[i]
}

func (m *Model) apply(e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventRunStarted:
		m.stages = nil
		m.index = make(map[uint]int)
		m.logs = nil
	case pipeline.EventStageStarted:
		r := m.row(e)
		r.state = pipeline.StateActive
		r.started = e.Time
		m.phase = e.Phase.Base()
		m.logs = nil
	case pipeline.EventStageCompleted, pipeline.EventStageFailed, pipeline.EventStageSkipped:
		r := m.row(e)
		r.state = e.State
		if !r.started.IsZero() && !e.Time.IsZero() {
			r.elapsed = e.Time.Sub(r.started)
		}
	case pipeline.EventLog:
		m.logs = append(m.logs, e.Line)
		if len(m.logs) > logLines {
			m.logs = m.logs[len(m.logs)-logLines:]
		}
	}
}

func (m Model) icon(state pipeline.StageState) string {
	s := m.styles
	switch state {
	case pipeline.StateActive:
		return m.spinner.View()
	case pipeline.StateCompleted:
		return s.Success.Render("✓")
	case pipeline.StateFailed:
		return s.Error.Render("✗")
	case pipeline.StateDisabled:
		return s.Dim.Render("-")
	default:
		return s.Dim.Render("·")
	}
}

func (m Model) View() string {
	s := m.styles
	var b strings.Builder

	status := "Ready"
	if m.phase != pipeline.PhaseNone {
		status = m.phase.Message()
	}
	if m.cancelling && !m.done {
		status = "Cancelling"
	}
	fmt.Fprintf(&b, "%s %s\n\n", s.Title.Render("foundry "+m.title), s.Secondary.Render(status))

	for _, r := range m.stages {
		line := fmt.Sprintf("  %s %s %s", m.icon(r.state), r.name, s.Dim.Render(r.phase.String()))
		if r.elapsed > 0 {
			line += " " + s.Dim.Render(r.elapsed.Round(time.Millisecond).String())
		}
		b.WriteString(line + "\n")
	}

	if len(m.logs) > 0 {
		b.WriteString("\n")
		for _, l := range m.logs {
			b.WriteString("    " + s.Dim.Render(truncate(l, m.width-4)) + "\n")
		}
	}

	if m.done {
		b.WriteString("\n")
		if m.err != nil {
			msg, _, _ := strings.Cut(m.err.Error(), "\n")
			b.WriteString(s.Error.Render("✗ "+msg) + "\n")
		} else {
			b.WriteString(s.Success.Render("✓ done") + "\n")
		}
	}
	return b.String()
}

func truncate(s string, width int) string {
	if width <= 1 || len(s) <= width {
		return s
	}
	return s[:width-1] + "…"
}
