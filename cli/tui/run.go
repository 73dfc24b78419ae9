package tui

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/initializ/foundry/cli/output"
	"github.com/initializ/foundry/core/pipeline"
)

// Run drives fn (a Build, Clean or Rebuild of p) while showing the live
// view on out, and returns fn's error.
func Run(ctx context.Context, p *pipeline.Pipeline, out io.Writer, theme output.Theme, title string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(New(output.NewStyles(theme, out), title, cancel), tea.WithOutput(out))
	id := p.AddObserver(pipeline.ObserverFunc(func(e pipeline.Event) {
		prog.Send(EventMsg{e})
	}))
	defer p.RemoveObserver(id)

	errCh := make(chan error, 1)
	go func() {
		err := fn(ctx)
		errCh <- err
		prog.Send(DoneMsg{Err: err})
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("running build view: %w", err)
	}
	return <-errCh
}
