package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/initializ/foundry/cli/output"
	"github.com/initializ/foundry/cli/tui"
	"github.com/initializ/foundry/core/pipeline"
)

var useTUI bool

var buildCmd = &cobra.Command{
	Use:   "build [phase] [targets...]",
	Short: "Run the pipeline up to a phase (default: build)",
	Long:  "Build runs every stage of the given phase and the phases before it, skipping stages that are already up to date. Extra arguments are passed to the build tool as targets.",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&useTUI, "tui", false, "show a live progress view")
}

func runBuild(cmd *cobra.Command, args []string) error {
	phase, targets, err := parsePhaseArg(args, pipeline.PhaseBuild)
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signalContext(cmd)
	defer stop()
	return s.run(ctx, cmd, "build", func(ctx context.Context) error {
		return s.pipeline.Build(ctx, phase, targets...)
	})
}

// run executes fn with progress shown either in the live view (when
// requested and stdout is a terminal) or as rendered lines.
func (s *session) run(ctx context.Context, cmd *cobra.Command, op string, fn func(ctx context.Context) error) error {
	if useTUI && output.IsTerminal(stdout(cmd)) {
		return tui.Run(ctx, s.pipeline, stdout(cmd), s.theme, op, fn)
	}
	detach := s.renderer(cmd, op)
	defer detach()
	return fn(ctx)
}
