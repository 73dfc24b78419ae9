package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/initializ/foundry/core/pipeline"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [phase]",
	Short: "Clean stages from a phase onwards (default: build)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClean,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [phase] [targets...]",
	Short: "Clean, remove the build directory when safe, and build again",
	RunE:  runRebuild,
}

func runClean(cmd *cobra.Command, args []string) error {
	phase, _, err := parsePhaseArg(args, pipeline.PhaseBuild)
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
	return s.run(ctx, cmd, "clean", func(ctx context.Context) error {
		return s.pipeline.Clean(ctx, phase)
	})
}

func runRebuild(cmd *cobra.Command, args []string) error {
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
	return s.run(ctx, cmd, "rebuild", func(ctx context.Context) error {
		return s.pipeline.Rebuild(ctx, phase, targets...)
	})
}
