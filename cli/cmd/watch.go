package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/initializ/foundry/cli/watch"
	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/pipeline"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [phase] [targets...]",
	Short: "Build, then rebuild whenever the sources change",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a change triggers a build")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	detach := s.renderer(cmd, "build")
	defer detach()

	p := s.pipeline
	build := func(ctx context.Context) {
		if err := p.Build(ctx, phase, targets...); err != nil && !builderr.IsCancelled(err) {
			s.logger.Warn("build failed; waiting for changes", map[string]any{"error": err.Error()})
		}
	}
	build(ctx)
	if ctx.Err() != nil {
		return nil
	}

	w := watch.New(p.SrcDir(), func(paths []string) {
		s.logger.Info("sources changed", map[string]any{"paths": paths})
		p.InvalidatePhase(pipeline.PhaseBuild)
		build(ctx)
	}, s.logger)
	w.SetDebounce(watchDebounce)
	w.SkipDir(p.BuildDir())

	return w.Watch(ctx)
}
