package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/initializ/foundry/cli/output"
	"github.com/initializ/foundry/core/pipeline"
)

var (
	stagesJSON  bool
	stagesQuery bool
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the attached stages in execution order",
	Args:  cobra.NoArgs,
	RunE:  runStages,
}

func init() {
	stagesCmd.Flags().BoolVar(&stagesJSON, "json", false, "print stages as JSON")
	stagesCmd.Flags().BoolVar(&stagesQuery, "query", false, "ask each stage whether it is up to date")
}

func runStages(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	p := s.pipeline
	if stagesQuery {
		ctx, stop := signalContext(cmd)
		defer stop()
		queryStages(ctx, p)
	}

	stages := p.Stages()
	w := stdout(cmd)
	if stagesJSON {
		if stages == nil {
			stages = []pipeline.StageInfo{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stages)
	}
	output.RenderStages(w, output.NewStyles(s.theme, w), stages)
	return nil
}

// queryStages runs each pending stage's query so the listing shows which
// ones a build would skip. Query errors leave the stage pending.
func queryStages(ctx context.Context, p *pipeline.Pipeline) {
	p.ForeachStage(func(info pipeline.StageInfo, st pipeline.Stage) {
		if info.State != pipeline.StatePending {
			return
		}
		if err := st.Query(ctx, p, nil); err != nil {
			p.Logger().Debug("stage query failed", map[string]any{"stage": info.Name, "error": err.Error()})
		}
	})
}
