// Package makefile provides the pipeline addin for plain Makefile
// projects.
package makefile

import (
	"context"
	"slices"
	"sync"

	"github.com/initializ/foundry/core/diagnostics"
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/core/runcmd"
	"github.com/initializ/foundry/plugins/internal/addinkit"
)

// Stage priorities within their phases.
const (
	priorityBuild   = 0
	priorityInstall = 0
)

// Addin attaches "make" and "make install" stages.
type Addin struct {
	addinkit.Base
}

// New creates the makefile addin.
func New() *Addin { return &Addin{} }

func (a *Addin) Name() string { return "makefile" }

func (a *Addin) Load(p *pipeline.Pipeline) error {
	if err := addinkit.RequireBuildSystem(p, a.Name(), "make"); err != nil {
		return err
	}
	if err := a.AddErrorFormat(p, diagnostics.GCCFormat); err != nil {
		return err
	}

	build := addinkit.Command("make", "make", addinkit.Jobs(p))
	build.SetCwd(p.SrcDir())
	bs := newMakeStage(build, false)
	bs.SetAppendTargets(true)
	bs.SetPhaseArgs(pipeline.PhaseBuild)
	bs.SetQuery(pipeline.AlwaysIncomplete())
	clean := addinkit.Command("make clean", "make", "clean")
	clean.SetCwd(p.SrcDir())
	bs.SetCleanCommand(clean)
	if _, err := a.Attach(p, pipeline.PhaseBuild, priorityBuild, bs); err != nil {
		return err
	}

	install := addinkit.Command("make install", "make", "install", "PREFIX="+addinkit.Prefix(p))
	install.SetCwd(p.SrcDir())
	is := newMakeStage(install, true)
	is.SetPhaseArgs(pipeline.PhaseInstall)
	is.SetQuery(pipeline.AlwaysIncomplete())
	if _, err := a.Attach(p, pipeline.PhaseInstall, priorityInstall, is); err != nil {
		return err
	}
	return nil
}

// makeStage is a make invocation. The build stage can absorb a following
// goal stage by appending that stage's arguments to its own command line,
// so "make && make install" becomes one "make all install" run.
type makeStage struct {
	*pipeline.CommandStage
	goal bool

	mu      sync.Mutex
	chained []string
}

func newMakeStage(cmd *runcmd.RunCommand, goal bool) *makeStage {
	return &makeStage{CommandStage: pipeline.NewCommandStage(cmd.DisplayName(), cmd), goal: goal}
}

func (s *makeStage) Chain(next pipeline.Stage) bool {
	n, ok := next.(*makeStage)
	if !ok || !n.goal || s.goal {
		return false
	}
	s.mu.Lock()
	s.chained = append(s.chained, n.Command().Argv()[1:]...)
	s.mu.Unlock()
	return true
}

func (s *makeStage) Execute(ctx context.Context, p *pipeline.Pipeline, targets []string) error {
	s.mu.Lock()
	extra := s.chained
	s.chained = nil
	s.mu.Unlock()

	if len(extra) == 0 {
		return s.CommandStage.Execute(ctx, p, targets)
	}
	if len(targets) == 0 {
		targets = []string{"all"}
	}
	return s.CommandStage.Execute(ctx, p, append(slices.Clone(targets), extra...))
}
