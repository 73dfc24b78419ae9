// Package gitmodules provides the pipeline addin that initialises and
// updates git submodules during the DOWNLOADS phase.
package gitmodules

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-git/go-git/v5"

	"github.com/initializ/foundry/core/backoff"
	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/plugins/internal/addinkit"
)

const (
	defaultAttempts = 3
	minDelay        = 250
	maxDelay        = 5000
)

// Addin attaches the submodule update stage to projects that have a
// .gitmodules file.
type Addin struct {
	addinkit.Base
}

// New creates the gitmodules addin.
func New() *Addin { return &Addin{} }

func (a *Addin) Name() string { return "gitmodules" }

func (a *Addin) Load(p *pipeline.Pipeline) error {
	if _, err := os.Stat(p.SrcDirPath(".gitmodules")); err != nil {
		return builderr.NotSupported("gitmodules: no .gitmodules in %s", p.SrcDir())
	}

	attempts := defaultAttempts
	if v := addinkit.Setting(p, "gitmodules.attempts", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return builderr.InvalidConfig("gitmodules: invalid gitmodules.attempts %q", v)
		}
		attempts = n
	}

	u := &updater{srcdir: p.SrcDir(), attempts: attempts}
	stage := pipeline.NewFuncStage("Updating git submodules", u.update)
	stage.SetQuery(u.query)
	_, err := a.Attach(p, pipeline.PhaseDownloads, 0, stage)
	return err
}

type updater struct {
	srcdir   string
	attempts int
}

func (u *updater) submodules() (git.Submodules, error) {
	repo, err := git.PlainOpen(u.srcdir)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", u.srcdir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	return wt.Submodules()
}

// query marks the stage completed when every submodule is checked out at
// the commit recorded in the superproject.
func (u *updater) query(_ context.Context, _ *pipeline.Pipeline, s *pipeline.StageBase, _ []string) error {
	subs, err := u.submodules()
	if err != nil {
		return err
	}
	status, err := subs.Status()
	if err != nil {
		s.SetCompleted(false)
		return nil
	}
	for _, st := range status {
		if !st.IsClean() {
			s.SetCompleted(false)
			return nil
		}
	}
	s.SetCompleted(true)
	return nil
}

func (u *updater) update(ctx context.Context, p *pipeline.Pipeline, _ []string) error {
	b := backoff.New(minDelay, maxDelay)
	err := backoff.Retry(ctx, b, u.attempts, func(ctx context.Context) error {
		subs, err := u.submodules()
		if err != nil {
			return err
		}
		err = subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
			Init:              true,
			RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		})
		if err != nil {
			p.Logger().Warn("submodule update failed", map[string]any{"error": err.Error(), "failures": b.Failures() + 1})
		}
		return err
	})
	if ctx.Err() != nil {
		return builderr.Cancelled(ctx, "submodule update")
	}
	if err != nil {
		return fmt.Errorf("updating submodules: %w", err)
	}
	// New submodule sources may change what the dependency stages need.
	p.InvalidatePhase(pipeline.PhaseDependencies)
	return nil
}
