// Package addinkit holds the plumbing shared by foundry's pipeline
// addins: stage tracking, error-format bookkeeping and small helpers for
// building commands.
package addinkit

import (
	"runtime"
	"strconv"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/core/runcmd"
)

// Base tracks what an addin attached so Unload can undo it. Embed it and
// implement Name and Load.
type Base struct {
	pipeline.Tracker
	formats []uint
}

// AttachCommand attaches cmd as a CommandStage and tracks it.
func (b *Base) AttachCommand(p *pipeline.Pipeline, phase pipeline.Phase, priority int, cmd *runcmd.RunCommand) (*pipeline.CommandStage, error) {
	id, s, err := p.AttachCommand(phase, priority, cmd)
	if err != nil {
		return nil, err
	}
	b.Track(id)
	return s, nil
}

// AddErrorFormat registers a diagnostics format for the addin's lifetime.
func (b *Base) AddErrorFormat(p *pipeline.Pipeline, expr string) error {
	id, err := p.AddErrorFormat(expr)
	if err != nil {
		return err
	}
	b.formats = append(b.formats, id)
	return nil
}

// Unload detaches tracked stages and removes registered error formats.
func (b *Base) Unload(p *pipeline.Pipeline) error {
	for _, id := range b.formats {
		p.RemoveErrorFormat(id)
	}
	b.formats = nil
	return b.DetachAll(p)
}

// RequireBuildSystem declines with a NotSupported error unless p was set
// up for the build system id.
func RequireBuildSystem(p *pipeline.Pipeline, addin, id string) error {
	if p.BuildSystem() != id {
		return builderr.NotSupported("%s: build system is %q, not %q", addin, p.BuildSystem(), id)
	}
	return nil
}

// Command creates a RunCommand with a display name.
func Command(name string, argv ...string) *runcmd.RunCommand {
	cmd := runcmd.New(argv...)
	cmd.SetDisplayName(name)
	return cmd
}

// Parallelism returns the configured job count, defaulting to the number
// of CPUs.
func Parallelism(p *pipeline.Pipeline) int {
	if cfg := p.Config(); cfg != nil && cfg.Parallelism() > 0 {
		return cfg.Parallelism()
	}
	return runtime.NumCPU()
}

// Jobs returns the -jN flag for Parallelism.
func Jobs(p *pipeline.Pipeline) string {
	return "-j" + strconv.Itoa(Parallelism(p))
}

// Prefix returns the configured install prefix, or /usr/local.
func Prefix(p *pipeline.Pipeline) string {
	if cfg := p.Config(); cfg != nil && cfg.Prefix() != "" {
		return cfg.Prefix()
	}
	return "/usr/local"
}

// Setting returns a configuration setting, or def when it is unset.
func Setting(p *pipeline.Pipeline, key, def string) string {
	if cfg := p.Config(); cfg != nil {
		if v := cfg.Setting(key); v != "" {
			return v
		}
	}
	return def
}
