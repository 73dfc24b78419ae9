// Package meson provides the pipeline addin for Meson projects built with
// ninja.
package meson

import (
	"github.com/initializ/foundry/core/diagnostics"
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/plugins/internal/addinkit"
)

// Addin configures with "meson setup" and builds with ninja.
type Addin struct {
	addinkit.Base
}

// New creates the meson addin.
func New() *Addin { return &Addin{} }

func (a *Addin) Name() string { return "meson" }

func (a *Addin) Load(p *pipeline.Pipeline) error {
	if err := addinkit.RequireBuildSystem(p, a.Name(), "meson"); err != nil {
		return err
	}
	if err := a.AddErrorFormat(p, diagnostics.GCCFormat); err != nil {
		return err
	}

	// build.ninja is only written once setup succeeded, so its presence
	// means the build directory is configured. Reconfiguration after
	// meson.build edits is ninja's job.
	setup := addinkit.Command("meson setup", "meson", "setup",
		"--prefix="+addinkit.Prefix(p),
		"--buildtype="+addinkit.Setting(p, "meson.buildtype", "debugoptimized"),
		p.BuildDir(), p.SrcDir())
	cs, err := a.AttachCommand(p, pipeline.PhaseConfigure, 0, setup)
	if err != nil {
		return err
	}
	cs.SetPhaseArgs(pipeline.PhaseConfigure)
	cs.SetQuery(pipeline.SentinelFile("build.ninja", false))

	ninja := addinkit.Setting(p, "meson.ninja", "ninja")
	build, err := a.AttachCommand(p, pipeline.PhaseBuild, 0, addinkit.Command("ninja", ninja, addinkit.Jobs(p)))
	if err != nil {
		return err
	}
	build.SetAppendTargets(true)
	build.SetPhaseArgs(pipeline.PhaseBuild)
	build.SetQuery(pipeline.AlwaysIncomplete())
	build.SetCleanCommand(addinkit.Command("ninja clean", ninja, "clean"))

	install, err := a.AttachCommand(p, pipeline.PhaseInstall, 0, addinkit.Command("ninja install", ninja, "install"))
	if err != nil {
		return err
	}
	install.SetPhaseArgs(pipeline.PhaseInstall)
	install.SetQuery(pipeline.AlwaysIncomplete())
	return nil
}
