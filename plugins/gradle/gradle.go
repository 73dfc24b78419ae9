// Package gradle provides the pipeline addin for Gradle projects.
package gradle

import (
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/plugins/internal/addinkit"
)

// Addin bootstraps the Gradle wrapper and builds through it.
type Addin struct {
	addinkit.Base
}

// New creates the gradle addin.
func New() *Addin { return &Addin{} }

func (a *Addin) Name() string { return "gradle" }

func (a *Addin) Load(p *pipeline.Pipeline) error {
	if err := addinkit.RequireBuildSystem(p, a.Name(), "gradle"); err != nil {
		return err
	}
	src := p.SrcDir()

	wrapper := addinkit.Command("gradle wrapper", addinkit.Setting(p, "gradle.command", "gradle"), "wrapper")
	wrapper.SetCwd(src)
	ws, err := a.AttachCommand(p, pipeline.PhaseAutogen, 0, wrapper)
	if err != nil {
		return err
	}
	ws.SetQuery(pipeline.SentinelFile(p.SrcDirPath("gradlew"), true))

	build := addinkit.Command("gradlew build", "./gradlew", "build", "--console=plain")
	build.SetCwd(src)
	bs, err := a.AttachCommand(p, pipeline.PhaseBuild, 0, build)
	if err != nil {
		return err
	}
	bs.SetAppendTargets(true)
	bs.SetPhaseArgs(pipeline.PhaseBuild)
	bs.SetQuery(pipeline.AlwaysIncomplete())
	clean := addinkit.Command("gradlew clean", "./gradlew", "clean", "--console=plain")
	clean.SetCwd(src)
	bs.SetCleanCommand(clean)
	return nil
}
