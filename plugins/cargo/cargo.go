// Package cargo provides the pipeline addin for Rust projects built with
// cargo.
package cargo

import (
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/plugins/internal/addinkit"
)

// rustcFormat matches cargo's short message format:
// "src/main.rs:3:5: error[E0308]: mismatched types".
const rustcFormat = `^(?P<filename>[^:\s]+\.rs):(?P<line>\d+):(?P<column>\d+): (?P<level>error|warning)(\[\w+\])?: (?P<message>.*)$`

// Addin fetches crates and builds with cargo.
type Addin struct {
	addinkit.Base
}

// New creates the cargo addin.
func New() *Addin { return &Addin{} }

func (a *Addin) Name() string { return "cargo" }

func (a *Addin) Load(p *pipeline.Pipeline) error {
	if err := addinkit.RequireBuildSystem(p, a.Name(), "cargo"); err != nil {
		return err
	}
	if err := a.AddErrorFormat(p, rustcFormat); err != nil {
		return err
	}

	cargo := addinkit.Setting(p, "cargo.command", "cargo")
	manifest := "--manifest-path=" + p.SrcDirPath("Cargo.toml")
	targetDir := "--target-dir=" + p.BuildDir()

	fetch, err := a.AttachCommand(p, pipeline.PhaseDownloads, 0, addinkit.Command("cargo fetch", cargo, "fetch", manifest))
	if err != nil {
		return err
	}
	fetch.SetPhaseArgs(pipeline.PhaseDownloads)

	args := []string{"build", manifest, targetDir, addinkit.Jobs(p), "--message-format=short"}
	if addinkit.Setting(p, "cargo.profile", "") == "release" {
		args = append(args, "--release")
	}
	build, err := a.AttachCommand(p, pipeline.PhaseBuild, 0, addinkit.Command("cargo build", append([]string{cargo}, args...)...))
	if err != nil {
		return err
	}
	build.SetPhaseArgs(pipeline.PhaseBuild)
	build.SetQuery(pipeline.AlwaysIncomplete())
	build.SetCleanCommand(addinkit.Command("cargo clean", cargo, "clean", manifest, targetDir))
	return nil
}
