// Package golang provides the pipeline addin for Go modules.
package golang

import (
	"path/filepath"

	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/plugins/internal/addinkit"
)

// goFormat matches compiler and vet output such as
// "./main.go:12:3: undefined: foo".
const goFormat = `^(?P<filename>[^\s:]+\.go):(?P<line>\d+):(?P<column>\d+): (?P<message>.+)$`

// Addin downloads modules, builds, and installs with the go tool.
type Addin struct {
	addinkit.Base
}

// New creates the golang addin.
func New() *Addin { return &Addin{} }

func (a *Addin) Name() string { return "golang" }

func (a *Addin) Load(p *pipeline.Pipeline) error {
	if err := addinkit.RequireBuildSystem(p, a.Name(), "go"); err != nil {
		return err
	}
	if err := a.AddErrorFormat(p, goFormat); err != nil {
		return err
	}

	gobin := addinkit.Setting(p, "go.command", "go")
	pkgs := addinkit.Setting(p, "go.packages", "./...")
	src := p.SrcDir()

	download := addinkit.Command("go mod download", gobin, "mod", "download")
	download.SetCwd(src)
	dl, err := a.AttachCommand(p, pipeline.PhaseDownloads, 0, download)
	if err != nil {
		return err
	}
	dl.SetQuery(pipeline.AlwaysIncomplete())

	// -o with a trailing separator writes every main package into the
	// build directory.
	build := addinkit.Command("go build", gobin, "build", "-o", p.BuildDir()+string(filepath.Separator), pkgs)
	build.SetCwd(src)
	bs, err := a.AttachCommand(p, pipeline.PhaseBuild, 0, build)
	if err != nil {
		return err
	}
	bs.SetPhaseArgs(pipeline.PhaseBuild)
	bs.SetQuery(pipeline.AlwaysIncomplete())
	clean := addinkit.Command("go clean", gobin, "clean", pkgs)
	clean.SetCwd(src)
	bs.SetCleanCommand(clean)

	install := addinkit.Command("go install", gobin, "install", pkgs)
	install.SetCwd(src)
	install.Setenv("GOBIN", filepath.Join(addinkit.Prefix(p), "bin"))
	is, err := a.AttachCommand(p, pipeline.PhaseInstall, 0, install)
	if err != nil {
		return err
	}
	is.SetPhaseArgs(pipeline.PhaseInstall)
	is.SetQuery(pipeline.AlwaysIncomplete())
	return nil
}
