// Package maven provides the pipeline addin for Maven projects.
package maven

import (
	"os"

	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/core/runcmd"
	"github.com/initializ/foundry/plugins/internal/addinkit"
)

// mavenFormat matches javac errors as reported by the compiler plugin:
// "[ERROR] /src/App.java:[12,5] cannot find symbol".
const mavenFormat = `^\[(?P<level>ERROR|WARNING)\] (?P<filename>[^\[\]]+\.java):\[(?P<line>\d+),(?P<column>\d+)\] (?P<message>.*)$`

// Addin compiles and installs with mvn.
type Addin struct {
	addinkit.Base
}

// New creates the maven addin.
func New() *Addin { return &Addin{} }

func (a *Addin) Name() string { return "maven" }

func (a *Addin) Load(p *pipeline.Pipeline) error {
	if err := addinkit.RequireBuildSystem(p, a.Name(), "maven"); err != nil {
		return err
	}
	if err := a.AddErrorFormat(p, mavenFormat); err != nil {
		return err
	}

	mvn := program(p)
	src := p.SrcDir()
	command := func(name string, args ...string) *runcmd.RunCommand {
		cmd := addinkit.Command(name, append([]string{mvn, "--batch-mode"}, args...)...)
		cmd.SetCwd(src)
		return cmd
	}

	build, err := a.AttachCommand(p, pipeline.PhaseBuild, 0, command("mvn compile", "compile"))
	if err != nil {
		return err
	}
	build.SetPhaseArgs(pipeline.PhaseBuild)
	build.SetQuery(pipeline.AlwaysIncomplete())
	build.SetCleanCommand(command("mvn clean", "clean"))

	install, err := a.AttachCommand(p, pipeline.PhaseInstall, 0, command("mvn install", "install", "-DskipTests"))
	if err != nil {
		return err
	}
	install.SetPhaseArgs(pipeline.PhaseInstall)
	install.SetQuery(pipeline.AlwaysIncomplete())
	return nil
}

// program picks the maven executable: an explicit maven.command setting,
// then the project's ./mvnw wrapper, then mvn from PATH.
func program(p *pipeline.Pipeline) string {
	var candidates []*runcmd.RunCommand
	if v := addinkit.Setting(p, "maven.command", ""); v != "" {
		c := runcmd.New(v)
		c.SetPriority(-200)
		candidates = append(candidates, c)
	}
	if fi, err := os.Stat(p.SrcDirPath("mvnw")); err == nil && fi.Mode().IsRegular() && fi.Mode()&0o111 != 0 {
		c := runcmd.New("./mvnw")
		c.SetPriority(-100)
		candidates = append(candidates, c)
	}
	candidates = append(candidates, runcmd.New("mvn"))
	return runcmd.SelectDefault(candidates).Argv()[0]
}
