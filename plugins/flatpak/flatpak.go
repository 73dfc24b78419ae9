// Package flatpak provides the pipeline addin that prepares, finishes and
// exports a flatpak build directory around the project's own stages,
// which run inside it through "flatpak build".
package flatpak

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/core/runcmd"
	"github.com/initializ/foundry/plugins/internal/addinkit"
)

// Priorities within PREPARE: the workspace must exist before build-init.
const (
	prepareMkdirs    = -100
	prepareBuildInit = -90
)

// Addin attaches the flatpak workspace stages.
type Addin struct {
	addinkit.Base
}

// New creates the flatpak addin.
func New() *Addin { return &Addin{} }

func (a *Addin) Name() string { return "flatpak" }

// settings collects the flatpak.* configuration keys.
type settings struct {
	command  string
	staging  string
	repo     string
	appID    string
	sdk      string
	platform string
	branch   string
	arch     string
	finish   string
	bundle   string
}

func loadSettings(p *pipeline.Pipeline) (settings, error) {
	s := settings{
		command:  addinkit.Setting(p, "flatpak.command", "flatpak"),
		repo:     addinkit.Setting(p, "flatpak.repo_dir", p.BuildDirPath("flatpak", "repo")),
		appID:    addinkit.Setting(p, "flatpak.app_id", "com.example.App"),
		sdk:      addinkit.Setting(p, "flatpak.sdk", ""),
		platform: addinkit.Setting(p, "flatpak.platform", ""),
		branch:   addinkit.Setting(p, "flatpak.branch", "master"),
		arch:     addinkit.Setting(p, "flatpak.arch", ""),
		finish:   addinkit.Setting(p, "flatpak.command_name", ""),
		bundle:   addinkit.Setting(p, "flatpak.bundle", ""),
	}
	s.staging = stagingDir(p.Config().RuntimeCommand())
	if s.staging == "" {
		s.staging = p.BuildDirPath("flatpak", "staging")
	}

	if s.sdk == "" && s.platform == "" {
		return s, builderr.InvalidConfig("flatpak: settings flatpak.sdk and flatpak.platform are both empty")
	}
	if s.platform == "" {
		s.platform = s.sdk
	}
	if s.sdk == "" {
		s.sdk = s.platform
	}
	if s.bundle != "" && !filepath.IsAbs(s.bundle) {
		s.bundle = p.BuildDirPath(s.bundle)
	}
	return s, nil
}

// stagingDir finds the build directory operand of a "flatpak build"
// runtime command.
func stagingDir(runtimeCmd []string) string {
	seenBuild := false
	for _, arg := range runtimeCmd[1:] {
		switch {
		case !seenBuild:
			seenBuild = arg == "build"
		case !strings.HasPrefix(arg, "-"):
			return arg
		}
	}
	return ""
}

func (s settings) archArgs() []string {
	if s.arch == "" {
		return nil
	}
	return []string{"--arch=" + s.arch}
}

// hostCommand runs a flatpak tool outside the sandbox.
func (s settings) hostCommand(name string, args ...string) *runcmd.RunCommand {
	cmd := addinkit.Command(name, append([]string{s.command}, args...)...)
	cmd.SetLocality(runcmd.LocalityHost)
	return cmd
}

func (a *Addin) Load(p *pipeline.Pipeline) error {
	cfg := p.Config()
	if cfg == nil || cfg.Locality() != runcmd.LocalityContainer {
		return builderr.NotSupported("flatpak: locality is not container")
	}
	if rc := cfg.RuntimeCommand(); len(rc) == 0 || filepath.Base(rc[0]) != "flatpak" {
		return builderr.NotSupported("flatpak: runtime command is not flatpak")
	}
	s, err := loadSettings(p)
	if err != nil {
		return err
	}

	mkdirs := pipeline.NewFuncStage("Creating flatpak workspace", func(context.Context, *pipeline.Pipeline, []string) error {
		for _, dir := range []string{s.repo, filepath.Dir(s.staging)} {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return err
			}
		}
		return nil
	})
	mkdirs.SetQuery(pipeline.SentinelFile(s.repo, false))
	if _, err := a.Attach(p, pipeline.PhasePrepare, prepareMkdirs, mkdirs); err != nil {
		return err
	}

	initArgs := append([]string{"build-init"}, s.archArgs()...)
	initArgs = append(initArgs, s.staging, s.appID, s.sdk, s.platform, s.branch)
	buildInit := &initStage{
		CommandStage: pipeline.NewCommandStage("Preparing build directory", s.hostCommand("flatpak build-init", initArgs...)),
		staging:      s.staging,
	}
	if _, err := a.Attach(p, pipeline.PhasePrepare, prepareBuildInit, buildInit); err != nil {
		return err
	}

	finishArgs := []string{"build-finish"}
	if s.finish != "" {
		finishArgs = append(finishArgs, "--command="+s.finish)
	}
	finish, err := a.AttachCommand(p, pipeline.PhaseCommit, 0, s.hostCommand("flatpak build-finish", append(finishArgs, s.staging)...))
	if err != nil {
		return err
	}
	finish.SetPhaseArgs(pipeline.PhaseCommit)
	finish.SetQuery(pipeline.SentinelFile(filepath.Join(s.staging, "export"), false))

	exportArgs := append([]string{"build-export"}, s.archArgs()...)
	export, err := a.AttachCommand(p, pipeline.PhaseExport, 0, s.hostCommand("flatpak build-export", append(exportArgs, s.repo, s.staging)...))
	if err != nil {
		return err
	}
	export.SetPhaseArgs(pipeline.PhaseExport)
	export.SetQuery(pipeline.AlwaysIncomplete())

	if s.bundle != "" {
		bundleArgs := append([]string{"build-bundle"}, s.archArgs()...)
		bundleArgs = append(bundleArgs, s.repo, s.bundle, s.appID, s.branch)
		bundle, err := a.AttachCommand(p, pipeline.PhaseFinal, 0, s.hostCommand("flatpak build-bundle", bundleArgs...))
		if err != nil {
			return err
		}
		bundle.SetQuery(pipeline.AlwaysIncomplete())
	}
	return nil
}

// initStage runs "flatpak build-init" unless the staging directory is
// already initialised. A half-initialised directory is removed first so
// build-init starts clean.
type initStage struct {
	*pipeline.CommandStage
	staging string
}

func (s *initStage) Query(_ context.Context, p *pipeline.Pipeline, _ []string) error {
	ok, err := initialized(s.staging)
	if err != nil {
		return err
	}
	s.SetCompleted(ok)
	if ok {
		return nil
	}
	if _, err := os.Stat(s.staging); err == nil {
		p.Logger().Info("removing incomplete staging directory", map[string]any{"dir": s.staging})
		return os.RemoveAll(s.staging)
	}
	return nil
}

func (s *initStage) Clean(context.Context, *pipeline.Pipeline) error {
	return os.RemoveAll(s.staging)
}

// initialized reports whether dir has the layout build-init leaves behind.
func initialized(dir string) (bool, error) {
	checks := []struct {
		name string
		dir  bool
	}{
		{"metadata", false},
		{"files", true},
		{"var", true},
	}
	for _, c := range checks {
		fi, err := os.Stat(filepath.Join(dir, c.name))
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if fi.IsDir() != c.dir {
			return false, nil
		}
	}
	return true, nil
}
