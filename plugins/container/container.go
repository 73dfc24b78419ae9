// Package container provides the pipeline addin that builds an OCI image
// from the project's Containerfile during EXPORT and optionally pushes it.
package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/core/runcmd"
	"github.com/initializ/foundry/plugins/internal/addinkit"
)

// ImageIDFile is written into the build directory after a successful
// image build.
const ImageIDFile = "container-image-id"

// ErrNoEngine is returned when no container engine is installed.
var ErrNoEngine = errors.New("no container engine found (tried " + strings.Join(Names(), ", ") + ")")

var containerFiles = []string{"Containerfile", "Dockerfile"}

// Addin attaches the image build and push stages.
type Addin struct {
	addinkit.Base
}

// New creates the container addin.
func New() *Addin { return &Addin{} }

func (a *Addin) Name() string { return "container" }

func (a *Addin) Load(p *pipeline.Pipeline) error {
	image := addinkit.Setting(p, "container.image", "")
	if image == "" {
		return builderr.NotSupported("container: container.image is not set")
	}
	file, err := findContainerFile(p)
	if err != nil {
		return err
	}

	var engine *Engine
	if name := addinkit.Setting(p, "container.engine", ""); name != "" {
		e, ok := Lookup(name)
		if !ok {
			return builderr.InvalidConfig("container: unknown engine %q (want one of %s)", name, strings.Join(Names(), ", "))
		}
		if prog := addinkit.Setting(p, "container.program", ""); prog != "" {
			e = e.WithProgram(prog)
		}
		engine = &e
	}

	b := &imageBuilder{
		engine: engine,
		opts: BuildOptions{
			ContextDir: p.SrcDir(),
			File:       file,
			Tag:        image,
			Platform:   addinkit.Setting(p, "container.platform", ""),
			NoCache:    addinkit.Setting(p, "container.no_cache", "") == "true",
			BuildArgs:  parseBuildArgs(addinkit.Setting(p, "container.build_args", "")),
		},
	}

	build := pipeline.NewFuncStage("Building container image", b.build)
	build.SetQuery(pipeline.AlwaysIncomplete())
	build.SetCleanFunc(func(context.Context, *pipeline.Pipeline) error {
		err := os.Remove(p.BuildDirPath(ImageIDFile))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	})
	b.buildStage = build
	if _, err := a.Attach(p, pipeline.PhaseExport, 100, build); err != nil {
		return err
	}

	if addinkit.Setting(p, "container.push", "") == "true" {
		push := pipeline.NewFuncStage("Pushing container image", b.push)
		push.SetQuery(pipeline.AlwaysIncomplete())
		b.pushStage = push
		if _, err := a.Attach(p, pipeline.PhaseFinal, 100, push); err != nil {
			return err
		}
	}
	return nil
}

// findContainerFile returns the configured container file, or the first
// of Containerfile and Dockerfile in the source directory.
func findContainerFile(p *pipeline.Pipeline) (string, error) {
	if f := addinkit.Setting(p, "container.file", ""); f != "" {
		if !filepath.IsAbs(f) {
			f = p.SrcDirPath(f)
		}
		if _, err := os.Stat(f); err != nil {
			return "", builderr.InvalidConfig("container: container.file: %v", err)
		}
		return f, nil
	}
	for _, name := range containerFiles {
		if _, err := os.Stat(p.SrcDirPath(name)); err == nil {
			return p.SrcDirPath(name), nil
		}
	}
	return "", builderr.NotSupported("container: no Containerfile or Dockerfile in %s", p.SrcDir())
}

type imageBuilder struct {
	engine     *Engine
	opts       BuildOptions
	buildStage pipeline.Stage
	pushStage  pipeline.Stage
}

func (b *imageBuilder) resolve(ctx context.Context) (Engine, error) {
	if b.engine != nil {
		return *b.engine, nil
	}
	e, ok := Detect(ctx)
	if !ok {
		return Engine{}, builderr.Spawn("container engine", ErrNoEngine)
	}
	b.engine = &e
	return e, nil
}

// run executes argv on the host, logs its output and returns stdout.
func (b *imageBuilder) run(ctx context.Context, p *pipeline.Pipeline, stage pipeline.Stage, argv []string) ([]byte, error) {
	cmd := runcmd.New(argv...)
	cmd.SetLocality(runcmd.LocalityHost)
	cmd.SetCwd(p.SrcDir())
	l, err := p.CreateLauncherFor(cmd)
	if err != nil {
		return nil, err
	}
	p.Logger().Debug("spawning", map[string]any{"stage": stage.Name(), "argv": l.Argv()})
	sp, err := l.Spawn(ctx)
	if err != nil {
		return nil, err
	}
	stdout, stderr, err := sp.Communicate(ctx, nil)
	logLines(p, stage, pipeline.StreamStdout, stdout)
	logLines(p, stage, pipeline.StreamStderr, stderr)
	return stdout, err
}

func logLines(p *pipeline.Pipeline, stage pipeline.Stage, stream pipeline.Stream, data []byte) {
	w := p.LogWriter(stage, stream)
	w.Write(data) //nolint:errcheck
	w.Close()     //nolint:errcheck
}

func (b *imageBuilder) build(ctx context.Context, p *pipeline.Pipeline, _ []string) error {
	e, err := b.resolve(ctx)
	if err != nil {
		return err
	}
	out, err := b.run(ctx, p, b.buildStage, e.BuildArgv(b.opts))
	if err != nil {
		return err
	}
	id := ParseImageID(string(out))
	if id == "" {
		return fmt.Errorf("%s build printed no image id", e.Name())
	}
	p.Logger().Info("container image built", map[string]any{"engine": e.Name(), "image": b.opts.Tag, "id": id})
	return os.WriteFile(p.BuildDirPath(ImageIDFile), []byte(id+"\n"), 0o644)
}

func (b *imageBuilder) push(ctx context.Context, p *pipeline.Pipeline, _ []string) error {
	e, err := b.resolve(ctx)
	if err != nil {
		return err
	}
	_, err = b.run(ctx, p, b.pushStage, e.PushArgv(b.opts.Tag))
	return err
}
