package container

import (
	"context"
	"slices"
	"strings"

	"github.com/initializ/foundry/core/launcher"
	"github.com/initializ/foundry/core/runcmd"
)

// Engine is a container image builder CLI: docker, podman or buildah.
// The three take the same build flags and differ only in the build verb
// and in how their availability is probed.
type Engine struct {
	name      string
	program   string
	buildVerb string
	probe     []string
}

// BuildOptions configures an image build.
type BuildOptions struct {
	ContextDir string
	File       string
	Tag        string
	Platform   string
	NoCache    bool
	BuildArgs  map[string]string
}

var engines = []Engine{
	{name: "docker", program: "docker", buildVerb: "build", probe: []string{"info"}},
	{name: "podman", program: "podman", buildVerb: "build", probe: []string{"info"}},
	{name: "buildah", program: "buildah", buildVerb: "bud", probe: []string{"version"}},
}

// Lookup returns the engine with the given name.
func Lookup(name string) (Engine, bool) {
	for _, e := range engines {
		if e.name == name {
			return e, true
		}
	}
	return Engine{}, false
}

// Names lists the supported engines in detection order.
func Names() []string {
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = e.name
	}
	return names
}

// Detect returns the first engine whose probe succeeds, in the order
// docker, podman, buildah.
func Detect(ctx context.Context) (Engine, bool) {
	for _, e := range engines {
		if e.Available(ctx) {
			return e, true
		}
	}
	return Engine{}, false
}

func (e Engine) Name() string    { return e.name }
func (e Engine) Program() string { return e.program }

// WithProgram returns a copy of e that runs program instead of the
// engine's default executable.
func (e Engine) WithProgram(program string) Engine {
	e.program = program
	return e
}

// Available reports whether the engine's CLI is installed and responds.
func (e Engine) Available(ctx context.Context) bool {
	l := launcher.New(0)
	l.SetLocality(runcmd.LocalityHost)
	l.PushArgs(e.program)
	l.PushArgs(e.probe...)
	sp, err := l.Spawn(ctx)
	if err != nil {
		return false
	}
	return sp.WaitCheck(ctx) == nil
}

// BuildArgv returns the full command line for building an image.
// Build arguments are emitted in key order.
func (e Engine) BuildArgv(opts BuildOptions) []string {
	argv := []string{e.program, e.buildVerb}
	if opts.Tag != "" {
		argv = append(argv, "-t", opts.Tag)
	}
	if opts.File != "" {
		argv = append(argv, "-f", opts.File)
	}
	if opts.Platform != "" {
		argv = append(argv, "--platform", opts.Platform)
	}
	if opts.NoCache {
		argv = append(argv, "--no-cache")
	}
	keys := make([]string, 0, len(opts.BuildArgs))
	for k := range opts.BuildArgs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		argv = append(argv, "--build-arg", k+"="+opts.BuildArgs[k])
	}

	contextDir := opts.ContextDir
	if contextDir == "" {
		contextDir = "."
	}
	return append(argv, contextDir)
}

// PushArgv returns the command line for pushing image.
func (e Engine) PushArgv(image string) []string {
	return []string{e.program, "push", image}
}

// ParseImageID extracts the image ID from build output: docker's
// "Successfully built <id>", a bare sha256 digest, or whatever podman and
// buildah print on their last line.
func ParseImageID(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if id, ok := strings.CutPrefix(line, "Successfully built "); ok {
			return id
		}
		if strings.HasPrefix(line, "sha256:") {
			return line
		}
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// parseBuildArgs splits "K=V,K2=V2" into a map. Entries without "=" are
// ignored.
func parseBuildArgs(s string) map[string]string {
	if s == "" {
		return nil
	}
	args := make(map[string]string)
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if ok && k != "" {
			args[k] = v
		}
	}
	return args
}
