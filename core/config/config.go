// Package config holds the foundry.yaml build configuration and turns it
// into the collaborator the pipeline reads its settings from.
package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/core/runcmd"
)

// FileName is the configuration file looked up in a project directory.
const FileName = "foundry.yaml"

// File represents the top-level foundry.yaml document.
type File struct {
	ID             string              `yaml:"id,omitempty"`
	BuildSystem    string              `yaml:"build_system,omitempty"`
	SrcDir         string              `yaml:"srcdir,omitempty"`
	BuildDir       string              `yaml:"builddir,omitempty"`
	Prefix         string              `yaml:"prefix,omitempty"`
	Parallelism    int                 `yaml:"parallelism,omitempty"`
	Runtime        RuntimeRef          `yaml:"runtime,omitempty"`
	Environment    map[string]string   `yaml:"environment,omitempty"`
	EnvFile        string              `yaml:"env_file,omitempty"`
	Args           map[string][]string `yaml:"args,omitempty"`
	DisabledStages []string            `yaml:"disabled_stages,omitempty"`
	Settings       map[string]string   `yaml:"settings,omitempty"`
}

// RuntimeRef selects where commands run.
type RuntimeRef struct {
	ID       string   `yaml:"id,omitempty"`
	Locality string   `yaml:"locality,omitempty"` // host, subprocess, runtime, container
	Command  []string `yaml:"command,omitempty"`  // argv prefix for runtime/container
}

// Config is a resolved configuration. It implements pipeline.Config.
type Config struct {
	file     File
	dir      string
	locality runcmd.Locality
	env      []string
	args     map[pipeline.Phase][]string
	disabled map[string]bool
}

var _ pipeline.Config = (*Config)(nil)

// ParseFile parses raw YAML bytes into a File.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing foundry config: %w", err)
	}
	return &f, nil
}

// Parse parses and resolves a configuration. Relative paths inside it
// (srcdir, builddir, env_file) are resolved against dir.
func Parse(data []byte, dir string) (*Config, error) {
	f, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	return New(*f, dir)
}

// Load reads and resolves the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading foundry config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	return Parse(data, filepath.Dir(abs))
}

// Default returns the configuration used when a project has no
// foundry.yaml.
func Default(dir string) *Config {
	c, _ := New(File{}, dir) // cannot fail: nothing to resolve
	return c
}

// New resolves f. Errors carry the INVALID_CONFIGURATION code.
func New(f File, dir string) (*Config, error) {
	c := &Config{
		file:     f,
		dir:      dir,
		args:     make(map[pipeline.Phase][]string),
		disabled: make(map[string]bool),
	}

	loc, err := runcmd.ParseLocality(f.Runtime.Locality)
	if err != nil {
		return nil, builderr.InvalidConfig("runtime.locality: %v", err)
	}
	c.locality = loc

	for name, args := range f.Args {
		ph, err := pipeline.ParsePhase(name)
		if err != nil {
			return nil, builderr.InvalidConfig("args: %v", err)
		}
		c.args[ph] = slices.Clone(args)
	}

	for _, name := range f.DisabledStages {
		c.disabled[name] = true
	}

	env := make(map[string]string)
	if f.EnvFile != "" {
		fileEnv, err := loadEnvFile(c.path(f.EnvFile))
		if err != nil {
			return nil, err
		}
		maps.Copy(env, fileEnv)
	}
	maps.Copy(env, f.Environment)
	for _, k := range slices.Sorted(maps.Keys(env)) {
		c.env = append(c.env, k+"="+env[k])
	}

	return c, nil
}

func loadEnvFile(path string) (map[string]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, builderr.InvalidConfig("env_file: %v", err)
	}
	defer fh.Close() //nolint:errcheck
	env, err := ParseEnvVars(fh)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return env, nil
}

func (c *Config) path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// File returns the parsed document.
func (c *Config) File() File { return c.file }

// Dir is the directory the configuration was loaded from.
func (c *Config) Dir() string { return c.dir }

// SrcDir returns the configured source directory, defaulting to Dir.
func (c *Config) SrcDir() string {
	if c.file.SrcDir == "" {
		return c.dir
	}
	return c.path(c.file.SrcDir)
}

// BuildDir returns the configured build directory or "" for the pipeline
// default.
func (c *Config) BuildDir() string {
	if c.file.BuildDir == "" {
		return ""
	}
	return c.path(c.file.BuildDir)
}

// BuildSystem is the build system override, or "" to discover one.
func (c *Config) BuildSystem() string { return c.file.BuildSystem }

// ID identifies the configuration; it defaults to "default".
func (c *Config) ID() string {
	if c.file.ID == "" {
		return "default"
	}
	return c.file.ID
}

// Environ returns the merged env_file and environment entries as sorted
// KEY=VALUE pairs; environment wins over env_file.
func (c *Config) Environ() []string { return slices.Clone(c.env) }

// Parallelism returns the configured job count, or the CPU count when
// unset.
func (c *Config) Parallelism() int {
	if c.file.Parallelism > 0 {
		return c.file.Parallelism
	}
	return runtime.NumCPU()
}

// ArgsForPhase returns extra arguments configured for phase.
func (c *Config) ArgsForPhase(phase pipeline.Phase) []string {
	return slices.Clone(c.args[phase])
}

func (c *Config) Locality() runcmd.Locality { return c.locality }
func (c *Config) RuntimeCommand() []string  { return slices.Clone(c.file.Runtime.Command) }

// RuntimeID names the configured runtime.
func (c *Config) RuntimeID() string { return c.file.Runtime.ID }

// Prefix is the install prefix; it defaults to /usr/local, or /app for
// the container locality.
func (c *Config) Prefix() string {
	switch {
	case c.file.Prefix != "":
		return c.file.Prefix
	case c.locality == runcmd.LocalityContainer:
		return "/app"
	}
	return "/usr/local"
}

// Setting returns settings[key], or "".
func (c *Config) Setting(key string) string { return c.file.Settings[key] }

// StageDisabled reports whether name is listed in disabled_stages.
func (c *Config) StageDisabled(name string) bool { return c.disabled[name] }

// String summarises the configuration for logs.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (locality=%s", c.ID(), c.locality)
	if c.file.BuildSystem != "" {
		fmt.Fprintf(&b, ", build_system=%s", c.file.BuildSystem)
	}
	b.WriteString(")")
	return b.String()
}
