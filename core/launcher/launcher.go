// Package launcher builds and spawns OS processes for pipeline stages.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/runcmd"
)

// Flags select which standard streams are piped to the caller.
type Flags uint

const (
	FlagNone   Flags = 0
	StdinPipe  Flags = 1 << 0
	StdoutPipe Flags = 1 << 1
	StderrPipe Flags = 1 << 2
	// StderrMerge sends stderr to wherever stdout goes.
	StderrMerge Flags = 1 << 3
)

// DefaultKillDelay is how long a cancelled process gets between the
// interrupt signal and a forced kill.
const DefaultKillDelay = 5 * time.Second

// Launcher describes how to start a process. It may be spawned more than
// once; each spawn produces an independent Subprocess.
type Launcher struct {
	argv      []string
	cwd       string
	env       []string
	clearEnv  bool
	flags     Flags
	locality  runcmd.Locality
	killDelay time.Duration

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New creates a launcher with the given stream flags.
func New(flags Flags) *Launcher {
	return &Launcher{flags: flags, killDelay: DefaultKillDelay}
}

// PushArgs appends arguments to argv.
func (l *Launcher) PushArgs(args ...string) { l.argv = append(l.argv, args...) }

// SetArgv replaces argv.
func (l *Launcher) SetArgv(argv ...string) { l.argv = append([]string(nil), argv...) }

// Argv returns a copy of argv as it currently stands, including any
// arguments injected by previous spawns.
func (l *Launcher) Argv() []string { return append([]string(nil), l.argv...) }

func (l *Launcher) Cwd() string       { return l.cwd }
func (l *Launcher) SetCwd(cwd string) { l.cwd = cwd }

func (l *Launcher) Flags() Flags         { return l.flags }
func (l *Launcher) SetFlags(flags Flags) { l.flags = flags }

func (l *Launcher) Locality() runcmd.Locality     { return l.locality }
func (l *Launcher) SetLocality(x runcmd.Locality) { l.locality = x }

// SetClearEnv drops the inherited process environment; only variables set
// on the launcher (plus a minimal PATH/HOME/USER/LANG) are passed.
func (l *Launcher) SetClearEnv(clear bool) { l.clearEnv = clear }

// SetKillDelay sets the grace period between interrupt and kill.
func (l *Launcher) SetKillDelay(d time.Duration) { l.killDelay = d }

// SetStdin, SetStdout and SetStderr attach streams directly. A writer set
// here takes precedence over the corresponding pipe flag.
func (l *Launcher) SetStdin(r io.Reader)  { l.stdin = r }
func (l *Launcher) SetStdout(w io.Writer) { l.stdout = w }
func (l *Launcher) SetStderr(w io.Writer) { l.stderr = w }

// Setenv sets a variable on the launcher. When replace is false an
// existing value is kept.
func (l *Launcher) Setenv(key, value string, replace bool) {
	l.env = envSet(l.env, key, value, replace)
}

// Getenv returns a variable set on the launcher.
func (l *Launcher) Getenv(key string) (string, bool) { return envLookup(l.env, key) }

// Unsetenv removes a variable set on the launcher.
func (l *Launcher) Unsetenv(key string) { l.env = envUnset(l.env, key) }

// Environ returns the variables set on the launcher, in insertion order.
func (l *Launcher) Environ() []string { return append([]string(nil), l.env...) }

// SetEnviron replaces the launcher's variables.
func (l *Launcher) SetEnviron(env []string) { l.env = append([]string(nil), env...) }

// ApplyRunCommand appends cmd's argv, applies its environment deltas and
// takes its cwd and locality when they are set.
func (l *Launcher) ApplyRunCommand(cmd *runcmd.RunCommand) {
	l.PushArgs(cmd.Argv()...)
	if cmd.Cwd() != "" {
		l.cwd = cmd.Cwd()
	}
	l.env = cmd.ApplyEnv(l.env)
	if cmd.Locality() != runcmd.LocalityInherit {
		l.locality = cmd.Locality()
	}
}

// Environment computes the final environment for a spawn without
// spawning.
func (l *Launcher) Environment() []string {
	var base []string
	if !l.clearEnv {
		base = os.Environ()
	}
	env := mergeEnv(base, l.env)
	if l.clearEnv || l.locality == runcmd.LocalityHost {
		env = withMinimalEnv(env)
	}
	if l.locality == runcmd.LocalityContainer {
		env = envUnset(env, "PATH")
	}
	return env
}

// Spawn starts the process. It fails with a cancelled error if ctx is
// already done, and with a spawn error if the program cannot be found or
// started. Cancelling ctx while the process runs interrupts it, then kills
// it after the kill delay.
//
// For container locality the launcher's own argv is rewritten with
// InsertContainerArgs before spawning, so Argv reflects the injected flags
// afterwards.
func (l *Launcher) Spawn(ctx context.Context) (*Subprocess, error) {
	if ctx.Err() != nil {
		return nil, builderr.Cancelled(ctx, "spawn")
	}
	if len(l.argv) == 0 || l.argv[0] == "" {
		return nil, builderr.Spawn("spawn", errors.New("no program to run"))
	}

	if l.locality == runcmd.LocalityContainer {
		l.argv = InsertContainerArgs(l.argv, l.cwd, l.env)
	}
	env := l.Environment()

	path, err := findProgram(l.argv[0], l.cwd, l.env)
	if err != nil {
		return nil, builderr.Spawn("spawn "+l.argv[0], err)
	}

	cmd := exec.CommandContext(ctx, path, l.argv[1:]...)
	cmd.Args[0] = l.argv[0]
	cmd.Dir = l.cwd
	cmd.Env = env
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = l.killDelay

	sp := &Subprocess{cmd: cmd, ctx: ctx, killDelay: l.killDelay, done: make(chan struct{})}
	if err := l.wireStdio(cmd, sp); err != nil {
		return nil, builderr.Spawn("spawn "+l.argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		return nil, builderr.Spawn("spawn "+l.argv[0], err)
	}
	return sp, nil
}

func (l *Launcher) wireStdio(cmd *exec.Cmd, sp *Subprocess) error {
	var err error
	switch {
	case l.stdin != nil:
		cmd.Stdin = l.stdin
	case l.flags&StdinPipe != 0:
		if sp.stdin, err = cmd.StdinPipe(); err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
	}

	switch {
	case l.stdout != nil:
		cmd.Stdout = l.stdout
	case l.flags&StdoutPipe != 0:
		if sp.stdout, err = cmd.StdoutPipe(); err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
	default:
		cmd.Stdout = os.Stdout
	}

	switch {
	case l.flags&StderrMerge != 0:
		// StdoutPipe leaves the pipe's write end in cmd.Stdout.
		cmd.Stderr = cmd.Stdout
	case l.stderr != nil:
		cmd.Stderr = l.stderr
	case l.flags&StderrPipe != 0:
		if sp.stderr, err = cmd.StderrPipe(); err != nil {
			return fmt.Errorf("stderr pipe: %w", err)
		}
	default:
		cmd.Stderr = os.Stderr
	}
	return nil
}

// findProgram resolves name the way a shell would, using PATH from env when
// the launcher sets one. Names containing a separator are resolved
// against cwd.
func findProgram(name, cwd string, env []string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		p := name
		if !filepath.IsAbs(p) && cwd != "" {
			p = filepath.Join(cwd, p)
		}
		if err := checkExecutable(p); err != nil {
			return "", err
		}
		return p, nil
	}
	if path, ok := envLookup(env, "PATH"); ok {
		for _, dir := range filepath.SplitList(path) {
			if dir == "" {
				continue
			}
			p := filepath.Join(dir, name)
			if checkExecutable(p) == nil {
				return p, nil
			}
		}
	}
	return exec.LookPath(name)
}

func checkExecutable(p string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return err
	}
	if fi.IsDir() || fi.Mode()&0o111 == 0 {
		return &fs.PathError{Op: "exec", Path: p, Err: fs.ErrPermission}
	}
	return nil
}
