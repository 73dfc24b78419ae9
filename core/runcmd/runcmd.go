// Package runcmd describes executable invocations that stages hand to a
// launcher.
//
// A RunCommand is built by its producer and then passed to a launcher. Do
// not mutate a RunCommand after it has been used to configure a launcher;
// producers should build a fresh instance (or Clone) per invocation.
package runcmd

import (
	"fmt"
	"strings"
)

// Locality describes where a command executes.
type Locality int

const (
	// LocalityInherit defers to the pipeline's configured locality.
	LocalityInherit Locality = iota
	// LocalityHost runs directly on the host with a minimal environment
	// layered over the caller-supplied one.
	LocalityHost
	// LocalitySubprocess runs as a plain child inheriting the environment.
	LocalitySubprocess
	// LocalityRuntime runs inside the configured runtime wrapper.
	LocalityRuntime
	// LocalityContainer runs inside a container build wrapper such as
	// "flatpak build".
	LocalityContainer
)

var localityNames = map[Locality]string{
	LocalityInherit:    "inherit",
	LocalityHost:       "host",
	LocalitySubprocess: "subprocess",
	LocalityRuntime:    "runtime",
	LocalityContainer:  "container",
}

func (l Locality) String() string {
	if s, ok := localityNames[l]; ok {
		return s
	}
	return fmt.Sprintf("locality(%d)", int(l))
}

// ParseLocality parses a locality name. The empty string is LocalityInherit.
func ParseLocality(s string) (Locality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LocalityInherit, nil
	}
	for l, name := range localityNames {
		if name == s {
			return l, nil
		}
	}
	return LocalityInherit, fmt.Errorf("unknown locality %q", s)
}

// EnvOp is the kind of an environment delta.
type EnvOp int

const (
	EnvSet EnvOp = iota
	EnvUnset
	EnvAppend
)

// EnvDelta is one ordered environment operation.
type EnvDelta struct {
	Op    EnvOp
	Key   string
	Value string
}

// PathListSeparator joins values for EnvAppend.
const PathListSeparator = ":"

// RunCommand describes an executable invocation.
type RunCommand struct {
	id          string
	displayName string
	argv        []string
	cwd         string
	env         []EnvDelta
	priority    int
	locality    Locality
}

// New creates a RunCommand with the given argv.
func New(argv ...string) *RunCommand {
	return &RunCommand{argv: append([]string(nil), argv...)}
}

func (c *RunCommand) ID() string { return c.id }

func (c *RunCommand) SetID(id string) { c.id = id }

// DisplayName falls back to the first argv element when unset.
func (c *RunCommand) DisplayName() string {
	if c.displayName != "" {
		return c.displayName
	}
	if len(c.argv) > 0 {
		return c.argv[0]
	}
	return c.id
}

func (c *RunCommand) SetDisplayName(name string) { c.displayName = name }

// Argv returns a copy of the argument vector.
func (c *RunCommand) Argv() []string { return append([]string(nil), c.argv...) }

func (c *RunCommand) SetArgv(argv ...string) { c.argv = append([]string(nil), argv...) }

// AppendArgs adds arguments to the end of argv.
func (c *RunCommand) AppendArgs(args ...string) { c.argv = append(c.argv, args...) }

func (c *RunCommand) Cwd() string { return c.cwd }

func (c *RunCommand) SetCwd(cwd string) { c.cwd = cwd }

func (c *RunCommand) Priority() int { return c.priority }

func (c *RunCommand) SetPriority(p int) { c.priority = p }

func (c *RunCommand) Locality() Locality { return c.locality }

func (c *RunCommand) SetLocality(l Locality) { c.locality = l }

// Setenv records an assignment.
func (c *RunCommand) Setenv(key, value string) {
	c.env = append(c.env, EnvDelta{Op: EnvSet, Key: key, Value: value})
}

// Unsetenv records a removal.
func (c *RunCommand) Unsetenv(key string) {
	c.env = append(c.env, EnvDelta{Op: EnvUnset, Key: key})
}

// AppendEnv records value appended to key's current value, separated by
// PathListSeparator. If key is unset the value is used as-is.
func (c *RunCommand) AppendEnv(key, value string) {
	c.env = append(c.env, EnvDelta{Op: EnvAppend, Key: key, Value: value})
}

// EnvDeltas returns the ordered environment operations.
func (c *RunCommand) EnvDeltas() []EnvDelta { return append([]EnvDelta(nil), c.env...) }

// ApplyEnv applies the deltas in order to a KEY=VALUE slice and returns a
// new slice. base is not modified.
func (c *RunCommand) ApplyEnv(base []string) []string {
	return ApplyDeltas(base, c.env)
}

// ApplyDeltas applies deltas in order to a KEY=VALUE slice.
func ApplyDeltas(base []string, deltas []EnvDelta) []string {
	out := append([]string(nil), base...)
	for _, d := range deltas {
		idx := -1
		for i, kv := range out {
			if k, _, _ := strings.Cut(kv, "="); k == d.Key {
				idx = i
				break
			}
		}
		switch d.Op {
		case EnvSet:
			if idx >= 0 {
				out[idx] = d.Key + "=" + d.Value
			} else {
				out = append(out, d.Key+"="+d.Value)
			}
		case EnvUnset:
			if idx >= 0 {
				out = append(out[:idx], out[idx+1:]...)
			}
		case EnvAppend:
			if idx < 0 {
				out = append(out, d.Key+"="+d.Value)
				continue
			}
			_, cur, _ := strings.Cut(out[idx], "=")
			if cur == "" {
				out[idx] = d.Key + "=" + d.Value
			} else {
				out[idx] = d.Key + "=" + cur + PathListSeparator + d.Value
			}
		}
	}
	return out
}

// Validate reports whether the command can be spawned.
func (c *RunCommand) Validate() error {
	if len(c.argv) == 0 || c.argv[0] == "" {
		return fmt.Errorf("run command %q: argv is empty", c.id)
	}
	return nil
}

// Clone returns a deep copy that can be modified independently.
func (c *RunCommand) Clone() *RunCommand {
	cp := *c
	cp.argv = append([]string(nil), c.argv...)
	cp.env = append([]EnvDelta(nil), c.env...)
	return &cp
}

// SelectDefault picks the preferred command among candidates: the lowest
// priority value wins, ties go to the earliest. It returns nil for an
// empty slice.
func SelectDefault(cmds []*RunCommand) *RunCommand {
	var best *RunCommand
	for _, c := range cmds {
		if c == nil {
			continue
		}
		if best == nil || c.priority < best.priority {
			best = c
		}
	}
	return best
}

// Find returns the command with the given id, or nil.
func Find(cmds []*RunCommand, id string) *RunCommand {
	for _, c := range cmds {
		if c != nil && c.id == id {
			return c
		}
	}
	return nil
}
