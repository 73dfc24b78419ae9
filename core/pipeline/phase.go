package pipeline

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/initializ/foundry/core/builderr"
)

// Phase is a step of the build lifecycle. Base phases are single bits in
// ascending order, so a mask of every phase up to and including p is
// p|(p-1). BEFORE and AFTER modify a base phase to place a stage at its
// start or end.
type Phase uint32

const (
	PhaseNone         Phase = 0
	PhasePrepare      Phase = 1 << 0
	PhaseDownloads    Phase = 1 << 1
	PhaseDependencies Phase = 1 << 2
	PhaseAutogen      Phase = 1 << 3
	PhaseConfigure    Phase = 1 << 4
	PhaseBuild        Phase = 1 << 6
	PhaseInstall      Phase = 1 << 7
	PhaseCommit       Phase = 1 << 8
	PhaseExport       Phase = 1 << 9
	PhaseFinal        Phase = 1 << 10

	PhaseBefore Phase = 1 << 28
	PhaseAfter  Phase = 1 << 29

	// PhaseFinished and PhaseFailed are reported by Pipeline.Phase and
	// never attached to.
	PhaseFinished Phase = 1 << 30
	PhaseFailed   Phase = 1 << 31

	PhaseMask       Phase = 0xFFFFFF
	PhaseWhenceMask Phase = PhaseBefore | PhaseAfter
)

var phaseNames = []struct {
	phase   Phase
	name    string
	message string
}{
	{PhasePrepare, "prepare", "Preparing"},
	{PhaseDownloads, "downloads", "Downloading"},
	{PhaseDependencies, "dependencies", "Building dependencies"},
	{PhaseAutogen, "autogen", "Bootstrapping"},
	{PhaseConfigure, "configure", "Configuring"},
	{PhaseBuild, "build", "Building"},
	{PhaseInstall, "install", "Installing"},
	{PhaseCommit, "commit", "Committing"},
	{PhaseExport, "export", "Exporting"},
	{PhaseFinal, "final", "Finalizing"},
}

// Phases returns the base phases in execution order.
func Phases() []Phase {
	out := make([]Phase, len(phaseNames))
	for i, n := range phaseNames {
		out[i] = n.phase
	}
	return out
}

// Base strips the BEFORE/AFTER modifiers.
func (p Phase) Base() Phase { return p & PhaseMask }

// Whence returns the BEFORE/AFTER modifier bits.
func (p Phase) Whence() Phase { return p & PhaseWhenceMask }

// Valid reports whether p is exactly one base phase with at most one
// modifier.
func (p Phase) Valid() bool {
	if p.Whence() == PhaseWhenceMask {
		return false
	}
	if p&^(PhaseMask|PhaseWhenceMask) != 0 {
		return false
	}
	b := p.Base()
	if bits.OnesCount32(uint32(b)) != 1 {
		return false
	}
	for _, n := range phaseNames {
		if n.phase == b {
			return true
		}
	}
	return false
}

// UpTo returns the mask of every base phase up to and including p.
func (p Phase) UpTo() Phase {
	b := p.Base()
	if b == 0 {
		return 0
	}
	return b | (b - 1)
}

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseFinished:
		return "finished"
	case PhaseFailed:
		return "failed"
	}
	name := fmt.Sprintf("phase(%#x)", uint32(p.Base()))
	for _, n := range phaseNames {
		if n.phase == p.Base() {
			name = n.name
			break
		}
	}
	switch p.Whence() {
	case PhaseBefore:
		return "before-" + name
	case PhaseAfter:
		return "after-" + name
	}
	return name
}

// Message is the human-readable status shown while a phase runs.
func (p Phase) Message() string {
	switch p {
	case PhaseFinished:
		return "Success"
	case PhaseFailed:
		return "Failed"
	}
	for _, n := range phaseNames {
		if n.phase == p.Base() {
			return n.message
		}
	}
	return "Ready"
}

// ParsePhase parses a phase name such as "build", "before-install" or
// "after:configure".
func ParsePhase(s string) (Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var whence Phase
	for prefix, w := range map[string]Phase{"before-": PhaseBefore, "before:": PhaseBefore, "after-": PhaseAfter, "after:": PhaseAfter} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s, whence = rest, w
			break
		}
	}
	for _, n := range phaseNames {
		if n.name == s {
			return n.phase | whence, nil
		}
	}
	return PhaseNone, &builderr.Error{Code: builderr.CodeInvalidPhase, Err: fmt.Errorf("unknown phase %q", s)}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func whenceRank(p Phase) int {
	switch p.Whence() {
	case PhaseBefore:
		return 0
	case PhaseAfter:
		return 2
	default:
		return 1
	}
}
