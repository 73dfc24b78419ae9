package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Stage is one schedulable unit of work attached to a Pipeline.
//
// Implementations embed StageBase, which carries the completion state and
// supplies the default Query (run the configured QueryFunc) and Clean
// (no-op). Execute is always provided by the implementation.
type Stage interface {
	Name() string
	// Query gives the stage a chance to mark itself completed before it
	// would be executed.
	Query(ctx context.Context, p *Pipeline, targets []string) error
	Execute(ctx context.Context, p *Pipeline, targets []string) error
	Clean(ctx context.Context, p *Pipeline) error

	stageBase() *StageBase
}

// Chainer is implemented by stages that can absorb the work of the stage
// that follows them, e.g. "make" also running "make install". When Chain
// returns true the next stage is marked completed together with this one
// and is not executed separately.
type Chainer interface {
	Chain(next Stage) bool
}

// StageState is the observable lifecycle state of a stage.
type StageState int

const (
	StatePending StageState = iota
	StateActive
	StateCompleted
	StateFailed
	StateDisabled
)

func (s StageState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateDisabled:
		return "disabled"
	default:
		return "pending"
	}
}

func (s StageState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *StageState) UnmarshalText(b []byte) error {
	for st := StatePending; st <= StateDisabled; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown stage state %q", b)
}

// QueryFunc decides whether a stage still needs to run. It marks the stage
// completed through s.SetCompleted when its work is already done.
type QueryFunc func(ctx context.Context, p *Pipeline, s *StageBase, targets []string) error

// StageBase holds the state every stage shares. The zero value is a
// pending, unnamed stage.
type StageBase struct {
	mu        sync.Mutex
	name      string
	completed bool
	disabled  bool
	active    bool
	failed    bool
	query     QueryFunc
}

func (s *StageBase) stageBase() *StageBase { return s }

func (s *StageBase) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *StageBase) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

func (s *StageBase) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// SetCompleted marks the stage done (or not). Marking a stage completed
// clears a previous failure.
func (s *StageBase) SetCompleted(completed bool) {
	s.mu.Lock()
	s.completed = completed
	if completed {
		s.failed = false
	}
	s.mu.Unlock()
}

func (s *StageBase) Disabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// SetDisabled makes the pipeline skip the stage without failing.
func (s *StageBase) SetDisabled(disabled bool) {
	s.mu.Lock()
	s.disabled = disabled
	s.mu.Unlock()
}

// Active reports whether the stage is currently running.
func (s *StageBase) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *StageBase) setActive(active bool) {
	s.mu.Lock()
	s.active = active
	if active {
		s.failed = false
	}
	s.mu.Unlock()
}

func (s *StageBase) setFailed() {
	s.mu.Lock()
	s.failed = true
	s.completed = false
	s.mu.Unlock()
}

// State folds the flags into a single state.
func (s *StageBase) State() StageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.disabled:
		return StateDisabled
	case s.active:
		return StateActive
	case s.failed:
		return StateFailed
	case s.completed:
		return StateCompleted
	default:
		return StatePending
	}
}

// SetQuery installs the staleness check used by the default Query.
func (s *StageBase) SetQuery(q QueryFunc) {
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
}

// Query runs the installed QueryFunc. Without one the completion flag is
// left as it is.
func (s *StageBase) Query(ctx context.Context, p *Pipeline, targets []string) error {
	s.mu.Lock()
	q := s.query
	s.mu.Unlock()
	if q == nil {
		return nil
	}
	return q(ctx, p, s, targets)
}

// Clean does nothing by default.
func (s *StageBase) Clean(context.Context, *Pipeline) error { return nil }

// AlwaysIncomplete always reports the stage as needing to run, leaving the
// up-to-date check to the wrapped tool (make, ninja, cargo...).
func AlwaysIncomplete() QueryFunc {
	return func(_ context.Context, _ *Pipeline, s *StageBase, _ []string) error {
		s.SetCompleted(false)
		return nil
	}
}

// SentinelFile marks the stage completed when path exists (and, if
// executable is set, has an execute bit). Relative paths are resolved
// against the pipeline's build directory. Used for one-shot bootstrap
// stages.
func SentinelFile(path string, executable bool) QueryFunc {
	return func(_ context.Context, p *Pipeline, s *StageBase, _ []string) error {
		full := path
		if !filepath.IsAbs(full) {
			full = p.BuildDirPath(path)
		}
		fi, err := os.Stat(full)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			s.SetCompleted(false)
			return nil
		case err != nil:
			return err
		}
		s.SetCompleted(!executable || (!fi.IsDir() && fi.Mode()&0o111 != 0))
		return nil
	}
}
