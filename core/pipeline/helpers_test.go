package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/initializ/foundry/core/runcmd"
)

type testConfig struct {
	env      []string
	locality runcmd.Locality
	runtime  []string
	disabled map[string]bool
	args     map[Phase][]string
}

func (c *testConfig) ID() string                     { return "test" }
func (c *testConfig) Environ() []string              { return c.env }
func (c *testConfig) Parallelism() int               { return 2 }
func (c *testConfig) ArgsForPhase(p Phase) []string  { return c.args[p] }
func (c *testConfig) Locality() runcmd.Locality      { return c.locality }
func (c *testConfig) RuntimeCommand() []string       { return c.runtime }
func (c *testConfig) Prefix() string                 { return "/usr/local" }
func (c *testConfig) Setting(string) string          { return "" }
func (c *testConfig) StageDisabled(name string) bool { return c.disabled[name] }

// recorder collects "query:x" / "exec:x" / "clean:x" entries.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

type recStage struct {
	StageBase
	rec           *recorder
	queryComplete bool
	execErr       error
	onExecute     func()
}

func newRecStage(rec *recorder, name string) *recStage {
	s := &recStage{rec: rec}
	s.SetName(name)
	return s
}

func (s *recStage) Query(_ context.Context, _ *Pipeline, _ []string) error {
	s.rec.add("query:" + s.Name())
	if s.queryComplete {
		s.SetCompleted(true)
	}
	return nil
}

func (s *recStage) Execute(_ context.Context, _ *Pipeline, _ []string) error {
	s.rec.add("exec:" + s.Name())
	if s.onExecute != nil {
		s.onExecute()
	}
	return s.execErr
}

func (s *recStage) Clean(_ context.Context, _ *Pipeline) error {
	s.rec.add("clean:" + s.Name())
	return nil
}

func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	if cfg == nil {
		cfg = &testConfig{}
	}
	p, err := New(Options{Config: cfg, SrcDir: t.TempDir(), BuildSystem: "make"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return p
}

func mustAttach(t *testing.T, p *Pipeline, phase Phase, priority int, s Stage) uint {
	t.Helper()
	id, err := p.Attach(phase, priority, s)
	if err != nil {
		t.Fatalf("Attach(%s): %v", s.Name(), err)
	}
	return id
}
