// Package pipeline provides the phased build pipeline: stages grouped into
// ordered phases, driven front-to-back to build and back-to-front to
// clean, with completion tracking and invalidation.
package pipeline

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/cancellable"
	"github.com/initializ/foundry/core/diagnostics"
	"github.com/initializ/foundry/core/launcher"
	"github.com/initializ/foundry/core/logging"
	"github.com/initializ/foundry/core/runcmd"
)

// Config is the read-only build configuration a pipeline runs against.
type Config interface {
	// ID identifies the configuration in logs and telemetry.
	ID() string
	// Environ returns KEY=VALUE pairs applied to every launcher.
	Environ() []string
	// Parallelism is the -jN level for tools that take one.
	Parallelism() int
	// ArgsForPhase returns extra arguments stages of phase append to
	// their command line.
	ArgsForPhase(phase Phase) []string
	// Locality is where commands run unless a RunCommand overrides it.
	Locality() runcmd.Locality
	// RuntimeCommand is the argv prefix for runtime and container
	// localities, e.g. ["flatpak", "build", "/path/to/staging"].
	RuntimeCommand() []string
	// Prefix is the install prefix.
	Prefix() string
	// Setting returns an addin-specific setting, or "".
	Setting(key string) string
	// StageDisabled reports whether the named stage is switched off.
	StageDisabled(name string) bool
}

// Options configure a new Pipeline.
type Options struct {
	Config Config
	// SrcDir is the project checkout. Required.
	SrcDir string
	// BuildDir holds build output. Relative paths are resolved against
	// SrcDir; empty means SrcDir/_build.
	BuildDir string
	// BuildSystem is the id chosen by build-system discovery, e.g. "make".
	BuildSystem string
	Logger      logging.Logger
	Addins      []Addin
	// MeterProvider receives stage and run metrics; nil uses the global
	// provider.
	MeterProvider metric.MeterProvider
}

type entry struct {
	id       uint
	seq      uint
	phase    Phase
	priority int
	stage    Stage
}

type observerEntry struct {
	id  uint
	obs Observer
}

// Pipeline owns the stages of one build configuration and drives them.
//
// Stage attachment is only allowed between runs: Attach and Detach fail
// with a busy error while Build, Clean or Rebuild is in progress. At most
// one run is active per Pipeline.
type Pipeline struct {
	cfg         Config
	srcdir      string
	builddir    string
	buildSystem string
	logger      logging.Logger
	addins      []Addin
	loaded      []Addin
	diag        *diagnostics.Parser
	token       *cancellable.Token

	runMu sync.Mutex
	busy  atomic.Bool

	mu       sync.Mutex
	entries  []*entry
	nextSeq  uint
	nextID   uint
	current  Phase
	failed   bool
	finished bool
	cleaning bool
	runID    string

	obsMu     sync.Mutex
	observers []observerEntry
	nextObsID uint

	meter       metric.Meter
	metricsOnce sync.Once
	metrics     metrics
}

// New creates a pipeline. Addins are not loaded until Load is called.
func New(opts Options) (*Pipeline, error) {
	if opts.SrcDir == "" {
		return nil, builderr.InvalidConfig("pipeline: srcdir is required")
	}
	srcdir, err := filepath.Abs(opts.SrcDir)
	if err != nil {
		return nil, fmt.Errorf("resolving srcdir: %w", err)
	}

	builddir := opts.BuildDir
	switch {
	case builddir == "":
		builddir = filepath.Join(srcdir, "_build")
	case !filepath.IsAbs(builddir):
		builddir = filepath.Join(srcdir, builddir)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop{}
	}

	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	return &Pipeline{
		cfg:         opts.Config,
		srcdir:      srcdir,
		builddir:    filepath.Clean(builddir),
		buildSystem: opts.BuildSystem,
		logger:      logger,
		addins:      opts.Addins,
		diag:        diagnostics.NewParser(builddir),
		token:       cancellable.New(),
		meter:       mp.Meter(instrumentationName),
	}, nil
}

func (p *Pipeline) Config() Config         { return p.cfg }
func (p *Pipeline) Logger() logging.Logger { return p.logger }
func (p *Pipeline) SrcDir() string         { return p.srcdir }
func (p *Pipeline) BuildDir() string       { return p.builddir }
func (p *Pipeline) BuildSystem() string    { return p.buildSystem }

// Diagnostics returns the parser fed with stage output.
func (p *Pipeline) Diagnostics() *diagnostics.Parser { return p.diag }

// SrcDirPath joins parts onto the source directory.
func (p *Pipeline) SrcDirPath(parts ...string) string {
	return filepath.Join(append([]string{p.srcdir}, parts...)...)
}

// BuildDirPath joins parts onto the build directory.
func (p *Pipeline) BuildDirPath(parts ...string) string {
	return filepath.Join(append([]string{p.builddir}, parts...)...)
}

// Load runs every addin's Load. Addins that decline with a NotSupported
// error are skipped. Load stops at the first other error.
func (p *Pipeline) Load() error {
	for _, a := range p.addins {
		if err := a.Load(p); err != nil {
			if builderr.IsNotSupported(err) {
				p.logger.Debug("addin not applicable", map[string]any{"addin": a.Name(), "reason": err.Error()})
				continue
			}
			return fmt.Errorf("loading addin %s: %w", a.Name(), err)
		}
		p.logger.Debug("addin loaded", map[string]any{"addin": a.Name()})
		p.loaded = append(p.loaded, a)
	}
	return nil
}

// Unload runs Unload on loaded addins in reverse order.
func (p *Pipeline) Unload() error {
	var errs []error
	for i := len(p.loaded) - 1; i >= 0; i-- {
		a := p.loaded[i]
		if err := a.Unload(p); err != nil {
			errs = append(errs, fmt.Errorf("unloading addin %s: %w", a.Name(), err))
		}
	}
	p.loaded = nil
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Close cancels any in-flight run, waits for it to return and unloads
// addins. Runs started after Close are cancelled immediately.
func (p *Pipeline) Close() error {
	p.token.Cancel()
	p.runMu.Lock()
	p.runMu.Unlock() //nolint:staticcheck // waits for the active run
	return p.Unload()
}

// Attach inserts stage at phase with the given priority and returns an id
// for Detach. Within a phase, stages with a BEFORE modifier run first and
// AFTER last; then lower priority runs first; ties keep attachment order.
func (p *Pipeline) Attach(phase Phase, priority int, stage Stage) (uint, error) {
	if stage == nil {
		return 0, fmt.Errorf("attach: nil stage")
	}
	if !phase.Valid() {
		return 0, &builderr.Error{Code: builderr.CodeInvalidPhase, Op: "attach", Err: fmt.Errorf("invalid phase %#x", uint32(phase))}
	}
	if !p.runMu.TryLock() {
		return 0, &builderr.Error{Code: builderr.CodeBusy, Op: "attach"}
	}
	defer p.runMu.Unlock()

	if p.cfg != nil && p.cfg.StageDisabled(stage.Name()) {
		stage.stageBase().SetDisabled(true)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	p.nextSeq++
	e := &entry{id: p.nextID, seq: p.nextSeq, phase: phase, priority: priority, stage: stage}
	p.entries = append(p.entries, e)
	slices.SortStableFunc(p.entries, compareEntries)
	p.finished = false
	return e.id, nil
}

func compareEntries(a, b *entry) int {
	return cmp.Or(
		cmp.Compare(a.phase.Base(), b.phase.Base()),
		cmp.Compare(whenceRank(a.phase), whenceRank(b.phase)),
		cmp.Compare(a.priority, b.priority),
		cmp.Compare(a.seq, b.seq),
	)
}

// AttachLauncher wraps l in a LauncherStage and attaches it.
func (p *Pipeline) AttachLauncher(phase Phase, priority int, name string, l *launcher.Launcher) (uint, *LauncherStage, error) {
	s := NewLauncherStage(name, l)
	id, err := p.Attach(phase, priority, s)
	if err != nil {
		return 0, nil, err
	}
	return id, s, nil
}

// AttachCommand wraps cmd in a CommandStage and attaches it.
func (p *Pipeline) AttachCommand(phase Phase, priority int, cmd *runcmd.RunCommand) (uint, *CommandStage, error) {
	if err := cmd.Validate(); err != nil {
		return 0, nil, err
	}
	s := NewCommandStage(cmd.DisplayName(), cmd)
	id, err := p.Attach(phase, priority, s)
	if err != nil {
		return 0, nil, err
	}
	return id, s, nil
}

// Detach removes the stage attached under id. Unknown ids are ignored.
func (p *Pipeline) Detach(id uint) error {
	if !p.runMu.TryLock() {
		return &builderr.Error{Code: builderr.CodeBusy, Op: "detach"}
	}
	defer p.runMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = slices.DeleteFunc(p.entries, func(e *entry) bool { return e.id == id })
	return nil
}

// StageByID returns the stage attached under id.
func (p *Pipeline) StageByID(id uint) (Stage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.id == id {
			return e.stage, true
		}
	}
	return nil, false
}

// StageInfo describes an attached stage.
type StageInfo struct {
	ID       uint       `json:"id"`
	Name     string     `json:"name"`
	Phase    Phase      `json:"phase"`
	Priority int        `json:"priority"`
	State    StageState `json:"state"`
}

// Stages lists attached stages in execution order.
func (p *Pipeline) Stages() []StageInfo {
	var out []StageInfo
	p.ForeachStage(func(info StageInfo, _ Stage) {
		out = append(out, info)
	})
	return out
}

// ForeachStage calls fn for every attached stage in execution order.
func (p *Pipeline) ForeachStage(fn func(StageInfo, Stage)) {
	for _, e := range p.snapshot(0) {
		fn(e.info(), e.stage)
	}
}

func (e *entry) info() StageInfo {
	return StageInfo{
		ID:       e.id,
		Name:     e.stage.Name(),
		Phase:    e.phase,
		Priority: e.priority,
		State:    e.stage.stageBase().State(),
	}
}

// snapshot copies the entries whose base phase is in mask; a zero mask
// selects everything.
func (p *Pipeline) snapshot(mask Phase) []*entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		if mask == 0 || e.phase.Base()&mask != 0 {
			out = append(out, e)
		}
	}
	return out
}

// InvalidatePhase marks every stage at or after phase as not completed so
// the next run queries and executes it again.
func (p *Pipeline) InvalidatePhase(phase Phase) {
	base := phase.Base()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.phase.Base() >= base {
			e.stage.stageBase().SetCompleted(false)
		}
	}
	p.finished = false
}

// RequestPhase reports whether any enabled stage up to and including
// phase still has work to do.
func (p *Pipeline) RequestPhase(phase Phase) bool {
	for _, e := range p.snapshot(phase.UpTo()) {
		sb := e.stage.stageBase()
		if !sb.Disabled() && !sb.Completed() {
			return true
		}
	}
	return false
}

// Busy reports whether a run is in progress.
func (p *Pipeline) Busy() bool { return p.busy.Load() }

// Failed reports whether the last run failed.
func (p *Pipeline) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

// Phase reports the phase of the running stage, PhaseFailed after a
// failure, PhaseFinished after a successful run, or PhaseNone.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.busy.Load() && p.current != PhaseNone:
		return p.current.Base()
	case p.failed:
		return PhaseFailed
	case p.finished:
		return PhaseFinished
	}
	return PhaseNone
}

// Message is a short human-readable status.
func (p *Pipeline) Message() string {
	p.mu.Lock()
	cleaning := p.cleaning
	p.mu.Unlock()
	if cleaning && p.busy.Load() {
		return "Cleaning"
	}
	return p.Phase().Message()
}

// AddErrorFormat registers a diagnostics regular expression applied to
// every output line of launcher-backed stages.
func (p *Pipeline) AddErrorFormat(expr string) (uint, error) {
	return p.diag.AddFormat(expr)
}

// RemoveErrorFormat unregisters an error format.
func (p *Pipeline) RemoveErrorFormat(id uint) bool {
	return p.diag.RemoveFormat(id)
}

// AddObserver subscribes o to events and returns an id for
// RemoveObserver.
func (p *Pipeline) AddObserver(o Observer) uint {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.nextObsID++
	p.observers = append(p.observers, observerEntry{id: p.nextObsID, obs: o})
	return p.nextObsID
}

// RemoveObserver unsubscribes an observer.
func (p *Pipeline) RemoveObserver(id uint) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.observers = slices.DeleteFunc(p.observers, func(o observerEntry) bool { return o.id == id })
}

func (p *Pipeline) emit(e Event) {
	p.mu.Lock()
	e.RunID = p.runID
	p.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	for _, o := range p.observers {
		o.obs.OnEvent(e)
	}
}

// Log reports a line of output on behalf of stage. Lines matching an
// error format also produce a diagnostic event.
func (p *Pipeline) Log(stage Stage, stream Stream, line string) {
	name := ""
	if stage != nil {
		name = stage.Name()
	}
	p.emit(Event{Kind: EventLog, Stage: name, Stream: stream, Line: line})
	if d, ok := p.diag.Feed(line); ok {
		p.emit(Event{Kind: EventDiagnostic, Stage: name, Stream: stream, Line: line, Diagnostic: &d})
	}
}

// LogWriter returns a writer that reports every line written to it as
// output of stage, with no limit on line length. Close flushes a trailing
// partial line.
func (p *Pipeline) LogWriter(stage Stage, stream Stream) io.WriteCloser {
	return &lineWriter{fn: func(line string) { p.Log(stage, stream, line) }}
}

// CreateLauncher returns a launcher preconfigured with the pipeline's
// environment, build directory and locality.
func (p *Pipeline) CreateLauncher() (*launcher.Launcher, error) {
	return p.CreateLauncherFor(nil)
}

// CreateLauncherFor is CreateLauncher followed by applying cmd, whose
// locality (when set) overrides the configuration's.
//
// Runtime and container localities prepend the configuration's runtime
// command. If the configuration sets V, it is forced to 0 so tools do
// not print full command lines into the build log.
func (p *Pipeline) CreateLauncherFor(cmd *runcmd.RunCommand) (*launcher.Launcher, error) {
	if cmd != nil {
		if err := cmd.Validate(); err != nil {
			return nil, err
		}
	}

	loc := runcmd.LocalitySubprocess
	if p.cfg != nil && p.cfg.Locality() != runcmd.LocalityInherit {
		loc = p.cfg.Locality()
	}
	if cmd != nil && cmd.Locality() != runcmd.LocalityInherit {
		loc = cmd.Locality()
	}

	l := launcher.New(launcher.StdoutPipe | launcher.StderrPipe)
	l.SetLocality(loc)
	l.SetCwd(p.builddir)

	if loc == runcmd.LocalityRuntime || loc == runcmd.LocalityContainer {
		var prefix []string
		if p.cfg != nil {
			prefix = p.cfg.RuntimeCommand()
		}
		if len(prefix) == 0 {
			return nil, builderr.InvalidConfig("locality %s requires a runtime command", loc)
		}
		l.PushArgs(prefix...)
	}

	if p.cfg != nil {
		for _, kv := range p.cfg.Environ() {
			k, v, _ := strings.Cut(kv, "=")
			l.Setenv(k, v, true)
		}
		if _, ok := l.Getenv("V"); ok {
			l.Setenv("V", "0", true)
		}
	}

	if cmd != nil {
		l.ApplyRunCommand(cmd)
	}
	return l, nil
}

// canRemoveBuildDir reports whether Rebuild may delete the build directory:
// only when it lives under the user cache directory or is srcdir/_build.
func (p *Pipeline) canRemoveBuildDir() bool {
	if p.builddir == p.SrcDirPath("_build") {
		return true
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(cache, p.builddir)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
