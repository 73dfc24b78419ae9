package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/cancellable"
)

// Build runs every enabled stage in phases up to and including phase, in
// execution order. Completed stages are skipped; the others are queried
// and, unless the query marks them completed, executed.
//
// The first failing stage aborts the run with its error annotated with
// the stage name; earlier completions are kept so the next Build resumes
// from the failure. Cancellation is checked before each stage and
// interrupts a running process; it yields a cancelled error.
func (p *Pipeline) Build(ctx context.Context, phase Phase, targets ...string) error {
	if phase.Base() == PhaseNone || !phase.Base().Valid() {
		return &builderr.Error{Code: builderr.CodeInvalidPhase, Op: "build", Err: fmt.Errorf("invalid phase %#x", uint32(phase))}
	}
	return p.run(ctx, "build", func(ctx context.Context) error {
		return p.build(ctx, phase, targets)
	})
}

// Clean runs the clean step of every stage at or after phase, last stage
// first, and marks those stages not completed.
func (p *Pipeline) Clean(ctx context.Context, phase Phase) error {
	if phase.Base() == PhaseNone || !phase.Base().Valid() {
		return &builderr.Error{Code: builderr.CodeInvalidPhase, Op: "clean", Err: fmt.Errorf("invalid phase %#x", uint32(phase))}
	}
	return p.run(ctx, "clean", func(ctx context.Context) error {
		return p.clean(ctx, phase)
	})
}

// Rebuild cleans from phase, deletes the build directory when it is safe
// to do so (srcdir/_build or under the user cache directory), and builds
// up to phase again.
func (p *Pipeline) Rebuild(ctx context.Context, phase Phase, targets ...string) error {
	if phase.Base() == PhaseNone || !phase.Base().Valid() {
		return &builderr.Error{Code: builderr.CodeInvalidPhase, Op: "rebuild", Err: fmt.Errorf("invalid phase %#x", uint32(phase))}
	}
	return p.run(ctx, "rebuild", func(ctx context.Context) error {
		if err := p.clean(ctx, phase); err != nil {
			return err
		}
		if p.canRemoveBuildDir() {
			p.logger.Info("removing build directory", map[string]any{"builddir": p.builddir})
			if err := os.RemoveAll(p.builddir); err != nil {
				return fmt.Errorf("removing build directory: %w", err)
			}
			p.InvalidatePhase(PhasePrepare)
		}
		return p.build(ctx, phase, targets)
	})
}

// run serialises runs, links ctx to the pipeline's own token so Close
// aborts it, and wraps the work in a span.
func (p *Pipeline) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !p.runMu.TryLock() {
		return &builderr.Error{Code: builderr.CodeBusy, Op: op}
	}
	defer p.runMu.Unlock()

	tok := cancellable.Chain(cancellable.FromContext(ctx), p.token)
	defer tok.Cancel()
	ctx = tok.Context()

	runID := uuid.NewString()
	cfgID := ""
	if p.cfg != nil {
		cfgID = p.cfg.ID()
	}
	ctx, span := tracer.Start(ctx, "pipeline."+op, trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("config.id", cfgID),
		attribute.String("build.system", p.buildSystem),
	))
	defer span.End()

	p.mu.Lock()
	p.runID = runID
	p.failed = false
	p.finished = false
	p.current = PhaseNone
	p.cleaning = op == "clean"
	p.mu.Unlock()
	p.busy.Store(true)
	p.diag.Reset()

	start := time.Now()
	p.logger.Info("pipeline "+op+" started", map[string]any{"run_id": runID, "config": cfgID})
	p.emit(Event{Kind: EventRunStarted})

	err := fn(ctx)

	p.mu.Lock()
	p.current = PhaseNone
	p.cleaning = false
	switch {
	case err == nil:
		p.finished = true
	case !builderr.IsCancelled(err):
		p.failed = true
	}
	p.mu.Unlock()
	p.busy.Store(false)
	p.recordRun(ctx, op, start, err)

	fields := map[string]any{"run_id": runID, "duration": time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fields["error"] = err.Error()
		if builderr.IsCancelled(err) {
			p.logger.Warn("pipeline "+op+" cancelled", fields)
		} else {
			p.logger.Error("pipeline "+op+" failed", fields)
		}
		p.emit(Event{Kind: EventRunFailed, Err: err})
		return err
	}
	span.SetStatus(codes.Ok, "")
	p.logger.Info("pipeline "+op+" finished", fields)
	p.emit(Event{Kind: EventRunFinished})
	return nil
}

func (p *Pipeline) build(ctx context.Context, phase Phase, targets []string) error {
	if err := os.MkdirAll(p.builddir, 0o755); err != nil {
		return fmt.Errorf("creating build directory: %w", err)
	}
	if !p.RequestPhase(phase) {
		p.logger.Debug("nothing to do", map[string]any{"phase": phase.String()})
		return nil
	}
	entries := p.snapshot(phase.UpTo())

	for i := 0; i < len(entries); i++ {
		e := entries[i]
		sb := e.stage.stageBase()

		if ctx.Err() != nil {
			return builderr.Cancelled(ctx, "build")
		}
		if sb.Disabled() {
			p.emit(Event{Kind: EventStageSkipped, Stage: e.stage.Name(), StageID: e.id, Phase: e.phase, State: StateDisabled})
			continue
		}
		if sb.Completed() {
			continue
		}

		chained, err := p.runStage(ctx, entries, i, targets)
		if err != nil {
			return err
		}
		i += chained
	}
	return nil
}

// runStage queries and, if needed, executes entries[i]. It returns how many
// following entries were absorbed through Chainer.
func (p *Pipeline) runStage(ctx context.Context, entries []*entry, i int, targets []string) (int, error) {
	e := entries[i]
	s := e.stage
	sb := s.stageBase()
	name := s.Name()

	p.mu.Lock()
	p.current = e.phase
	p.mu.Unlock()

	ctx, span := tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("stage.name", name),
		attribute.String("stage.phase", e.phase.String()),
		attribute.Int("stage.priority", e.priority),
	))
	defer span.End()

	start := time.Now()
	sb.setActive(true)
	p.logger.Info("stage started", map[string]any{"stage": name, "phase": e.phase.String()})
	p.emit(Event{Kind: EventStageStarted, Stage: name, StageID: e.id, Phase: e.phase, State: StateActive})

	var chained []*entry
	err := s.Query(ctx, p, targets)
	if err == nil && !sb.Completed() {
		if c, ok := s.(Chainer); ok {
			for _, next := range entries[i+1:] {
				nb := next.stage.stageBase()
				if nb.Disabled() || nb.Completed() || !c.Chain(next.stage) {
					break
				}
				chained = append(chained, next)
			}
		}
		err = s.Execute(ctx, p, targets)
	}
	sb.setActive(false)

	if err != nil {
		if ctx.Err() != nil && !builderr.IsCancelled(err) {
			err = errors.Join(builderr.Cancelled(ctx, "build"), err)
		}
		err = builderr.WithStage(name, err)
		p.recordStage(ctx, name, e.phase, start, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		state := StateFailed
		if builderr.IsCancelled(err) {
			state = StatePending
		} else {
			sb.setFailed()
		}
		p.logger.Error("stage failed", map[string]any{"stage": name, "error": err.Error()})
		p.emit(Event{Kind: EventStageFailed, Stage: name, StageID: e.id, Phase: e.phase, State: state, Err: err})
		return 0, err
	}

	sb.SetCompleted(true)
	p.recordStage(ctx, name, e.phase, start, nil)
	p.logger.Info("stage completed", map[string]any{"stage": name, "duration": time.Since(start).Round(time.Millisecond).String()})
	p.emit(Event{Kind: EventStageCompleted, Stage: name, StageID: e.id, Phase: e.phase, State: StateCompleted})

	for _, c := range chained {
		c.stage.stageBase().SetCompleted(true)
		p.emit(Event{Kind: EventStageCompleted, Stage: c.stage.Name(), StageID: c.id, Phase: c.phase, State: StateCompleted})
	}
	return len(chained), nil
}

func (p *Pipeline) clean(ctx context.Context, phase Phase) error {
	base := phase.Base()
	var stages []*entry
	for _, e := range p.snapshot(0) {
		if e.phase.Base() >= base {
			stages = append(stages, e)
		}
	}

	p.emit(Event{Kind: EventCleanStarted, Phase: base})
	for i := len(stages) - 1; i >= 0; i-- {
		e := stages[i]
		if ctx.Err() != nil {
			return builderr.Cancelled(ctx, "clean")
		}

		p.mu.Lock()
		p.current = e.phase
		p.mu.Unlock()

		p.logger.Debug("cleaning stage", map[string]any{"stage": e.stage.Name()})
		if err := e.stage.Clean(ctx, p); err != nil {
			return builderr.WithStage(e.stage.Name(), err)
		}
		e.stage.stageBase().SetCompleted(false)
	}
	p.emit(Event{Kind: EventCleanFinished, Phase: base})
	return nil
}
