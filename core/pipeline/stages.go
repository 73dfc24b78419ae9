package pipeline

import (
	"context"
	"errors"

	"github.com/initializ/foundry/core/builderr"
	"github.com/initializ/foundry/core/launcher"
	"github.com/initializ/foundry/core/runcmd"
)

// outputTailLines is how much stage output is attached to an execution
// error.
const outputTailLines = 25

// LauncherStage runs a prepared launcher. An optional clean launcher is
// run by Clean.
type LauncherStage struct {
	StageBase
	launcher         *launcher.Launcher
	cleanLauncher    *launcher.Launcher
	ignoreExitStatus bool
}

// NewLauncherStage creates a stage that spawns l when executed.
func NewLauncherStage(name string, l *launcher.Launcher) *LauncherStage {
	s := &LauncherStage{launcher: l}
	s.SetName(name)
	return s
}

func (s *LauncherStage) Launcher() *launcher.Launcher      { return s.launcher }
func (s *LauncherStage) CleanLauncher() *launcher.Launcher { return s.cleanLauncher }

// SetCleanLauncher sets the launcher spawned by Clean; nil makes Clean a
// no-op.
func (s *LauncherStage) SetCleanLauncher(l *launcher.Launcher) { s.cleanLauncher = l }

// SetIgnoreExitStatus treats a non-zero exit as success. Death by signal is
// still a failure.
func (s *LauncherStage) SetIgnoreExitStatus(ignore bool) { s.ignoreExitStatus = ignore }

func (s *LauncherStage) Execute(ctx context.Context, p *Pipeline, _ []string) error {
	return runLauncher(ctx, p, s, s.launcher, s.ignoreExitStatus)
}

func (s *LauncherStage) Clean(ctx context.Context, p *Pipeline) error {
	if s.cleanLauncher == nil {
		return nil
	}
	return runLauncher(ctx, p, s, s.cleanLauncher, false)
}

// CommandStage runs a RunCommand through a launcher freshly created by the
// pipeline on every execution, so locality rewriting never accumulates.
type CommandStage struct {
	StageBase
	command          *runcmd.RunCommand
	cleanCommand     *runcmd.RunCommand
	ignoreExitStatus bool
	appendTargets    bool
	phaseArgs        Phase
}

// NewCommandStage creates a stage for cmd.
func NewCommandStage(name string, cmd *runcmd.RunCommand) *CommandStage {
	s := &CommandStage{command: cmd}
	s.SetName(name)
	return s
}

func (s *CommandStage) Command() *runcmd.RunCommand      { return s.command }
func (s *CommandStage) CleanCommand() *runcmd.RunCommand { return s.cleanCommand }

// SetCleanCommand sets the command run by Clean; nil makes Clean a no-op.
func (s *CommandStage) SetCleanCommand(cmd *runcmd.RunCommand) { s.cleanCommand = cmd }

func (s *CommandStage) SetIgnoreExitStatus(ignore bool) { s.ignoreExitStatus = ignore }

// SetAppendTargets passes build targets as extra arguments.
func (s *CommandStage) SetAppendTargets(v bool) { s.appendTargets = v }

// SetPhaseArgs appends the configuration's arguments for phase on every
// execution.
func (s *CommandStage) SetPhaseArgs(phase Phase) { s.phaseArgs = phase }

func (s *CommandStage) Execute(ctx context.Context, p *Pipeline, targets []string) error {
	cmd := s.command.Clone()
	if s.phaseArgs != PhaseNone && p.Config() != nil {
		cmd.AppendArgs(p.Config().ArgsForPhase(s.phaseArgs)...)
	}
	if s.appendTargets {
		cmd.AppendArgs(targets...)
	}
	l, err := p.CreateLauncherFor(cmd)
	if err != nil {
		return err
	}
	return runLauncher(ctx, p, s, l, s.ignoreExitStatus)
}

func (s *CommandStage) Clean(ctx context.Context, p *Pipeline) error {
	if s.cleanCommand == nil {
		return nil
	}
	l, err := p.CreateLauncherFor(s.cleanCommand.Clone())
	if err != nil {
		return err
	}
	return runLauncher(ctx, p, s, l, false)
}

// FuncStage runs custom logic.
type FuncStage struct {
	StageBase
	execute func(ctx context.Context, p *Pipeline, targets []string) error
	clean   func(ctx context.Context, p *Pipeline) error
}

// NewFuncStage creates a stage that calls fn when executed.
func NewFuncStage(name string, fn func(ctx context.Context, p *Pipeline, targets []string) error) *FuncStage {
	s := &FuncStage{execute: fn}
	s.SetName(name)
	return s
}

// SetCleanFunc sets the function called by Clean.
func (s *FuncStage) SetCleanFunc(fn func(ctx context.Context, p *Pipeline) error) { s.clean = fn }

func (s *FuncStage) Execute(ctx context.Context, p *Pipeline, targets []string) error {
	if s.execute == nil {
		return nil
	}
	return s.execute(ctx, p, targets)
}

func (s *FuncStage) Clean(ctx context.Context, p *Pipeline) error {
	if s.clean == nil {
		return nil
	}
	return s.clean(ctx, p)
}

// runLauncher spawns l with its output routed to the pipeline's log and
// diagnostics, and waits for it.
func runLauncher(ctx context.Context, p *Pipeline, s Stage, l *launcher.Launcher, ignoreExit bool) error {
	tail := newTailBuffer(outputTailLines)
	stdout := &lineWriter{fn: func(line string) {
		tail.add(line)
		p.Log(s, StreamStdout, line)
	}}
	stderr := &lineWriter{fn: func(line string) {
		tail.add(line)
		p.Log(s, StreamStderr, line)
	}}
	l.SetStdout(stdout)
	l.SetStderr(stderr)

	p.Logger().Debug("spawning", map[string]any{"stage": s.Name(), "argv": l.Argv(), "cwd": l.Cwd()})
	sp, err := l.Spawn(ctx)
	if err != nil {
		return err
	}

	err = sp.WaitCheck(ctx)
	stdout.Flush()
	stderr.Flush()

	var be *builderr.Error
	if errors.As(err, &be) && be.Code == builderr.CodeExecutionFailed {
		if ignoreExit && be.ExitCode >= 0 {
			p.Logger().Warn("ignoring exit status", map[string]any{"stage": s.Name(), "exit_code": be.ExitCode})
			return nil
		}
		be.Output = tail.String()
	}
	return err
}
