package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/initializ/foundry/cli/config"
	"github.com/initializ/foundry/cli/output"
	"github.com/initializ/foundry/core/buildsystem"
	"github.com/initializ/foundry/core/logging"
	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/plugins/addins"
)

// session is a loaded project and its pipeline for one command.
type session struct {
	project  *config.Project
	pipeline *pipeline.Pipeline
	logger   logging.Logger
	theme    output.Theme

	closers []func() error
}

// projectDir is the directory named by -C, or the working directory.
func projectDir() (string, error) {
	if srcDir != "" {
		return filepath.Abs(srcDir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return wd, nil
}

// newLogger builds the logger selected by --log-format and --log-file.
// Without --log-file, logs go to stderr only in verbose mode since the
// renderer already reports progress.
func newLogger(cmd *cobra.Command) (logging.Logger, io.Closer, error) {
	var w io.Writer
	var c io.Closer
	switch {
	case logFile == "-":
		w = stderr(cmd)
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, c = f, f
	case verbose:
		w = stderr(cmd)
	default:
		if _, err := logging.New(logFormat, io.Discard, false); err != nil {
			return nil, nil, usageError{err}
		}
		return logging.Nop{}, nil, nil
	}
	l, err := logging.New(logFormat, w, verbose)
	if err != nil {
		if c != nil {
			c.Close() //nolint:errcheck
		}
		return nil, nil, usageError{err}
	}
	return l, c, nil
}

// openSession loads the project configuration, resolves its build system
// and creates a pipeline with every builtin addin loaded.
func openSession(cmd *cobra.Command) (*session, error) {
	dir, err := projectDir()
	if err != nil {
		return nil, err
	}
	project, err := config.Load(cfgFile, dir)
	if err != nil {
		return nil, err
	}
	cfg := project.Config

	logger, logCloser, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	s := &session{project: project, logger: logger, theme: output.DetectTheme(themeOverride)}
	if logCloser != nil {
		s.closers = append(s.closers, logCloser.Close)
	}

	shutdown, err := setupTracing(cmd, traceFile)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, shutdown)

	flushMetrics, err := setupMetrics(cmd, metricsFile)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, flushMetrics)

	src := cfg.SrcDir()
	bsID := ""
	reg := buildsystem.Default()
	if override := cfg.BuildSystem(); override != "" {
		bs, err := reg.Resolve(src, override)
		if err != nil {
			s.close()
			return nil, usageError{err}
		}
		bsID = bs.ID()
	} else if bs, err := reg.Discover(src); err != nil {
		s.close()
		return nil, err
	} else if bs != nil {
		bsID = bs.ID()
	}
	logger.Debug("build system resolved", map[string]any{"build_system": bsID, "srcdir": src})

	bdir := cfg.BuildDir()
	if buildDir != "" {
		if bdir, err = filepath.Abs(buildDir); err != nil {
			s.close()
			return nil, err
		}
	}

	p, err := pipeline.New(pipeline.Options{
		Config:      cfg,
		SrcDir:      src,
		BuildDir:    bdir,
		BuildSystem: bsID,
		Logger:      logger,
		Addins:      addins.All(),
	})
	if err != nil {
		s.close()
		return nil, err
	}
	s.pipeline = p
	s.closers = append([]func() error{p.Close}, s.closers...)

	if err := p.Load(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.Warn("shutdown", map[string]any{"error": err.Error()})
		}
	}
	s.closers = nil
}

// signalContext is cancelled on SIGINT or SIGTERM so running stages are
// interrupted and the pipeline stops at the current stage.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := context.Background()
	if cmd != nil && cmd.Context() != nil {
		parent = cmd.Context()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// parsePhaseArg parses the optional phase argument, defaulting to def.
func parsePhaseArg(args []string, def pipeline.Phase) (pipeline.Phase, []string, error) {
	if len(args) == 0 {
		return def, nil, nil
	}
	ph, err := pipeline.ParsePhase(args[0])
	if err != nil {
		return 0, nil, usageError{err}
	}
	return ph, args[1:], nil
}

// renderer attaches a terminal renderer for op to the session's pipeline.
func (s *session) renderer(cmd *cobra.Command, op string) func() {
	w := stdout(cmd)
	r := output.NewRenderer(w, output.NewStyles(s.theme, w), op, verbose)
	id := s.pipeline.AddObserver(r)
	return func() { s.pipeline.RemoveObserver(id) }
}
