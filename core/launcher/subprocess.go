package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/initializ/foundry/core/builderr"
)

// Subprocess is a running process started by a Launcher.
type Subprocess struct {
	cmd       *exec.Cmd
	ctx       context.Context
	killDelay time.Duration

	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	waitOnce sync.Once
	done     chan struct{}
	waitErr  error
}

// Identifier returns a printable process identifier.
func (s *Subprocess) Identifier() string { return strconv.Itoa(s.Pid()) }

// Pid returns the OS process id.
func (s *Subprocess) Pid() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Stdin is non-nil when the launcher requested StdinPipe.
func (s *Subprocess) Stdin() io.WriteCloser { return s.stdin }

// Stdout is non-nil when the launcher requested StdoutPipe.
func (s *Subprocess) Stdout() io.ReadCloser { return s.stdout }

// Stderr is non-nil when the launcher requested StderrPipe.
func (s *Subprocess) Stderr() io.ReadCloser { return s.stderr }

// Signal delivers sig to the process.
func (s *Subprocess) Signal(sig os.Signal) error {
	if s.cmd.Process == nil {
		return errors.New("process not started")
	}
	return s.cmd.Process.Signal(sig)
}

// ForceExit kills the process.
func (s *Subprocess) ForceExit() error {
	if s.cmd.Process == nil {
		return errors.New("process not started")
	}
	return s.cmd.Process.Kill()
}

func (s *Subprocess) startWait() {
	s.waitOnce.Do(func() {
		go func() {
			s.waitErr = s.cmd.Wait()
			close(s.done)
		}()
	})
}

// Wait blocks until the process exits. Pipes returned by Stdout and Stderr
// must be fully read before calling Wait.
//
// If ctx ends first the process is interrupted, killed after the kill
// delay, and a cancelled error is returned. Otherwise the error is the raw
// result of exec.Cmd.Wait.
func (s *Subprocess) Wait(ctx context.Context) error {
	s.startWait()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.Signal(os.Interrupt) //nolint:errcheck
		select {
		case <-s.done:
		case <-time.After(s.killDelay):
			s.ForceExit() //nolint:errcheck
			<-s.done
		}
		return builderr.Cancelled(ctx, "wait")
	}

	if s.ctx.Err() != nil {
		return builderr.Cancelled(s.ctx, "wait")
	}
	return s.waitErr
}

// WaitCheck waits and converts an unsuccessful exit into an execution
// error. A process killed by a signal is always an error.
func (s *Subprocess) WaitCheck(ctx context.Context) error {
	err := s.Wait(ctx)
	if err == nil || builderr.IsCancelled(err) {
		return err
	}
	return s.classify(err)
}

func (s *Subprocess) classify(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return builderr.Execution("wait", -1, "", err)
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return builderr.Execution("wait", -1, "", fmt.Errorf("terminated by signal %s", ws.Signal()))
	}
	return builderr.Execution("wait", exitErr.ExitCode(), "", nil)
}

// Signaled reports whether the exited process was terminated by a signal.
func (s *Subprocess) Signaled() bool {
	if s.cmd.ProcessState == nil {
		return false
	}
	ws, ok := s.cmd.ProcessState.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled()
}

// ExitCode returns the exit status, or -1 if the process has not exited
// or was terminated by a signal.
func (s *Subprocess) ExitCode() int {
	if s.cmd.ProcessState == nil {
		return -1
	}
	return s.cmd.ProcessState.ExitCode()
}

// Communicate writes input to stdin (when piped), reads stdout and stderr
// concurrently until EOF and then waits for exit. Streams that were not
// piped come back empty.
func (s *Subprocess) Communicate(ctx context.Context, input []byte) (stdout, stderr []byte, err error) {
	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group

	if s.stdin != nil {
		g.Go(func() error {
			defer s.stdin.Close()
			if len(input) == 0 {
				return nil
			}
			_, err := s.stdin.Write(input)
			return err
		})
	}
	if s.stdout != nil {
		g.Go(func() error {
			_, err := io.Copy(&outBuf, s.stdout)
			return err
		})
	}
	if s.stderr != nil {
		g.Go(func() error {
			_, err := io.Copy(&errBuf, s.stderr)
			return err
		})
	}

	ioErr := g.Wait()
	if err := s.WaitCheck(ctx); err != nil {
		var be *builderr.Error
		if errors.As(err, &be) && be.Code == builderr.CodeExecutionFailed {
			be.Output = tail(errBuf.String(), 4096)
		}
		return outBuf.Bytes(), errBuf.Bytes(), err
	}
	if ioErr != nil && !errors.Is(ioErr, os.ErrClosed) {
		return outBuf.Bytes(), errBuf.Bytes(), fmt.Errorf("reading process output: %w", ioErr)
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

// tail returns at most n trailing bytes of s, starting at a line boundary
// where possible.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
		s = s[i+1:]
	}
	return s
}
