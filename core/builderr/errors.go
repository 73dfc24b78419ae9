// Package builderr defines the error taxonomy shared by launchers, stages
// and pipelines.
package builderr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Code identifies a class of build failure. Codes are strings so they read
// well in logs and JSON output.
type Code string

const (
	// CodeSpawnFailed means the executable could not be located or the OS
	// refused to create the process.
	CodeSpawnFailed Code = "SPAWN_FAILED"

	// CodeExecutionFailed means the process ran and exited unsuccessfully.
	CodeExecutionFailed Code = "EXECUTION_FAILED"

	// CodeCancelled means the operation was aborted through its context.
	CodeCancelled Code = "CANCELLED"

	// CodeNotSupported means an addin or stage does not apply to the
	// current build system or configuration.
	CodeNotSupported Code = "NOT_SUPPORTED"

	// CodeInvalidConfig indicates a configuration error.
	CodeInvalidConfig Code = "INVALID_CONFIGURATION"

	// CodeBusy means a pipeline run is already in progress.
	CodeBusy Code = "PIPELINE_BUSY"

	// CodeInvalidPhase means a phase name or value was not recognised.
	CodeInvalidPhase Code = "INVALID_PHASE"
)

// Sentinels usable with errors.Is. Any *Error with a matching Code
// satisfies errors.Is against them.
var (
	ErrSpawn        = &Error{Code: CodeSpawnFailed}
	ErrExecution    = &Error{Code: CodeExecutionFailed}
	ErrCancelled    = &Error{Code: CodeCancelled}
	ErrNotSupported = &Error{Code: CodeNotSupported}
	ErrBusy         = &Error{Code: CodeBusy}
)

// Error is a categorised build error.
type Error struct {
	Code Code
	// Op is the operation that failed, e.g. "spawn" or "build".
	Op string
	// Stage is the name of the stage that failed, when known.
	Stage string
	// ExitCode is the process exit status for execution failures, or -1
	// when the process was terminated by a signal.
	ExitCode int
	// Output holds the tail of captured stdout/stderr.
	Output string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		fmt.Fprintf(&b, "stage %s: ", e.Stage)
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Code), "_", " ")))
	}
	if e.Output != "" {
		b.WriteString("\n")
		b.WriteString(e.Output)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code. A target with
// an empty code never matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// Spawn wraps an error raised while creating a process.
func Spawn(op string, err error) *Error {
	return &Error{Code: CodeSpawnFailed, Op: op, Err: err}
}

// Execution reports a process that exited with a non-zero status.
func Execution(op string, exitCode int, output string, err error) *Error {
	if err == nil {
		err = fmt.Errorf("exited with status %d", exitCode)
	}
	return &Error{Code: CodeExecutionFailed, Op: op, ExitCode: exitCode, Output: output, Err: err}
}

// Cancelled reports that ctx aborted op. The returned error also matches
// context.Canceled or context.DeadlineExceeded through errors.Is.
func Cancelled(ctx context.Context, op string) *Error {
	cause := context.Canceled
	if ctx != nil {
		if err := context.Cause(ctx); err != nil {
			cause = err
		}
	}
	return &Error{Code: CodeCancelled, Op: op, Err: cause}
}

// NotSupported declines an operation with a reason.
func NotSupported(format string, args ...any) *Error {
	return &Error{Code: CodeNotSupported, Err: fmt.Errorf(format, args...)}
}

// InvalidConfig reports a configuration problem.
func InvalidConfig(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidConfig, Err: fmt.Errorf(format, args...)}
}

// WithStage returns err annotated with the stage name. Errors that are not
// *Error are classified as execution failures.
func WithStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		cp := *be
		cp.Stage = stage
		return &cp
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeCancelled, Stage: stage, Err: err}
	}
	return &Error{Code: CodeExecutionFailed, Stage: stage, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// there is none.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsCancelled reports whether err represents an intentional cancellation.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsNotSupported reports whether err declines an operation.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// ExitCode maps err to a process exit status for command-line drivers.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch CodeOf(err) {
	case CodeSpawnFailed:
		return 127
	case CodeCancelled:
		return 130
	case CodeInvalidConfig, CodeInvalidPhase:
		return 2
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
