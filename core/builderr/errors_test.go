package builderr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Execution("wait", 2, "", nil))
	if !errors.Is(err, ErrExecution) {
		t.Error("expected execution error to match ErrExecution")
	}
	if errors.Is(err, ErrSpawn) {
		t.Error("execution error must not match ErrSpawn")
	}
	if CodeOf(err) != CodeExecutionFailed {
		t.Errorf("CodeOf = %q", CodeOf(err))
	}
}

func TestCancelledWrapsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Cancelled(ctx, "build")
	if !errors.Is(err, context.Canceled) {
		t.Error("expected Cancelled to unwrap to context.Canceled")
	}
	if !IsCancelled(err) {
		t.Error("IsCancelled = false")
	}
	if errors.Is(err, ErrExecution) {
		t.Error("cancelled must be distinct from execution failures")
	}
}

func TestWithStage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"builderr", Spawn("spawn", errors.New("not found")), CodeSpawnFailed},
		{"plain", errors.New("boom"), CodeExecutionFailed},
		{"context", fmt.Errorf("x: %w", context.Canceled), CodeCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithStage("configure", tt.err)
			if CodeOf(err) != tt.want {
				t.Errorf("code = %q, want %q", CodeOf(err), tt.want)
			}
			if !strings.HasPrefix(err.Error(), "stage configure: ") {
				t.Errorf("message = %q", err.Error())
			}
		})
	}
	if WithStage("x", nil) != nil {
		t.Error("WithStage(nil) should be nil")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Execution("make", 1, "make: *** [all] Error 1", nil)
	msg := err.Error()
	if !strings.Contains(msg, "exited with status 1") || !strings.Contains(msg, "Error 1") {
		t.Errorf("unexpected message %q", msg)
	}
	if got := (&Error{Code: CodeBusy}).Error(); got != "pipeline busy" {
		t.Errorf("bare code message = %q", got)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{Execution("x", 3, "", nil), 1},
		{Spawn("x", errors.New("nope")), 127},
		{Cancelled(context.Background(), "x"), 130},
		{InvalidConfig("bad"), 2},
		{errors.New("other"), 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestIsNotSupported(t *testing.T) {
	if !IsNotSupported(NotSupported("build system %q", "meson")) {
		t.Error("expected not supported")
	}
	if IsNotSupported(errors.New("x")) {
		t.Error("plain error is not NotSupported")
	}
}
