package pipeline

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/initializ/foundry/core/diagnostics"
)

// EventKind identifies what happened.
type EventKind int

const (
	EventRunStarted EventKind = iota
	EventRunFinished
	EventRunFailed
	EventStageStarted
	EventStageCompleted
	EventStageFailed
	EventStageSkipped
	EventLog
	EventDiagnostic
	EventCleanStarted
	EventCleanFinished
)

var eventKindNames = [...]string{
	EventRunStarted:     "run-started",
	EventRunFinished:    "run-finished",
	EventRunFailed:      "run-failed",
	EventStageStarted:   "stage-started",
	EventStageCompleted: "stage-completed",
	EventStageFailed:    "stage-failed",
	EventStageSkipped:   "stage-skipped",
	EventLog:            "log",
	EventDiagnostic:     "diagnostic",
	EventCleanStarted:   "clean-started",
	EventCleanFinished:  "clean-finished",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Stream names the output stream a log line came from.
type Stream int

const (
	StreamNone Stream = iota
	StreamStdout
	StreamStderr
)

func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return ""
	}
}

// Event is one record of the pipeline's progress stream.
type Event struct {
	RunID      string
	Kind       EventKind
	Time       time.Time
	Stage      string
	StageID    uint
	Phase      Phase
	State      StageState
	Stream     Stream
	Line       string
	Diagnostic *diagnostics.Diagnostic
	Err        error
}

// Observer receives pipeline events. Events are delivered synchronously
// and one at a time, in the order they happen; observers must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// tailBuffer keeps the last few lines of a stage's output for error
// reports.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTailBuffer(n int) *tailBuffer { return &tailBuffer{max: n} }

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.max-1]
	}
	t.lines = append(t.lines, line)
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// lineWriter splits a byte stream into lines and hands each to fn.
type lineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func(string)
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		w.fn(line)
	}
	return len(b), nil
}

// Flush emits a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.fn(strings.TrimRight(string(w.buf), "\r"))
		w.buf = nil
	}
}

func (w *lineWriter) Close() error {
	w.Flush()
	return nil
}
