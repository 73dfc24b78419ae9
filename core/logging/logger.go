// Package logging provides the structured logger used across foundry.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger defines the structured logging interface shared by the pipeline,
// its addins and the CLI.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

// JSONLogger writes one JSON object per entry to an io.Writer.
type JSONLogger struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// NewJSONLogger creates a JSONLogger writing to w. Debug entries are only
// emitted when verbose is true.
func NewJSONLogger(w io.Writer, verbose bool) *JSONLogger {
	return &JSONLogger{w: w, verbose: verbose}
}

func (l *JSONLogger) Info(msg string, fields map[string]any)  { l.log("info", msg, fields) }
func (l *JSONLogger) Warn(msg string, fields map[string]any)  { l.log("warn", msg, fields) }
func (l *JSONLogger) Error(msg string, fields map[string]any) { l.log("error", msg, fields) }

func (l *JSONLogger) Debug(msg string, fields map[string]any) {
	if !l.verbose {
		return
	}
	l.log("debug", msg, fields)
}

func (l *JSONLogger) log(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = level
	entry["msg"] = msg

	l.mu.Lock()
	defer l.mu.Unlock()
	data, _ := json.Marshal(entry)
	data = append(data, '\n')
	l.w.Write(data) //nolint:errcheck
}

// TextLogger writes human-readable "time level msg key=value" lines.
// Field keys are sorted so output is stable.
type TextLogger struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// NewTextLogger creates a TextLogger writing to w.
func NewTextLogger(w io.Writer, verbose bool) *TextLogger {
	return &TextLogger{w: w, verbose: verbose}
}

func (l *TextLogger) Info(msg string, fields map[string]any)  { l.log("INFO", msg, fields) }
func (l *TextLogger) Warn(msg string, fields map[string]any)  { l.log("WARN", msg, fields) }
func (l *TextLogger) Error(msg string, fields map[string]any) { l.log("ERROR", msg, fields) }

func (l *TextLogger) Debug(msg string, fields map[string]any) {
	if !l.verbose {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *TextLogger) log(level, msg string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(time.Now().Format("15:04:05"))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s ", level)
	b.WriteString(msg)
	for _, k := range keys {
		v := fmt.Sprint(fields[k])
		if strings.ContainsAny(v, " \t\"") {
			v = fmt.Sprintf("%q", v)
		}
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.w, b.String()) //nolint:errcheck
}

// Nop discards everything.
type Nop struct{}

func (Nop) Info(string, map[string]any)  {}
func (Nop) Warn(string, map[string]any)  {}
func (Nop) Error(string, map[string]any) {}
func (Nop) Debug(string, map[string]any) {}

// New returns a logger for the given format name ("json" or "text").
func New(format string, w io.Writer, verbose bool) (Logger, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return NewTextLogger(w, verbose), nil
	case "json":
		return NewJSONLogger(w, verbose), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want json or text)", format)
	}
}
