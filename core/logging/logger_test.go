package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, false)

	l.Info("stage started", map[string]any{"stage": "make", "err": errors.New("boom")})
	l.Debug("hidden", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["level"] != "info" || entry["msg"] != "stage started" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["stage"] != "make" {
		t.Errorf("stage = %v", entry["stage"])
	}
	if entry["err"] != "boom" {
		t.Errorf("err field = %v, want boom", entry["err"])
	}
}

func TestJSONLoggerVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, true)
	l.Debug("visible", nil)
	if !strings.Contains(buf.String(), `"level":"debug"`) {
		t.Errorf("expected debug entry, got %q", buf.String())
	}
}

func TestTextLoggerSortsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewTextLogger(&buf, false)
	l.Warn("slow stage", map[string]any{"b": 2, "a": "x y"})

	out := buf.String()
	if !strings.Contains(out, "WARN  slow stage a=\"x y\" b=2") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	for _, format := range []string{"", "text", "json", "JSON"} {
		if _, err := New(format, &buf, false); err != nil {
			t.Errorf("New(%q): %v", format, err)
		}
	}
	if _, err := New("xml", &buf, false); err == nil {
		t.Error("expected error for unknown format")
	}
}
