// Package diagnostics extracts compiler diagnostics from build output lines
// using regular-expression error formats.
package diagnostics

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityIgnored Severity = iota
	SeverityNote
	SeverityDeprecated
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityNote:
		return "note"
	case SeverityDeprecated:
		return "deprecated"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "ignored"
	}
}

// ParseSeverity maps tool level strings such as "fatal error" or
// "warning" to a Severity.
func ParseSeverity(level string) Severity {
	l := strings.ToLower(strings.TrimSpace(level))
	switch {
	case strings.Contains(l, "fatal"):
		return SeverityFatal
	case strings.Contains(l, "error"):
		return SeverityError
	case strings.Contains(l, "warning"):
		return SeverityWarning
	case strings.Contains(l, "deprecated"):
		return SeverityDeprecated
	case strings.Contains(l, "note"):
		return SeverityNote
	default:
		return SeverityIgnored
	}
}

// Diagnostic is one message found in build output.
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	loc := d.File
	if d.Line > 0 {
		loc += ":" + strconv.Itoa(d.Line)
		if d.Column > 0 {
			loc += ":" + strconv.Itoa(d.Column)
		}
	}
	return fmt.Sprintf("%s: %s: %s", loc, d.Severity, d.Message)
}

// GCCFormat matches "file:line:column: level: message" as printed by gcc,
// clang, go vet and many other tools.
const GCCFormat = `(?P<filename>[a-zA-Z0-9+\-./_]+):(?P<line>\d+):(?P<column>\d+): (?P<level>[\w\s]+): (?P<message>.*)`

var (
	enteringDir = regexp.MustCompile("Entering directory [`'\"](.+)['\"]")
	leavingDir  = regexp.MustCompile("Leaving directory [`'\"](.+)['\"]")
)

type format struct {
	id uint
	re *regexp.Regexp
}

// Parser matches output lines against registered formats. It tracks make's
// "Entering directory" messages so relative file names resolve against
// the directory make was in. Parser is safe for concurrent use.
type Parser struct {
	mu      sync.Mutex
	baseDir string
	formats []format
	nextID  uint
	dirs    []string
}

// NewParser creates a parser resolving relative paths against baseDir.
func NewParser(baseDir string) *Parser {
	return &Parser{baseDir: baseDir}
}

// AddFormat registers a regular expression. It must name a "message"
// group; "filename", "line", "column" and "level" are optional. The
// returned id removes the format again.
func (p *Parser) AddFormat(expr string) (uint, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return 0, fmt.Errorf("compiling error format: %w", err)
	}
	if re.SubexpIndex("message") < 0 {
		return 0, fmt.Errorf("error format %q has no message group", expr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.formats = append(p.formats, format{id: p.nextID, re: re})
	return p.nextID, nil
}

// RemoveFormat unregisters a format. It reports whether the id was known.
func (p *Parser) RemoveFormat(id uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, f := range p.formats {
		if f.id == id {
			p.formats = append(p.formats[:i], p.formats[i+1:]...)
			return true
		}
	}
	return false
}

// Reset forgets directory tracking state between runs.
func (p *Parser) Reset() {
	p.mu.Lock()
	p.dirs = nil
	p.mu.Unlock()
}

// Feed inspects one line of output.
func (p *Parser) Feed(line string) (Diagnostic, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m := enteringDir.FindStringSubmatch(line); m != nil {
		p.dirs = append(p.dirs, m[1])
		return Diagnostic{}, false
	}
	if leavingDir.MatchString(line) {
		if len(p.dirs) > 0 {
			p.dirs = p.dirs[:len(p.dirs)-1]
		}
		return Diagnostic{}, false
	}

	for _, f := range p.formats {
		m := f.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		group := func(name string) string {
			if i := f.re.SubexpIndex(name); i >= 0 {
				return m[i]
			}
			return ""
		}

		d := Diagnostic{
			File:     p.resolve(group("filename")),
			Severity: SeverityError,
			Message:  strings.TrimSpace(group("message")),
		}
		if lvl := group("level"); lvl != "" {
			d.Severity = ParseSeverity(lvl)
		}
		d.Line, _ = strconv.Atoi(group("line"))
		d.Column, _ = strconv.Atoi(group("column"))
		if d.Severity == SeverityIgnored {
			return Diagnostic{}, false
		}
		return d, true
	}
	return Diagnostic{}, false
}

func (p *Parser) resolve(file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	dir := p.baseDir
	if len(p.dirs) > 0 {
		dir = p.dirs[len(p.dirs)-1]
	}
	if dir == "" {
		return file
	}
	return filepath.Join(dir, file)
}
