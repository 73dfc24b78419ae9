// Package buildsystem discovers which build system a source tree uses.
package buildsystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// BuildSystem recognises one kind of project.
type BuildSystem interface {
	// ID is the identifier addins match on, e.g. "meson".
	ID() string
	DisplayName() string
	// Priority orders competing matches; the lowest value wins.
	Priority() int
	// Detect reports whether dir is a project of this kind.
	Detect(dir string) (bool, error)
}

// Markers detects a build system by the presence of any of a set of files
// at the top of the source tree.
type Markers struct {
	id       string
	name     string
	priority int
	files    []string
}

// NewMarkers creates a marker-file build system.
func NewMarkers(id, name string, priority int, files ...string) *Markers {
	return &Markers{id: id, name: name, priority: priority, files: files}
}

func (m *Markers) ID() string          { return m.id }
func (m *Markers) DisplayName() string { return m.name }
func (m *Markers) Priority() int       { return m.priority }

// Files returns the marker file names.
func (m *Markers) Files() []string { return slices.Clone(m.files) }

func (m *Markers) Detect(dir string) (bool, error) {
	for _, f := range m.files {
		_, err := os.Stat(filepath.Join(dir, f))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, fs.ErrNotExist):
			continue
		default:
			return false, fmt.Errorf("checking %s: %w", f, err)
		}
	}
	return false, nil
}

// Registry holds build systems in registration order.
type Registry struct {
	mu      sync.RWMutex
	systems []BuildSystem
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a build system. It returns an error if one with the same
// id is already registered.
func (r *Registry) Register(bs BuildSystem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.systems {
		if existing.ID() == bs.ID() {
			return fmt.Errorf("build system %q already registered", bs.ID())
		}
	}
	r.systems = append(r.systems, bs)
	return nil
}

// Get returns a build system by id, or nil if not found.
func (r *Registry) Get(id string) BuildSystem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, bs := range r.systems {
		if bs.ID() == id {
			return bs
		}
	}
	return nil
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.systems))
	for i, bs := range r.systems {
		ids[i] = bs.ID()
	}
	return ids
}

// Discover asks every build system whether dir belongs to it and returns
// the match with the lowest priority; ties go to the earlier
// registration. It returns nil when nothing matches.
func (r *Registry) Discover(dir string) (BuildSystem, error) {
	r.mu.RLock()
	systems := slices.Clone(r.systems)
	r.mu.RUnlock()

	var best BuildSystem
	for _, bs := range systems {
		ok, err := bs.Detect(dir)
		if err != nil {
			return nil, fmt.Errorf("build system %s detect: %w", bs.ID(), err)
		}
		if ok && (best == nil || bs.Priority() < best.Priority()) {
			best = bs
		}
	}
	return best, nil
}

// Resolve returns the build system named by override, or discovers one
// when override is empty.
func (r *Registry) Resolve(dir, override string) (BuildSystem, error) {
	if override != "" {
		bs := r.Get(override)
		if bs == nil {
			return nil, fmt.Errorf("unknown build system %q (known: %s)", override, strings.Join(r.IDs(), ", "))
		}
		return bs, nil
	}
	bs, err := r.Discover(dir)
	if err != nil {
		return nil, err
	}
	if bs == nil {
		return nil, fmt.Errorf("no build system found in %s", dir)
	}
	return bs, nil
}

// Default returns a registry with the build systems foundry ships addins
// for.
func Default() *Registry {
	r := NewRegistry()
	for _, bs := range []BuildSystem{
		NewMarkers("meson", "Meson", 100, "meson.build"),
		NewMarkers("cargo", "Cargo", 0, "Cargo.toml"),
		NewMarkers("go", "Go", 0, "go.mod"),
		NewMarkers("gradle", "Gradle", 0, "build.gradle", "build.gradle.kts", "settings.gradle"),
		NewMarkers("maven", "Maven", 0, "pom.xml"),
		NewMarkers("make", "Make", 1000, "GNUmakefile", "Makefile", "makefile"),
	} {
		_ = r.Register(bs)
	}
	return r
}
