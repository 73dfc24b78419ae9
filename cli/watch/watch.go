// Package watch reports source tree changes using fsnotify.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/initializ/foundry/core/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to
// settle before reporting it.
const DefaultDebounce = 300 * time.Millisecond

var skippedDirs = map[string]bool{
	".git": true, "_build": true, ".flatpak-builder": true,
	"node_modules": true, "__pycache__": true, ".venv": true,
}

// Watcher calls onChange with the paths touched in each burst of file
// system activity under dir.
type Watcher struct {
	dir       string
	onChange  func(paths []string)
	logger    logging.Logger
	debounce  time.Duration
	skipPaths []string
	ready     chan struct{}
}

// New creates a watcher for dir. onChange runs on the watcher's goroutine,
// so a slow callback delays the next report rather than overlapping it.
func New(dir string, onChange func(paths []string), logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		logger:   logger,
		debounce: DefaultDebounce,
		ready:    make(chan struct{}),
	}
}

// SetDebounce changes the settle delay.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// SkipDir excludes path and everything under it, typically the build
// directory.
func (w *Watcher) SkipDir(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		w.skipPaths = append(w.skipPaths, abs)
	}
}

// Ready is closed once the initial tree is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

func (w *Watcher) skipped(path string) bool {
	if skippedDirs[filepath.Base(path)] {
		return true
	}
	for _, p := range w.skipPaths {
		if path == p || strings.HasPrefix(path, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipped(path) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// Watch blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Watch(ctx context.Context) error {
	root, err := filepath.Abs(w.dir)
	if err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, root); err != nil {
		return err
	}
	close(w.ready)

	var (
		pending = make(map[string]bool)
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || w.skipped(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(fw, ev.Name); err != nil {
					w.logger.Warn("cannot watch new directory", map[string]any{"path": ev.Name, "error": err.Error()})
				}
			}
			pending[ev.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			clear(pending)
			w.logger.Info("file change detected", map[string]any{"files": len(paths)})
			w.onChange(paths)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", map[string]any{"error": err.Error()})
		}
	}
}
