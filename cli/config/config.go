// Package config locates and loads a project's foundry.yaml for the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	coreconfig "github.com/initializ/foundry/core/config"
)

// Project is a resolved configuration and the file it came from.
type Project struct {
	// Path is the foundry.yaml that was loaded, or "" when the project has
	// none and defaults are in use.
	Path   string
	Config *coreconfig.Config
}

// Find walks up from dir looking for foundry.yaml and returns its path,
// or "" if no ancestor has one.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, coreconfig.FileName)
		fi, err := os.Stat(path)
		switch {
		case err == nil && !fi.IsDir():
			return path, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load resolves the configuration for a project rooted at dir. An explicit
// path must exist; otherwise foundry.yaml is searched for from dir upwards
// and defaults rooted at dir are used when there is none.
func Load(path, dir string) (*Project, error) {
	if path == "" {
		found, err := Find(dir)
		if err != nil {
			return nil, fmt.Errorf("locating %s: %w", coreconfig.FileName, err)
		}
		if found == "" {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return nil, err
			}
			return &Project{Config: coreconfig.Default(abs)}, nil
		}
		path = found
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg, err := coreconfig.Load(abs)
	if err != nil {
		return nil, err
	}
	return &Project{Path: abs, Config: cfg}, nil
}

// ReadFile returns the raw bytes of the project's configuration file.
func (p *Project) ReadFile() ([]byte, error) {
	if p.Path == "" {
		return nil, fmt.Errorf("no %s found", coreconfig.FileName)
	}
	return os.ReadFile(p.Path)
}
