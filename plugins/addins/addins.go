// Package addins lists the pipeline addins shipped with foundry.
package addins

import (
	"slices"

	"github.com/initializ/foundry/core/pipeline"
	"github.com/initializ/foundry/plugins/cargo"
	"github.com/initializ/foundry/plugins/container"
	"github.com/initializ/foundry/plugins/flatpak"
	"github.com/initializ/foundry/plugins/gitmodules"
	"github.com/initializ/foundry/plugins/golang"
	"github.com/initializ/foundry/plugins/gradle"
	"github.com/initializ/foundry/plugins/makefile"
	"github.com/initializ/foundry/plugins/maven"
	"github.com/initializ/foundry/plugins/meson"
)

// All returns fresh instances of every builtin addin, in load order:
// workspace setup first, then build systems, then packaging.
func All() []pipeline.Addin {
	return []pipeline.Addin{
		flatpak.New(),
		gitmodules.New(),
		makefile.New(),
		meson.New(),
		cargo.New(),
		golang.New(),
		gradle.New(),
		maven.New(),
		container.New(),
	}
}

// Names returns the names of the builtin addins in load order.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.Name()
	}
	return names
}

// Select returns the builtin addins whose names are not in skip.
func Select(skip []string) []pipeline.Addin {
	var out []pipeline.Addin
	for _, a := range All() {
		if !slices.Contains(skip, a.Name()) {
			out = append(out, a)
		}
	}
	return out
}
