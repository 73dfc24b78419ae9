package launcher

import "slices"

// InsertContainerArgs rewrites a "flatpak build" argv so the wrapped command
// sees the launcher's working directory and environment.
//
// It looks for the token "flatpak" followed later by "build" and inserts,
// immediately after "build", a --build-dir=<cwd> flag and then one
// --env=KEY=VALUE flag per entry of env. Each flag is inserted at the same
// position, so later insertions land before earlier ones. A flag already
// present anywhere in argv is not inserted again, which keeps repeated
// spawns of one launcher from accumulating duplicates.
//
// When argv has no "flatpak ... build" anchor it is returned unchanged.
// The input slice is not modified.
func InsertContainerArgs(argv []string, cwd string, env []string) []string {
	at := containerAnchor(argv)
	if at < 0 {
		return argv
	}

	out := slices.Clone(argv)
	if cwd != "" {
		flag := "--build-dir=" + cwd
		if !slices.Contains(out, flag) {
			out = slices.Insert(out, at, flag)
		}
	}
	for _, kv := range env {
		flag := "--env=" + kv
		if !slices.Contains(out, flag) {
			out = slices.Insert(out, at, flag)
		}
	}
	return out
}

// containerAnchor returns the index just past "build" in a
// "flatpak ... build" argv, or -1.
func containerAnchor(argv []string) int {
	i := slices.Index(argv, "flatpak")
	if i < 0 {
		return -1
	}
	j := slices.Index(argv[i+1:], "build")
	if j < 0 {
		return -1
	}
	return i + 1 + j + 1
}
