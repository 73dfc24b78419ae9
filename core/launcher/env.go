package launcher

import (
	"os"
	"os/user"
	"strings"
)

// SafePath is used when a host environment would otherwise lack PATH.
const SafePath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func envIndex(env []string, key string) int {
	for i, kv := range env {
		if k, _, _ := strings.Cut(kv, "="); k == key {
			return i
		}
	}
	return -1
}

func envLookup(env []string, key string) (string, bool) {
	if i := envIndex(env, key); i >= 0 {
		_, v, _ := strings.Cut(env[i], "=")
		return v, true
	}
	return "", false
}

// envSet sets key in env. When replace is false an existing value wins.
func envSet(env []string, key, value string, replace bool) []string {
	if i := envIndex(env, key); i >= 0 {
		if replace {
			env[i] = key + "=" + value
		}
		return env
	}
	return append(env, key+"="+value)
}

func envUnset(env []string, key string) []string {
	if i := envIndex(env, key); i >= 0 {
		return append(env[:i], env[i+1:]...)
	}
	return env
}

// mergeEnv overlays top onto base, later entries winning.
func mergeEnv(base, top []string) []string {
	out := append([]string(nil), base...)
	for _, kv := range top {
		k, v, _ := strings.Cut(kv, "=")
		out = envSet(out, k, v, true)
	}
	return out
}

// withMinimalEnv fills in the variables most programs break without.
func withMinimalEnv(env []string) []string {
	env = envSet(env, "PATH", SafePath, false)
	if home, err := os.UserHomeDir(); err == nil {
		env = envSet(env, "HOME", home, false)
	}
	if u, err := user.Current(); err == nil {
		env = envSet(env, "USER", u.Username, false)
	}
	if lang := os.Getenv("LANG"); lang != "" {
		env = envSet(env, "LANG", lang, false)
	}
	return env
}
