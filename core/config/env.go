package config

import (
	"bufio"
	"io"
	"strings"
)

// ParseEnvVars reads KEY=VALUE pairs in .env format from r. Blank lines
// and # comments are skipped, an "export " prefix is allowed and matching
// single or double quotes around the value are stripped. Inside double
// quotes \n, \t, \" and \\ are unescaped. Later keys win.
func ParseEnvVars(r io.Reader) (map[string]string, error) {
	env := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		env[key] = unquote(strings.TrimSpace(val))
	}
	return env, scanner.Err()
}

func unquote(val string) string {
	if len(val) < 2 {
		return stripComment(val)
	}
	switch {
	case val[0] == '\'' && val[len(val)-1] == '\'':
		return val[1 : len(val)-1]
	case val[0] == '"' && val[len(val)-1] == '"':
		return unescape(val[1 : len(val)-1])
	}
	return stripComment(val)
}

// stripComment drops a trailing " # comment" from an unquoted value.
func stripComment(val string) string {
	if i := strings.Index(val, " #"); i >= 0 {
		return strings.TrimSpace(val[:i])
	}
	return val
}

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`)

func unescape(s string) string { return escapes.Replace(s) }
