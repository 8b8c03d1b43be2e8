// Package env composes the environment handed to the engine process: the
// daemon's own environment as the base, overridden by the configured entries,
// with ${VAR} expansion against the composed set.
package env

import (
	"os"
	"strings"
)

// Compose merges base and overrides (both in "K=V" form, later wins) and
// expands ${VAR} references in every value using the merged map. Expansion is
// a single pass, no recursion. Malformed entries without '=' or with an empty
// key are skipped.
func Compose(base, overrides []string) []string {
	m := make(map[string]string, len(base)+len(overrides))
	apply(m, base)
	apply(m, overrides)

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

// ForEngine composes the daemon's own environment with the configured
// overrides.
func ForEngine(overrides []string) []string {
	return Compose(os.Environ(), overrides)
}

func apply(m map[string]string, kvs []string) {
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
}

// expand substitutes ${VAR} references; unknown references are left as-is.
func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
