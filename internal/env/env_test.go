package env

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeOverridesBase(t *testing.T) {
	out := Compose([]string{"HOME=/root", "DISPLAY=:0"}, []string{"DISPLAY=:1", "RENDER=gl"})
	m := toMap(out)
	assert.Equal(t, "/root", m["HOME"])
	assert.Equal(t, ":1", m["DISPLAY"])
	assert.Equal(t, "gl", m["RENDER"])
}

func TestComposeExpandsReferences(t *testing.T) {
	out := Compose([]string{"HOME=/root"}, []string{"CACHE=${HOME}/.cache", "MISSING=${NOPE}"})
	m := toMap(out)
	assert.Equal(t, "/root/.cache", m["CACHE"])
	assert.Equal(t, "${NOPE}", m["MISSING"], "unknown references stay literal")
}

func TestComposeSkipsMalformedEntries(t *testing.T) {
	out := Compose([]string{"=bad", "novalue", "OK=1"}, nil)
	m := toMap(out)
	assert.Equal(t, map[string]string{"OK": "1"}, m)
}

func FuzzCompose(f *testing.F) {
	f.Add("A=1", "B=${A}")
	f.Add("=x", "")
	f.Add("K=${K}", "K=v")
	f.Fuzz(func(t *testing.T, base, override string) {
		out := Compose([]string{base}, []string{override})
		for _, kv := range out {
			i := strings.IndexByte(kv, '=')
			if i <= 0 {
				t.Fatalf("malformed entry %q", kv)
			}
		}
	})
}

func toMap(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}
