package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"/":       "",
		"api":     "/api",
		"/api":    "/api",
		"/api/":   "/api",
		"bridge/": "/bridge",
		"  /v1 ":  "/v1",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeBase(in), "input %q", in)
	}
}

func TestIsSafeName(t *testing.T) {
	for _, ok := range []string{"booth-a", "Preset_1", "a.b"} {
		assert.True(t, isSafeName(ok), ok)
	}
	for _, bad := range []string{"", "..", "a/b", `a\b`, "a b", "../x", "name!"} {
		assert.False(t, isSafeName(bad), bad)
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	assert.True(t, isSafeAbsPath("/photos/p.png"))
	assert.True(t, isSafeAbsPath("/photos/"))
	assert.False(t, isSafeAbsPath("photos/p.png"))
	assert.False(t, isSafeAbsPath("/photos/../etc/passwd"))
	assert.False(t, isSafeAbsPath("./p.png"))
}
