package renderer

import (
	"os"
	"os/exec"

	"scenegen/internal/pkg/errors"
)

// wellKnownPaths are checked after PATH when no binary is configured.
var wellKnownPaths = []string{
	"/usr/local/bin/blender",
	"/usr/bin/blender",
	"/opt/blender/blender",
	"/tmp/blender-3.6.0-linux-x64/blender",
}

// Discover returns configured if it names an executable file, otherwise the
// first blender found on PATH or at a well-known install location.
func Discover(configured string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		if p, err := exec.LookPath(configured); err == nil {
			return p, nil
		}
		return "", errors.ValidationField("renderer.binary", "renderer not found: "+configured)
	}

	if p, err := exec.LookPath("blender"); err == nil {
		return p, nil
	}
	for _, p := range wellKnownPaths {
		if isExecutable(p) {
			return p, nil
		}
	}
	return "", errors.ValidationField("renderer.binary",
		"blender not found on PATH or in a standard location; set renderer.binary")
}

func isExecutable(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir() && st.Mode()&0o111 != 0
}
