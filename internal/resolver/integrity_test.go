package resolver

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenegen/internal/pkg/errors"
)

func TestVerify(t *testing.T) {
	wrongVersion := makeGLB(32)
	binary.LittleEndian.PutUint32(wrongVersion[4:8], 1)
	wrongLength := makeGLB(32)
	binary.LittleEndian.PutUint32(wrongLength[8:12], 999)

	tests := []struct {
		name    string
		file    string
		content []byte
		wantErr string
	}{
		{"valid glb", "a.glb", makeGLB(40), ""},
		{"empty", "a.glb", nil, "empty file"},
		{"bad magic", "a.glb", []byte("GLTFxxxxxxxxxxxx"), "bad glb magic"},
		{"short header", "a.glb", []byte("glTF"), "short glb header"},
		{"wrong version", "a.glb", wrongVersion, "version 1"},
		{"truncated", "a.glb", wrongLength, "declares 999 bytes"},
		{"valid gltf", "a.gltf", []byte(`{"asset":{"version":"2.0"},"nodes":[]}`), ""},
		{"gltf without asset", "a.gltf", []byte(`{"nodes":[]}`), "no asset"},
		{"gltf not json", "a.gltf", []byte(`<html>`), "not valid json"},
		{"valid obj", "a.obj", []byte("# cube\nv 0 0 0\nv 1 0 0\nf 1 2 1\n"), ""},
		{"obj without vertices", "a.obj", []byte("# nothing\nvn 0 0 1\n"), "no vertices"},
		{"other extension", "a.fbx", []byte("x"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(p, tt.content, 0o644))

			err := Verify(p)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadObjectList(t *testing.T) {
	dir := t.TempDir()

	t.Run("skips comments blanks and duplicates", func(t *testing.T) {
		p := filepath.Join(dir, "objects.txt")
		content := "# objaverse subset\n" + uid + "\n\n  models/chair.glb  \n" + uid + "\n#" + "ignored\n"
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

		got, err := LoadObjectList(p)
		require.NoError(t, err)
		assert.Equal(t, []string{uid, "models/chair.glb"}, got)
	})

	t.Run("empty list is a validation error", func(t *testing.T) {
		p := filepath.Join(dir, "empty.txt")
		require.NoError(t, os.WriteFile(p, []byte("# nothing here\n\n"), 0o644))

		_, err := LoadObjectList(p)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("missing file is a validation error", func(t *testing.T) {
		_, err := LoadObjectList(filepath.Join(dir, "nope.txt"))
		assert.True(t, errors.IsValidation(err))
	})
}
