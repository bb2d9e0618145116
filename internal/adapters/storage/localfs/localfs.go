package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"scenegen/internal/ports"
)

// LocalFS implements ports.StorageProvider over a directory that mirrors the
// asset store layout (e.g. an rsynced copy of glbs/).
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

// Root returns the mirror directory.
func (l *LocalFS) Root() string { return l.root }

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, ports.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.ObjectInfo{}, err
	}
	p, err := l.resolve(objectKey)
	if err != nil {
		return nil, ports.ObjectInfo{}, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ports.ObjectInfo{}, fmt.Errorf("%w: %s", ports.ErrObjectNotFound, objectKey)
		}
		return nil, ports.ObjectInfo{}, err
	}

	info := ports.ObjectInfo{Size: -1, ContentType: contentType(p)}
	if st, statErr := f.Stat(); statErr == nil {
		if st.IsDir() {
			f.Close()
			return nil, ports.ObjectInfo{}, fmt.Errorf("%w: %s is a directory", ports.ErrObjectNotFound, objectKey)
		}
		info.Size = st.Size()
	}
	return f, info, nil
}

// resolve maps a slash-separated key under root, refusing keys that would
// escape it.
func (l *LocalFS) resolve(objectKey string) (string, error) {
	clean := path.Clean("/" + objectKey)
	if objectKey == "" || clean == "/" || strings.Contains(objectKey, "..") {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".glb":
		return "model/gltf-binary"
	case ".gltf":
		return "model/gltf+json"
	case ".obj":
		return "model/obj"
	}
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
