package ports

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject when the key does not exist.
// Callers treat it as permanent and do not retry.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a fetched object.
type ObjectInfo struct {
	ContentType string
	// Size is -1 when the provider does not report it.
	Size int64
}

// StorageProvider is the read side of an asset store the resolver fetches
// object files from (localfs, gdrive, http).
type StorageProvider interface {
	Provider() string
	GetObject(ctx context.Context, objectKey string) (io.ReadCloser, ObjectInfo, error)
}
