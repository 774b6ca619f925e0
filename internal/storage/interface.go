package storage

import (
	"context"
	"io"
	"time"
)

// RemoteFile describes one file in the remote model store listing.
type RemoteFile struct {
	Path       string
	Name       string
	SizeBytes  int64
	ModifiedAt time.Time
}

// ModelStore defines the interface for the remote underwriting-model file store.
// Implementations must be read-only with respect to the remote files.
type ModelStore interface {
	// List returns the current file listing under the given root prefix.
	List(ctx context.Context, root string) ([]RemoteFile, error)

	// Download fetches a file's content
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks if a file exists
	Exists(ctx context.Context, path string) (bool, error)
}
