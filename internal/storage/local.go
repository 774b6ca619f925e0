package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore implements ModelStore over a local directory tree. Used for
// development and tests where no S3-compatible endpoint is available.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a model store rooted at the given directory
func NewLocalStore(basePath string) *LocalStore {
	return &LocalStore{basePath: basePath}
}

// List walks the directory under root and returns the file listing,
// sorted by path for deterministic output.
func (s *LocalStore) List(ctx context.Context, root string) ([]RemoteFile, error) {
	var files []RemoteFile

	base := filepath.Join(s.basePath, filepath.FromSlash(root))
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		files = append(files, RemoteFile{
			Path:       filepath.ToSlash(rel),
			Name:       d.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Download opens a file from the local tree
func (s *LocalStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.basePath, filepath.FromSlash(path)))
}

// Exists checks if a file exists in the local tree
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.basePath, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
