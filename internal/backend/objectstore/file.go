package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements backend.BlobStore on the local filesystem. Objects
// live under a base directory and are served by the HTTP layer under the
// configured base URL.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("storage base url is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// BasePath exposes the directory the HTTP layer serves.
func (f *FileStore) BasePath() string {
	return f.basePath
}

// Put writes an object under the base directory. The size argument is
// accepted for interface parity; the reader is drained regardless.
func (f *FileStore) Put(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

// PublicURL resolves the retrieval URL for a stored object.
func (f *FileStore) PublicURL(_ context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("object key is required")
	}
	return f.baseURL + "/" + strings.TrimLeft(key, "/"), nil
}

// Delete removes the object backing the provided retrieval URL. A missing
// file completes without error.
func (f *FileStore) Delete(_ context.Context, url string) error {
	key, err := keyFromURL(f.baseURL, url)
	if err != nil {
		return err
	}
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// resolve maps an object key to a path under the base directory and
// rejects traversal outside it.
func (f *FileStore) resolve(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	target := filepath.Join(f.basePath, cleaned)
	if !strings.HasPrefix(target, filepath.Clean(f.basePath)+string(os.PathSeparator)) {
		return "", fmt.Errorf("object key %q escapes storage dir", key)
	}
	return target, nil
}
