// Package storage persists generated artifacts (images, composed assets) on
// the local filesystem under OUTPUT_PATH.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists artifacts onto the local filesystem.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("dmagent/storage: base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("dmagent/storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("dmagent/storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: abs}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string { return s.basePath }

// Write persists data at the relative key and returns the absolute path.
// Writing the same key again replaces the file, so a retried stage does not
// leave orphans behind.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.Path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("dmagent/storage: ensure directory: %w", err)
	}
	// Write to a temp file and rename so readers never see a partial file.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("dmagent/storage: write file: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("dmagent/storage: rename: %w", err)
	}
	return full, nil
}

// Read returns the contents stored at path, which may be a key or an
// absolute path inside the store.
func (s *FileStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("dmagent/storage: read file: %w", err)
	}
	return data, nil
}

// Path maps a relative key to its absolute location.
func (s *FileStore) Path(key string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}

func (s *FileStore) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return s.Path(path)
	}
	rel, err := filepath.Rel(s.basePath, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("dmagent/storage: %q is outside %s", path, s.basePath)
	}
	return s.Path(filepath.ToSlash(rel))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("dmagent/storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("dmagent/storage: invalid key")
	}
	return cleaned, nil
}

// Union writes to its primary store and reads from every store in order.
// The renderer uses it to read brand assets from LOCAL_ASSET_PATH while
// writing composed files under OUTPUT_PATH.
type Union struct {
	stores []*FileStore
}

// NewUnion creates a Union writing to primary.
func NewUnion(primary *FileStore, others ...*FileStore) *Union {
	return &Union{stores: append([]*FileStore{primary}, others...)}
}

// Write persists data in the primary store.
func (u *Union) Write(ctx context.Context, key string, data []byte) (string, error) {
	return u.stores[0].Write(ctx, key, data)
}

// Read returns the first store's copy of path. A path outside a store's
// root or missing from it falls through to the next store.
func (u *Union) Read(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for _, s := range u.stores {
		if _, err := s.resolve(path); err != nil {
			lastErr = err
			continue
		}
		data, err := s.Read(ctx, path)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
