package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that LocalStorage implements Uploader.
var _ Uploader = (*LocalStorage)(nil)

// LocalStorage implements Uploader by copying files into a directory.
// It is meant for development and single-host deployments.
type LocalStorage struct {
	dir     string
	baseURL string
}

// NewLocalStorage creates a new LocalStorage instance.
// If dir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist. When baseURL is empty the
// returned URLs are file:// URLs.
func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "scene-assembler-renders")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}

	return &LocalStorage{dir: abs, baseURL: baseURL}, nil
}

// Dir returns the storage directory path.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Upload copies the file at localPath to dir/key.
func (s *LocalStorage) Upload(ctx context.Context, localPath, key string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(dst, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes storage directory", key)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create key directory: %w", err)
	}

	in, err := os.Open(localPath) // #nosec G304 - localPath is inside the job workspace
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.CreateTemp(filepath.Dir(dst), ".upload_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := out.Name()

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write stored file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close stored file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("move stored file: %w", err)
	}

	if s.baseURL != "" {
		return joinURL(s.baseURL, key), nil
	}
	return "file://" + filepath.ToSlash(dst), nil
}
