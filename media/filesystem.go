package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemStore keeps blobs on local disk under a root directory. The
// HTTP server exposes the same root under /media/, which is what resolved
// URLs point at.
type FileSystemStore struct {
	root    string
	baseURL string
}

func NewFileSystemStore(root string, baseURL string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}
	return &FileSystemStore{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (s *FileSystemStore) Put(ctx context.Context, path string, contentType string, r io.Reader) error {
	target, err := s.localPath(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file and rename so a failed upload never leaves a
	// half-written blob behind.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize blob: %w", err)
	}

	return nil
}

func (s *FileSystemStore) ResolveURL(ctx context.Context, path string) (string, error) {
	if _, err := s.localPath(path); err != nil {
		return "", err
	}
	return s.baseURL + "/media/" + path, nil
}

// Root returns the directory blobs are stored under.
func (s *FileSystemStore) Root() string {
	return s.root
}

// localPath maps a blob path onto the root, refusing anything that would
// escape it.
func (s *FileSystemStore) localPath(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob path: %s", path)
	}
	return filepath.Join(s.root, clean), nil
}
