package media

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-memory blob store. It is safe for concurrent use and
// mainly useful for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	types map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		types: make(map[string]string),
	}
}

func (s *MemoryStore) Put(ctx context.Context, path string, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = data
	s.types[path] = contentType
	return nil
}

func (s *MemoryStore) ResolveURL(ctx context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.blobs[path]; !ok {
		return "", fmt.Errorf("blob not found: %s", path)
	}
	// Server-relative like the filesystem backend, so resolved URLs pass
	// the markup allow-list
	return "/media/" + path, nil
}

// Get returns a stored blob, for test assertions.
func (s *MemoryStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[path]
	return data, ok
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
