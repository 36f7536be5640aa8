package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	putErr     error
	resolveErr error
	puts       int
}

func (s *failingStore) Put(ctx context.Context, path string, contentType string, r io.Reader) error {
	s.puts++
	return s.putErr
}

func (s *failingStore) ResolveURL(ctx context.Context, path string) (string, error) {
	if s.resolveErr != nil {
		return "", s.resolveErr
	}
	return "https://blobs.example.com/" + path, nil
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name        string
		ownerID     string
		contentType string
		expected    error
	}{
		{
			name:        "missing owner",
			ownerID:     "",
			contentType: "image/png",
			expected:    ErrUnauthenticated,
		},
		{
			name:        "non-image payload",
			ownerID:     "user-1",
			contentType: "text/plain",
			expected:    ErrInvalidMediaType,
		},
		{
			name:        "missing content type",
			ownerID:     "user-1",
			contentType: "",
			expected:    ErrInvalidMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := &failingStore{}
			uploader := NewUploader(blobs)

			_, err := uploader.Upload(context.Background(), tt.ownerID, "a.png", tt.contentType, strings.NewReader("data"))
			assert.ErrorIs(t, err, tt.expected)

			// Rejected before any I/O
			assert.Equal(t, 0, blobs.puts)
		})
	}
}

func TestUploadPathScheme(t *testing.T) {
	blobs := NewMemoryStore()
	uploader := NewUploader(blobs)
	uploader.now = func() time.Time { return time.UnixMilli(1700000000000) }

	asset, err := uploader.Upload(context.Background(), "user-1", "cat.png", "image/png", strings.NewReader("payload"))
	require.NoError(t, err)

	assert.Equal(t, "posts/user-1/1700000000000_cat.png", asset.Path)
	assert.Equal(t, "/media/posts/user-1/1700000000000_cat.png", asset.URL)
	assert.Equal(t, "user-1", asset.OwnerID)
	assert.Equal(t, "cat.png", asset.Filename)
	assert.Equal(t, int64(1700000000000), asset.UploadedAt)

	data, ok := blobs.Get(asset.Path)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)
}

func TestUploadFailures(t *testing.T) {
	tests := []struct {
		name  string
		blobs *failingStore
	}{
		{
			name:  "put fails",
			blobs: &failingStore{putErr: fmt.Errorf("disk full")},
		},
		{
			name:  "resolve fails",
			blobs: &failingStore{resolveErr: errors.New("no such blob")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := NewUploader(tt.blobs)
			_, err := uploader.Upload(context.Background(), "user-1", "a.png", "image/jpeg", strings.NewReader("data"))
			assert.ErrorIs(t, err, ErrUploadFailed)
		})
	}
}

func TestFileSystemStoreRejectsEscapingPaths(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir(), "http://localhost:3000")
	require.NoError(t, err)

	err = store.Put(context.Background(), "../escape.png", "image/png", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestFileSystemStoreRoundTrip(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir(), "http://localhost:3000/")
	require.NoError(t, err)

	path := "posts/user-1/1_cat.png"
	require.NoError(t, store.Put(context.Background(), path, "image/png", strings.NewReader("payload")))

	url, err := store.ResolveURL(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/media/posts/user-1/1_cat.png", url)
}
