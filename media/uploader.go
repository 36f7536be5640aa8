package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"tavle/models"
)

var (
	// ErrInvalidMediaType is returned before any I/O when the payload does
	// not declare an image media type.
	ErrInvalidMediaType = errors.New("media: not an image")

	// ErrUnauthenticated is returned when no owner id is supplied.
	ErrUnauthenticated = errors.New("media: missing owner")

	// ErrUploadFailed wraps blob store failures.
	ErrUploadFailed = errors.New("media: upload failed")
)

// BlobStore is the durable blob storage collaborator. Put writes the
// payload under the given path, ResolveURL turns a stored path into a
// fetchable URL.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, r io.Reader) error
	ResolveURL(ctx context.Context, path string) (string, error)
}

// Uploader turns binary image payloads into durable, publicly resolvable
// media assets. It is stateless and reentrant; serializing uploads within
// an authoring session is the caller's job.
type Uploader struct {
	blobs BlobStore
	now   func() time.Time
}

func NewUploader(blobs BlobStore) *Uploader {
	return &Uploader{
		blobs: blobs,
		now:   time.Now,
	}
}

// Upload validates the payload, writes it under
// posts/{ownerID}/{unixMilli}_{filename} and resolves its URL. Same-owner
// same-millisecond same-filename collisions are accepted as statistically
// negligible rather than defended against.
func (u *Uploader) Upload(ctx context.Context, ownerID string, filename string, contentType string, r io.Reader) (models.MediaAsset, error) {
	if ownerID == "" {
		return models.MediaAsset{}, ErrUnauthenticated
	}
	if !strings.HasPrefix(contentType, "image/") {
		return models.MediaAsset{}, ErrInvalidMediaType
	}

	uploadedAt := u.now().UnixMilli()
	path := fmt.Sprintf("posts/%s/%d_%s", ownerID, uploadedAt, filename)

	if err := u.blobs.Put(ctx, path, contentType, r); err != nil {
		return models.MediaAsset{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	url, err := u.blobs.ResolveURL(ctx, path)
	if err != nil {
		return models.MediaAsset{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	log.WithFields(log.Fields{
		"owner": ownerID,
		"path":  path,
	}).Info("Uploaded media asset")

	return models.MediaAsset{
		OwnerID:    ownerID,
		Filename:   filename,
		Path:       path,
		URL:        url,
		UploadedAt: uploadedAt,
	}, nil
}
