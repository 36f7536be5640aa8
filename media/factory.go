package media

import (
	"context"
	"fmt"

	"tavle/config"
)

// NewBlobStoreFromConfig creates a BlobStore implementation based on the
// media config type.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.MediaConfig) (BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	case "filesystem":
		root := cfg.Root
		if root == "" {
			root = "media"
		}
		return NewFileSystemStore(root, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown media store type: %s", cfg.Type)
	}
}
