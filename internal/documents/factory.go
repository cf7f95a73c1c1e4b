package documents

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/config"
)

// Backend names a document storage backend.
type Backend string

const (
	BackendFS Backend = "fs"
	BackendS3 Backend = "s3"
)

// NewStore creates the configured document store.
func NewStore(ctx context.Context, cfg config.DocumentsConfig) (Store, error) {
	switch Backend(cfg.Backend) {
	case BackendFS, "":
		return NewFileStore(cfg.Dir)
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 document store requires a bucket")
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported document storage type: %s", cfg.Backend)
	}
}
