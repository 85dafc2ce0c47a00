package archive

import (
	"context"
	"fmt"

	"habitpoints/internal/config"
)

// Sink stores export archives under a name and returns where it put them
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// New builds the sink selected by cfg. It returns nil, nil when archiving is
// disabled.
func New(ctx context.Context, cfg config.ArchiveConfig) (Sink, error) {
	switch cfg.Driver {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveFilesystem:
		return NewFilesystem(cfg.Dir)
	case config.ArchiveS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			Prefix:    cfg.S3.Prefix,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported archive driver: %s", cfg.Driver)
	}
}
