// Package blob stores raw fetched payloads referenced by SourceRef.BlobLocation,
// behind a pluggable local-filesystem (default) or S3 backend.
package blob

import (
	"context"
	"io"
)

// Store persists and retrieves opaque blobs by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (location string, err error)
	Get(ctx context.Context, location string) ([]byte, error)
	GetReader(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
}

// Config selects and parameterizes a Store implementation.
type Config struct {
	Driver   string // "filesystem" (default) | "s3"
	Root     string // filesystem root directory
	Bucket   string // s3 bucket
	Region   string // s3 region
	Endpoint string // s3-compatible endpoint override, e.g. for MinIO
}

// New builds the Store named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return newS3Store(ctx, cfg)
	default:
		return newFilesystemStore(cfg.Root)
	}
}
