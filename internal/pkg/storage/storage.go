package storage

import (
	"context"
	"io"
)

// Config holds S3/MinIO connection settings for the ledger archive bucket.
type Config struct {
	S3Endpoint  string // custom endpoint for MinIO, empty for AWS
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
}

// Storage is the object store the retention worker writes ledger archives to.
type Storage interface {
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}
