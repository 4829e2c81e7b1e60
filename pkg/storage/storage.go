package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/carelane/docqueue/pkg/logger"
	"github.com/carelane/docqueue/pkg/storage/minio"
	"github.com/carelane/docqueue/pkg/storage/s3"
)

// StorageType selects the blob backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage holds document bytes, extracted text and embedding vectors.
type Storage interface {
	// Store writes the object and returns its key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get reads the object.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object.
	Delete(ctx context.Context, key string) error
}

// NewStorage is the factory for blob backends.
func NewStorage(storageType StorageType, logger logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.GetClient(logger)
	case StorageTypeMinio:
		return minio.GetClient(logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
