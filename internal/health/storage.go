package health

import (
	"context"
	"errors"

	"github.com/recordiary/backend/internal/storage"
)

// probeKey is a key that is never written. A not-found answer proves
// the bucket is reachable and credentials work.
const probeKey = ".healthcheck"

// StorageChecker implements health checking for the blob store.
type StorageChecker struct {
	blobs storage.BlobStore
}

// NewStorageChecker creates a new blob storage health checker.
func NewStorageChecker(blobs storage.BlobStore) *StorageChecker {
	return &StorageChecker{blobs: blobs}
}

// HealthCheck reads a probe key. ErrObjectNotFound is a healthy
// answer; anything else means the gateway is unreachable or denied.
func (s *StorageChecker) HealthCheck(ctx context.Context) error {
	_, err := s.blobs.Get(ctx, probeKey)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return err
	}
	return nil
}
