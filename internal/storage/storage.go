// Package storage provides the blob gateway for raw audio recordings and
// decoration model assets, backed by S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors for blob operations.
var (
	// ErrStorage wraps any gateway failure (network, quota, auth). In the
	// synchronous capture path this is a hard failure of the whole
	// operation and triggers rollback of the capture transaction.
	ErrStorage = errors.New("storage failure")

	// ErrObjectNotFound is returned when the requested key does not exist.
	ErrObjectNotFound = errors.New("object not found")
)

// BlobStore is the blob gateway contract: durable put returning a
// retrievable URL, and get for re-reads (enrichment re-triggers fetch the
// original audio through Get).
type BlobStore interface {
	// Put durably stores data under key and returns a download URL. The
	// URL may be signed and time-limited; expiry is an external-lifetime
	// concern, nothing in the pipeline renews it.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get retrieves the blob stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// AudioObjectKey derives the storage key for a diary recording. The key
// embeds the record id, which is why the record must be created (and its
// id assigned) before the upload happens. Re-running the upload for the
// same record yields the same key, making the storage layer idempotent
// for retries of the same audio.
//
// iOS recordings are m4a, hence the fixed extension.
func AudioObjectKey(ownerID uuid.UUID, diaryID int64) string {
	return fmt.Sprintf("%s_%d.m4a", ownerID, diaryID)
}

// ModelObjectKey derives the storage key for a decoration model asset.
func ModelObjectKey(name string) string {
	return name + ".glb"
}
