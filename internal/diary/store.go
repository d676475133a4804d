package diary

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common errors for diary store operations.
var (
	// ErrDiaryNotFound is returned when the requested record does not exist.
	ErrDiaryNotFound = errors.New("diary not found")
)

// CreateParams are the caller-supplied fields for a new record. Everything
// else (id, timestamps, enrichment fields) is assigned by the store.
type CreateParams struct {
	OwnerID   uuid.UUID
	IsPrivate bool
}

// Tx is a transactional scope over the diary store, used by the capture
// path so that record creation and the audio-link update commit or roll
// back together. The blob upload itself happens between the two calls and
// is outside the transaction's rollback power; on upload failure the
// caller rolls back and the just-created record never becomes visible.
type Tx interface {
	// Create inserts a new record with null audio/enrichment fields and
	// returns the assigned id. The id is allocated here, before any blob
	// exists, so the blob key can embed it.
	Create(ctx context.Context, params CreateParams) (int64, error)

	// Update applies a partial update inside the transaction.
	Update(ctx context.Context, id int64, patch Patch) error

	// Commit makes all writes in the scope durable.
	Commit() error

	// Rollback discards all writes in the scope. Safe to call after
	// Commit (no-op), which allows `defer tx.Rollback()` call sites.
	Rollback() error
}

// Store is the record store contract. Every write is atomic and scoped to
// a single record id; concurrent updates to different fields of the same
// record must not lose either write, which is why updates are patch-based
// rather than whole-row overwrites.
type Store interface {
	// Begin opens a transactional scope for the capture path.
	Begin(ctx context.Context) (Tx, error)

	// Update applies a partial update as its own atomic scope. Used by the
	// enrichment worker, which runs long after the capture transaction has
	// committed. An empty patch succeeds trivially. Returns
	// ErrDiaryNotFound if the record does not exist.
	Update(ctx context.Context, id int64, patch Patch) error

	// Get returns one record owned by ownerID.
	Get(ctx context.Context, ownerID uuid.UUID, id int64) (*Diary, error)

	// GetMany returns the owner's records matching ids. Missing ids are
	// silently absent from the result; ordering is unspecified.
	GetMany(ctx context.Context, ownerID uuid.UUID, ids []int64) ([]*Diary, error)

	// GetByMonth returns the owner's records whose creation timestamp
	// falls in the given year/month. Ordering is unspecified.
	GetByMonth(ctx context.Context, ownerID uuid.UUID, year, month int) ([]*Diary, error)
}
