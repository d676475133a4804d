// Package capture implements the synchronous capture path: create the
// diary record, upload the audio, link it, and commit as one atomic
// operation before handing the record to the enrichment pipeline.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/recordiary/backend/internal/diary"
	"github.com/recordiary/backend/internal/jobs"
	"github.com/recordiary/backend/internal/storage"
)

// ErrNoAudio is returned when the request carries no audio bytes.
var ErrNoAudio = errors.New("no audio provided")

// Dispatcher is the enrichment handoff. Dispatch must not block.
type Dispatcher interface {
	Dispatch(ctx context.Context, job jobs.Job)
}

// Request is one capture operation.
type Request struct {
	OwnerID     uuid.UUID
	IsPrivate   bool
	Audio       []byte
	ContentType string
}

// Service orchestrates the capture flow.
type Service struct {
	store      diary.Store
	blobs      storage.BlobStore
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewService creates the capture orchestrator. dispatcher may be nil in
// tests; captured records then simply stay unenriched.
func NewService(store diary.Store, blobs storage.BlobStore, dispatcher Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		blobs:      blobs,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Capture runs the synchronous capture flow and returns the new record
// id. The record is created first so its id can seed the storage key,
// but it only becomes visible at commit; any failure before that rolls
// the whole operation back, including a failed blob upload. The
// enrichment job is dispatched after commit and its outcome never
// affects this call.
func (s *Service) Capture(ctx context.Context, req Request) (int64, error) {
	if len(req.Audio) == 0 {
		return 0, ErrNoAudio
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin capture: %w", err)
	}

	id, err := tx.Create(ctx, diary.CreateParams{
		OwnerID:   req.OwnerID,
		IsPrivate: req.IsPrivate,
	})
	if err != nil {
		s.rollback(tx, 0)
		return 0, fmt.Errorf("create diary: %w", err)
	}

	key := storage.AudioObjectKey(req.OwnerID, id)
	url, err := s.blobs.Put(ctx, key, req.Audio, req.ContentType)
	if err != nil {
		s.rollback(tx, id)
		return 0, fmt.Errorf("upload audio for diary %d: %w", id, err)
	}

	if err := tx.Update(ctx, id, diary.Patch{AudioLink: &url}); err != nil {
		s.rollback(tx, id)
		return 0, fmt.Errorf("link audio for diary %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		s.rollback(tx, id)
		return 0, fmt.Errorf("commit capture for diary %d: %w", id, err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, jobs.Job{
			DiaryID:     id,
			OwnerID:     req.OwnerID,
			AudioKey:    key,
			ContentType: req.ContentType,
			Audio:       req.Audio,
		})
	}
	return id, nil
}

// rollback discards the transaction. A rollback failure is logged but
// never replaces the error that caused it.
func (s *Service) rollback(tx diary.Tx, id int64) {
	if err := tx.Rollback(); err != nil {
		s.logger.Error("capture rollback failed",
			slog.Int64("diary_id", id),
			slog.String("error", err.Error()))
	}
}
