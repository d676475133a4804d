package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/recordiary/backend/internal/jobs"
	"github.com/recordiary/backend/internal/middleware"
	"github.com/recordiary/backend/internal/storage"
)

// Dispatcher enqueues enrichment jobs.
type Dispatcher interface {
	Dispatch(ctx context.Context, job jobs.Job)
}

// RetryResponse reports how many dead letters were re-dispatched.
type RetryResponse struct {
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

// EnrichHandlers holds dependencies for enrichment admin handlers.
type EnrichHandlers struct {
	deadLetters jobs.DeadLetterStore
	blobs       storage.BlobStore
	dispatcher  Dispatcher
}

// NewEnrichHandlers creates a new EnrichHandlers instance.
func NewEnrichHandlers(deadLetters jobs.DeadLetterStore, blobs storage.BlobStore, dispatcher Dispatcher) *EnrichHandlers {
	return &EnrichHandlers{
		deadLetters: deadLetters,
		blobs:       blobs,
		dispatcher:  dispatcher,
	}
}

// Retry handles POST /internal/enrich/retry. It drains the dead letters
// present at call time, re-fetches each recording from blob storage,
// and re-dispatches the job. Letters whose audio cannot be fetched go
// back on the store and count as failed.
//
// The snapshot length bounds the loop: letters pushed while the drain
// runs (including re-dispatched jobs that fail again) wait for the next
// call.
func (h *EnrichHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx := r.Context()

	pending, err := h.deadLetters.Len(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read dead letter count", "error", err)
		errCtx := middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, errCtx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read dead letters")
		return
	}

	var retried, failed int
	for i := int64(0); i < pending; i++ {
		letter, ok, err := h.deadLetters.Pop(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to pop dead letter", "error", err)
			failed++
			continue
		}
		if !ok {
			break
		}

		ownerID, err := uuid.Parse(letter.OwnerID)
		if err != nil {
			// Corrupt letter; dropping it is the only option.
			slog.ErrorContext(ctx, "dead letter has invalid owner id",
				"diary_id", letter.DiaryID, "owner_id", letter.OwnerID)
			failed++
			continue
		}

		audio, err := h.blobs.Get(ctx, letter.AudioKey)
		if err != nil {
			slog.ErrorContext(ctx, "failed to fetch audio for retry",
				"diary_id", letter.DiaryID, "audio_key", letter.AudioKey, "error", err)
			if pushErr := h.deadLetters.Push(ctx, letter); pushErr != nil {
				slog.ErrorContext(ctx, "failed to requeue dead letter",
					"diary_id", letter.DiaryID, "error", pushErr)
			}
			failed++
			continue
		}

		h.dispatcher.Dispatch(ctx, jobs.Job{
			DiaryID:     letter.DiaryID,
			OwnerID:     ownerID,
			AudioKey:    letter.AudioKey,
			ContentType: letter.ContentType,
			Audio:       audio,
		})
		retried++
	}

	slog.InfoContext(ctx, "dead letter retry finished", "retried", retried, "failed", failed)
	writeJSON(w, ctx, http.StatusOK, RetryResponse{Retried: retried, Failed: failed})
}
