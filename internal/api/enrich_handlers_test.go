package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/recordiary/backend/internal/jobs"
	"github.com/recordiary/backend/internal/storage"
)

// recordingDispatcher collects dispatched jobs.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, job jobs.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

func (d *recordingDispatcher) dispatched() []jobs.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]jobs.Job(nil), d.jobs...)
}

func postRetry(t *testing.T, handlers *EnrichHandlers) RetryResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/internal/enrich/retry", nil)
	w := httptest.NewRecorder()
	handlers.Retry(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("retry failed with status %d: %s", w.Code, w.Body.String())
	}
	var resp RetryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode retry response: %v", err)
	}
	return resp
}

func TestRetry_Empty(t *testing.T) {
	handlers := NewEnrichHandlers(jobs.NewInMemoryDeadLetterStore(0), storage.NewInMemoryStore(), &recordingDispatcher{})

	resp := postRetry(t, handlers)
	if resp.Retried != 0 || resp.Failed != 0 {
		t.Errorf("expected 0/0, got %d/%d", resp.Retried, resp.Failed)
	}
}

func TestRetry_RedispatchesWithFetchedAudio(t *testing.T) {
	ctx := context.Background()
	deadLetters := jobs.NewInMemoryDeadLetterStore(0)
	blobs := storage.NewInMemoryStore()
	dispatcher := &recordingDispatcher{}
	handlers := NewEnrichHandlers(deadLetters, blobs, dispatcher)

	owner := uuid.New()
	key := storage.AudioObjectKey(owner, 7)
	if _, err := blobs.Put(ctx, key, []byte("audio-bytes"), "audio/x-m4a"); err != nil {
		t.Fatalf("failed to seed blob: %v", err)
	}
	letter := jobs.DeadLetter{
		DiaryID:      7,
		OwnerID:      owner.String(),
		AudioKey:     key,
		ContentType:  "audio/x-m4a",
		FailedStages: []string{"transcribe"},
	}
	if err := deadLetters.Push(ctx, letter); err != nil {
		t.Fatalf("failed to push letter: %v", err)
	}

	resp := postRetry(t, handlers)
	if resp.Retried != 1 || resp.Failed != 0 {
		t.Fatalf("expected 1/0, got %d/%d", resp.Retried, resp.Failed)
	}

	dispatched := dispatcher.dispatched()
	if len(dispatched) != 1 {
		t.Fatalf("expected 1 dispatched job, got %d", len(dispatched))
	}
	job := dispatched[0]
	if job.DiaryID != 7 || job.OwnerID != owner || job.AudioKey != key {
		t.Errorf("unexpected job: %+v", job)
	}
	if string(job.Audio) != "audio-bytes" {
		t.Errorf("expected re-fetched audio, got %q", job.Audio)
	}

	// The store must be drained.
	if n, _ := deadLetters.Len(ctx); n != 0 {
		t.Errorf("expected empty dead letter store, got %d", n)
	}
}

func TestRetry_MissingAudioRequeues(t *testing.T) {
	ctx := context.Background()
	deadLetters := jobs.NewInMemoryDeadLetterStore(0)
	dispatcher := &recordingDispatcher{}
	handlers := NewEnrichHandlers(deadLetters, storage.NewInMemoryStore(), dispatcher)

	letter := jobs.DeadLetter{
		DiaryID:  3,
		OwnerID:  uuid.NewString(),
		AudioKey: "missing.m4a",
	}
	if err := deadLetters.Push(ctx, letter); err != nil {
		t.Fatalf("failed to push letter: %v", err)
	}

	resp := postRetry(t, handlers)
	if resp.Retried != 0 || resp.Failed != 1 {
		t.Fatalf("expected 0/1, got %d/%d", resp.Retried, resp.Failed)
	}
	if len(dispatcher.dispatched()) != 0 {
		t.Error("expected no dispatched jobs")
	}

	// The letter goes back on the store for the next sweep.
	if n, _ := deadLetters.Len(ctx); n != 1 {
		t.Errorf("expected requeued letter, got %d", n)
	}
}

func TestRetry_CorruptOwnerDropped(t *testing.T) {
	ctx := context.Background()
	deadLetters := jobs.NewInMemoryDeadLetterStore(0)
	handlers := NewEnrichHandlers(deadLetters, storage.NewInMemoryStore(), &recordingDispatcher{})

	letter := jobs.DeadLetter{DiaryID: 5, OwnerID: "not-a-uuid", AudioKey: "x.m4a"}
	if err := deadLetters.Push(ctx, letter); err != nil {
		t.Fatalf("failed to push letter: %v", err)
	}

	resp := postRetry(t, handlers)
	if resp.Retried != 0 || resp.Failed != 1 {
		t.Fatalf("expected 0/1, got %d/%d", resp.Retried, resp.Failed)
	}
	if n, _ := deadLetters.Len(ctx); n != 0 {
		t.Errorf("corrupt letter should be dropped, got %d left", n)
	}
}

func TestRetry_MixedBatch(t *testing.T) {
	ctx := context.Background()
	deadLetters := jobs.NewInMemoryDeadLetterStore(0)
	blobs := storage.NewInMemoryStore()
	dispatcher := &recordingDispatcher{}
	handlers := NewEnrichHandlers(deadLetters, blobs, dispatcher)

	owner := uuid.New()
	goodKey := storage.AudioObjectKey(owner, 1)
	if _, err := blobs.Put(ctx, goodKey, []byte("good"), "audio/x-m4a"); err != nil {
		t.Fatalf("failed to seed blob: %v", err)
	}
	letters := []jobs.DeadLetter{
		{DiaryID: 1, OwnerID: owner.String(), AudioKey: goodKey},
		{DiaryID: 2, OwnerID: owner.String(), AudioKey: "gone.m4a"},
		{DiaryID: 3, OwnerID: "corrupt", AudioKey: goodKey},
	}
	for _, letter := range letters {
		if err := deadLetters.Push(ctx, letter); err != nil {
			t.Fatalf("failed to push letter: %v", err)
		}
	}

	resp := postRetry(t, handlers)
	if resp.Retried != 1 || resp.Failed != 2 {
		t.Fatalf("expected 1/2, got %d/%d", resp.Retried, resp.Failed)
	}
	// Only the fetch failure stays queued.
	if n, _ := deadLetters.Len(ctx); n != 1 {
		t.Errorf("expected 1 requeued letter, got %d", n)
	}
}

func TestRetry_MethodNotAllowed(t *testing.T) {
	handlers := NewEnrichHandlers(jobs.NewInMemoryDeadLetterStore(0), storage.NewInMemoryStore(), &recordingDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/internal/enrich/retry", nil)
	w := httptest.NewRecorder()
	handlers.Retry(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}
