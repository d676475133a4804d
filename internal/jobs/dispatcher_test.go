package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// recordingHandler collects the jobs it runs and optionally blocks until
// released, to let tests fill the queue deterministically.
type recordingHandler struct {
	mu      sync.Mutex
	ran     []Job
	err     error
	release chan struct{}
}

func (h *recordingHandler) Run(ctx context.Context, job Job) error {
	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.mu.Lock()
	h.ran = append(h.ran, job)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) jobs() []Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Job, len(h.ran))
	copy(out, h.ran)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDispatcher_RunsDispatchedJobs(t *testing.T) {
	handler := &recordingHandler{}
	d := NewDispatcher(DispatcherConfig{Workers: 2, QueueSize: 8}, handler, nil, testLogger(), nil)

	ctx := context.Background()
	d.Start(ctx)

	for i := int64(1); i <= 5; i++ {
		d.Dispatch(ctx, Job{DiaryID: i, OwnerID: uuid.New()})
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := len(handler.jobs()); got != 5 {
		t.Errorf("ran %d jobs, want 5", got)
	}
}

func TestDispatcher_FullQueueDropsToDeadLetters(t *testing.T) {
	release := make(chan struct{})
	handler := &recordingHandler{release: release}
	dead := NewInMemoryDeadLetterStore(0)
	d := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 1}, handler, dead, testLogger(), nil)

	ctx := context.Background()
	d.Start(ctx)

	// First job occupies the worker, second fills the queue. Give the
	// worker a moment to pick up the first so the queue slot is free.
	d.Dispatch(ctx, Job{DiaryID: 1})
	time.Sleep(50 * time.Millisecond)
	d.Dispatch(ctx, Job{DiaryID: 2})
	d.Dispatch(ctx, Job{DiaryID: 3, OwnerID: uuid.New(), AudioKey: "k.m4a"})

	n, err := dead.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("dead letters = %d, want 1", n)
	}
	letter, ok, err := dead.Pop(ctx)
	if err != nil || !ok {
		t.Fatalf("Pop = (%v, %v), want a letter", ok, err)
	}
	if letter.DiaryID != 3 {
		t.Errorf("dropped diary id = %d, want 3", letter.DiaryID)
	}
	if letter.AudioKey != "k.m4a" {
		t.Errorf("dropped audio key = %q, want %q", letter.AudioKey, "k.m4a")
	}

	close(release)
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestDispatcher_DispatchAfterStopDeadLetters(t *testing.T) {
	handler := &recordingHandler{}
	dead := NewInMemoryDeadLetterStore(0)
	d := NewDispatcher(DispatcherConfig{}, handler, dead, testLogger(), nil)

	ctx := context.Background()
	d.Start(ctx)
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	d.Dispatch(ctx, Job{DiaryID: 7})

	n, _ := dead.Len(ctx)
	if n != 1 {
		t.Errorf("dead letters after post-stop dispatch = %d, want 1", n)
	}
	if got := len(handler.jobs()); got != 0 {
		t.Errorf("handler ran %d jobs, want 0", got)
	}
}

func TestDispatcher_HandlerErrorDoesNotStopWorkers(t *testing.T) {
	handler := &recordingHandler{err: errors.New("stage failed")}
	d := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 8}, handler, nil, testLogger(), NewMetrics())

	ctx := context.Background()
	d.Start(ctx)

	d.Dispatch(ctx, Job{DiaryID: 1})
	d.Dispatch(ctx, Job{DiaryID: 2})

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := len(handler.jobs()); got != 2 {
		t.Errorf("ran %d jobs, want 2", got)
	}
}
