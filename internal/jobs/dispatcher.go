package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler runs a single enrichment job. A handler is responsible for its
// own dead-lettering with stage-level detail; the dispatcher only
// records the outcome.
type Handler interface {
	Run(ctx context.Context, job Job) error
}

// DispatcherConfig contains configuration for the dispatcher.
type DispatcherConfig struct {
	// Workers is the number of worker goroutines. Default: 4.
	Workers int

	// QueueSize bounds the job queue. Dispatch on a full queue never
	// blocks; the job is dropped to the dead-letter store instead.
	// Default: 64.
	QueueSize int
}

// DefaultDispatcherConfig returns the default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:   4,
		QueueSize: 64,
	}
}

// Dispatcher fans enrichment jobs out to a fixed pool of workers over a
// bounded channel. The request path hands off a job and returns
// immediately; job failures never surface to the HTTP response.
type Dispatcher struct {
	queue   chan Job
	handler Handler
	dead    DeadLetterStore
	logger  *slog.Logger
	metrics *Metrics
	workers int

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewDispatcher creates a dispatcher. Call Start before dispatching.
func NewDispatcher(config DispatcherConfig, handler Handler, dead DeadLetterStore, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}

	return &Dispatcher{
		queue:   make(chan Job, config.QueueSize),
		handler: handler,
		dead:    dead,
		logger:  logger,
		metrics: metrics,
		workers: config.Workers,
		stopped: make(chan struct{}),
	}
}

// Start launches the worker pool. ctx is the base context for all job
// runs; cancelling it aborts in-flight jobs.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
	d.logger.Info("enrichment dispatcher started",
		slog.Int("workers", d.workers),
		slog.Int("queue_size", cap(d.queue)))
}

// Dispatch hands a job to the worker pool without blocking. When the
// queue is full the job goes straight to the dead-letter store so the
// capture request is never held up by a slow pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) {
	select {
	case <-d.stopped:
		d.dropToDeadLetters(ctx, job, "dispatcher_stopped")
		return
	default:
	}

	select {
	case d.queue <- job:
		if d.metrics != nil {
			d.metrics.SetQueueDepth(float64(len(d.queue)))
		}
	default:
		d.dropToDeadLetters(ctx, job, "queue_full")
	}
}

// Stop closes the queue and waits for the workers to drain it, bounded
// by ctx. After Stop, Dispatch routes every job to dead letters.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		close(d.stopped)
		close(d.queue)
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("enrichment dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("enrichment dispatcher stop timed out with jobs in flight")
		return ctx.Err()
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()

	for job := range d.queue {
		if d.metrics != nil {
			d.metrics.SetQueueDepth(float64(len(d.queue)))
		}

		start := time.Now()
		err := d.handler.Run(ctx, job)
		elapsed := time.Since(start)

		if err != nil {
			d.logger.Error("enrichment job failed",
				slog.Int64("diary_id", job.DiaryID),
				slog.String("error", err.Error()))
			if d.metrics != nil {
				d.metrics.IncJobsTotal(JobTypeEnrichment, StatusFailure)
				d.metrics.ObserveJobDuration(JobTypeEnrichment, elapsed.Seconds())
			}
			continue
		}

		if d.metrics != nil {
			d.metrics.IncJobsTotal(JobTypeEnrichment, StatusSuccess)
			d.metrics.ObserveJobDuration(JobTypeEnrichment, elapsed.Seconds())
		}
	}
}

func (d *Dispatcher) dropToDeadLetters(ctx context.Context, job Job, reason string) {
	d.logger.Warn("enrichment job dropped to dead letters",
		slog.Int64("diary_id", job.DiaryID),
		slog.String("reason", reason))
	if d.metrics != nil {
		d.metrics.IncJobErrors(JobTypeEnrichment, reason)
		d.metrics.IncDeadLetters(JobTypeEnrichment)
	}
	if d.dead == nil {
		return
	}
	letter := job.Letter([]string{"dispatch"}, time.Now().UnixMicro())
	if err := d.dead.Push(ctx, letter); err != nil {
		d.logger.Error("dead letter push failed",
			slog.Int64("diary_id", job.DiaryID),
			slog.String("error", err.Error()))
	}
}
