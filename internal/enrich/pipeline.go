package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recordiary/backend/internal/diary"
	"github.com/recordiary/backend/internal/jobs"
	"github.com/recordiary/backend/internal/tracing"
)

// Stage names, as recorded in dead letters.
const (
	StageTranscribe = "transcribe"
	StageSummarize  = "summarize"
	StageClassify   = "classify"
	StagePersist    = "persist"
)

// DefaultStageTimeout bounds each provider call (one attempt, not the
// whole retry loop).
const DefaultStageTimeout = 60 * time.Second

// PipelineConfig contains configuration for the enrichment pipeline.
type PipelineConfig struct {
	// StageTimeout bounds a single provider attempt. Default:
	// DefaultStageTimeout.
	StageTimeout time.Duration

	// Retry is the per-stage retry policy. Zero value means
	// DefaultRetryPolicy.
	Retry RetryPolicy
}

// Pipeline runs the enrichment stages for one job and merges results
// into the diary record. It implements jobs.Handler.
//
// Enrichment fields are set-once: a re-run (from the dead-letter
// re-trigger) reads the record first and only fills fields that are
// still null, so a retry never overwrites an earlier success.
type Pipeline struct {
	store        diary.Store
	provider     Provider
	dead         jobs.DeadLetterStore
	logger       *slog.Logger
	stageTimeout time.Duration
	retry        RetryPolicy
}

// NewPipeline creates an enrichment pipeline. dead may be nil, in which
// case failed jobs are only logged.
func NewPipeline(store diary.Store, provider Provider, dead jobs.DeadLetterStore, logger *slog.Logger, config PipelineConfig) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if config.StageTimeout <= 0 {
		config.StageTimeout = DefaultStageTimeout
	}
	if config.Retry.Attempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}

	return &Pipeline{
		store:        store,
		provider:     provider,
		dead:         dead,
		logger:       logger,
		stageTimeout: config.StageTimeout,
		retry:        config.Retry,
	}
}

// Run executes the pipeline for one job:
//
//  1. transcribe the audio and persist the transcription as its own
//     committed update,
//  2. summarize and classify the transcript concurrently,
//  3. persist whatever succeeded in a single partial update.
//
// A stage failure never discards the results of earlier stages. The job
// is dead-lettered with the names of the stages that failed.
func (p *Pipeline) Run(ctx context.Context, job jobs.Job) error {
	current, err := p.store.Get(ctx, job.OwnerID, job.DiaryID)
	if err != nil {
		if errors.Is(err, diary.ErrDiaryNotFound) {
			// Record deleted between capture and enrichment; nothing to
			// enrich, nothing worth retrying.
			p.logger.Warn("enrichment target gone",
				slog.Int64("diary_id", job.DiaryID))
			return nil
		}
		p.deadLetter(ctx, job, []string{StagePersist})
		return fmt.Errorf("load diary %d: %w", job.DiaryID, err)
	}

	transcript, err := p.ensureTranscription(ctx, job, current)
	if err != nil {
		p.deadLetter(ctx, job, []string{StageTranscribe})
		return err
	}

	needSummary := current.Summary == nil
	needEmotion := current.Emotion == nil
	if !needSummary && !needEmotion {
		return nil
	}

	var (
		wg         sync.WaitGroup
		summary    string
		summaryErr error
		emotion    string
		emotionErr error
	)

	if needSummary {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, summaryErr = p.stage(ctx, StageSummarize, func(ctx context.Context) (string, error) {
				return p.provider.Summarize(ctx, transcript)
			})
		}()
	}
	if needEmotion {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emotion, emotionErr = p.stage(ctx, StageClassify, func(ctx context.Context) (string, error) {
				label, err := p.provider.Classify(ctx, transcript)
				if err != nil {
					return "", err
				}
				return diary.NormalizeEmotion(label)
			})
		}()
	}
	wg.Wait()

	var patch diary.Patch
	var failed []string
	if needSummary {
		if summaryErr != nil {
			failed = append(failed, StageSummarize)
		} else {
			patch.Summary = &summary
		}
	}
	if needEmotion {
		if emotionErr != nil {
			failed = append(failed, StageClassify)
		} else {
			patch.Emotion = &emotion
		}
	}

	if !patch.IsEmpty() {
		if err := p.store.Update(ctx, job.DiaryID, patch); err != nil {
			p.deadLetter(ctx, job, append(failed, StagePersist))
			return fmt.Errorf("persist enrichment for diary %d: %w", job.DiaryID, err)
		}
	}

	if len(failed) > 0 {
		p.deadLetter(ctx, job, failed)
		return errors.Join(summaryErr, emotionErr)
	}
	return nil
}

// ensureTranscription returns the transcript, producing and persisting
// it when the record does not have one yet.
func (p *Pipeline) ensureTranscription(ctx context.Context, job jobs.Job, current *diary.Diary) (string, error) {
	if current.Transcription != nil {
		return *current.Transcription, nil
	}
	if len(job.Audio) == 0 {
		return "", fmt.Errorf("%w: no audio for diary %d", ErrProvider, job.DiaryID)
	}

	transcript, err := p.stage(ctx, StageTranscribe, func(ctx context.Context) (string, error) {
		return p.provider.Transcribe(ctx, job.Audio, job.ContentType)
	})
	if err != nil {
		return "", err
	}

	// The transcription is committed on its own: a later summarize or
	// classify failure must not lose it.
	if err := p.store.Update(ctx, job.DiaryID, diary.Patch{Transcription: &transcript}); err != nil {
		return "", fmt.Errorf("persist transcription for diary %d: %w", job.DiaryID, err)
	}
	return transcript, nil
}

// stage runs one provider call under the retry policy, with each
// attempt bounded by the stage timeout. The whole retry loop is one
// trace span.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) (_ string, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "enrich."+name)
	defer func() { endSpan(err) }()

	var out string
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		defer cancel()

		result, err := fn(attemptCtx)
		if err != nil {
			p.logger.Warn("enrichment stage attempt failed",
				slog.String("stage", name),
				slog.String("error", err.Error()))
			return err
		}
		out = result
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	return out, nil
}

func (p *Pipeline) deadLetter(ctx context.Context, job jobs.Job, stages []string) {
	if p.dead == nil {
		return
	}
	letter := job.Letter(stages, time.Now().UnixMicro())
	if err := p.dead.Push(ctx, letter); err != nil {
		p.logger.Error("dead letter push failed",
			slog.Int64("diary_id", job.DiaryID),
			slog.String("error", err.Error()))
	}
}
