// Package enrich implements the asynchronous enrichment pipeline:
// transcription of the raw recording, then summarization and emotion
// classification of the transcript, merged back into the diary record
// as partial updates.
package enrich

import (
	"context"
	"errors"
)

// ErrProvider wraps any failure of the external enrichment provider
// (network, rate limit, malformed response). Provider errors are
// retryable by policy.
var ErrProvider = errors.New("enrichment provider failure")

// Provider is the contract to the external inference service. Each
// method is independently fallible; the pipeline decides what a partial
// failure means for the record.
type Provider interface {
	// Transcribe converts the raw audio to text.
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)

	// Summarize produces a short summary of the transcript.
	Summarize(ctx context.Context, transcript string) (string, error)

	// Classify returns the dominant emotion label for the transcript.
	// The returned label is provider output; the pipeline normalizes it
	// against the closed label set.
	Classify(ctx context.Context, transcript string) (string, error)
}
