// Package jobs provides the background job dispatcher for diary
// enrichment, with bounded queueing, Prometheus metrics, and a
// dead-letter store for jobs that exhaust their retries.
package jobs

import (
	"github.com/google/uuid"
)

// Job is an enrichment work item. It is handed to the dispatcher as a
// value copy; the worker never shares mutable state with the request
// that produced it.
type Job struct {
	// DiaryID is the record the enrichment results will be merged into.
	DiaryID int64

	// OwnerID is the record owner, needed for re-reading the record.
	OwnerID uuid.UUID

	// AudioKey is the blob storage key of the raw recording. Kept so a
	// dead-lettered job can re-fetch the audio on retry.
	AudioKey string

	// ContentType of the uploaded audio.
	ContentType string

	// Audio is the raw recording. Carried in memory for the first run;
	// never persisted to the dead-letter store.
	Audio []byte
}

// DeadLetter is the persisted descriptor of a failed job. It records
// which stages failed but deliberately excludes the audio bytes; a
// retry re-fetches them from blob storage via AudioKey.
type DeadLetter struct {
	DiaryID      int64    `cbor:"diary_id"`
	OwnerID      string   `cbor:"owner_id"`
	AudioKey     string   `cbor:"audio_key"`
	ContentType  string   `cbor:"content_type"`
	FailedStages []string `cbor:"failed_stages"`
	RecordedAtUS int64    `cbor:"recorded_at_us"`
}

// Letter builds the dead-letter descriptor for this job.
func (j Job) Letter(failedStages []string, nowUS int64) DeadLetter {
	return DeadLetter{
		DiaryID:      j.DiaryID,
		OwnerID:      j.OwnerID.String(),
		AudioKey:     j.AudioKey,
		ContentType:  j.ContentType,
		FailedStages: failedStages,
		RecordedAtUS: nowUS,
	}
}
