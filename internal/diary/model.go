// Package diary provides the diary record model and repository.
// A diary record is created synchronously during capture and enriched
// asynchronously; enrichment fields are nullable and filled in later.
package diary

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Emotion labels form a closed vocabulary. The classifier output is
// normalized against this set before it is persisted.
const (
	EmotionAnger     = "anger"
	EmotionSadness   = "sadness"
	EmotionHappiness = "happiness"
	EmotionNeutral   = "neutral"
)

// ErrUnknownEmotion is returned when a label is not in the closed set.
var ErrUnknownEmotion = errors.New("unknown emotion label")

// emotions is the closed label set.
var emotions = map[string]bool{
	EmotionAnger:     true,
	EmotionSadness:   true,
	EmotionHappiness: true,
	EmotionNeutral:   true,
}

// NormalizeEmotion lowercases and trims a classifier label and checks it
// against the closed set. Punctuation around the label is stripped so that
// provider output like "Happiness." still resolves.
func NormalizeEmotion(label string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.Trim(normalized, ".!\"'")
	if !emotions[normalized] {
		return "", fmt.Errorf("%w: %q", ErrUnknownEmotion, label)
	}
	return normalized, nil
}

// LocalDate is a calendar day without a time component. It scans from a
// Postgres DATE column and serializes as "2006-01-02".
type LocalDate time.Time

// DateLayout is the JSON wire format for LocalDate.
const DateLayout = "2006-01-02"

// MarshalJSON serializes the date as a quoted "2006-01-02" string.
func (d LocalDate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(d).Format(DateLayout) + `"`), nil
}

// UnmarshalJSON parses a quoted "2006-01-02" string.
func (d *LocalDate) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid local date %q: %w", s, err)
	}
	*d = LocalDate(t)
	return nil
}

// Scan implements sql.Scanner for DATE columns.
func (d *LocalDate) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = LocalDate(v)
		return nil
	case nil:
		*d = LocalDate{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into LocalDate", src)
	}
}

// Value implements driver.Valuer.
func (d LocalDate) Value() (driver.Value, error) {
	return time.Time(d), nil
}

// Diary represents one diary entry. AudioLink is set once by the capture
// path; Transcription, Summary and Emotion are set once by the enrichment
// worker and stay nil until it runs (or forever, if it fails).
type Diary struct {
	ID            int64     `json:"id"`
	OwnerID       uuid.UUID `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
	LocalDate     LocalDate `json:"local_date"`
	AudioLink     *string   `json:"audio_link"`
	Transcription *string   `json:"transcription"`
	Summary       *string   `json:"summary"`
	Emotion       *string   `json:"emotion"`
	IsPrivate     bool      `json:"is_private"`
}

// Enriched reports whether all enrichment fields have been populated.
func (d *Diary) Enriched() bool {
	return d.Transcription != nil && d.Summary != nil && d.Emotion != nil
}

// Captured reports whether the audio blob has been linked. A record without
// an audio link is an incomplete capture and must not be surfaced as a
// finished entry.
func (d *Diary) Captured() bool {
	return d.AudioLink != nil
}

// clone returns a deep copy so callers never share pointers with the store.
func (d *Diary) clone() *Diary {
	c := *d
	c.AudioLink = clonePtr(d.AudioLink)
	c.Transcription = clonePtr(d.Transcription)
	c.Summary = clonePtr(d.Summary)
	c.Emotion = clonePtr(d.Emotion)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
