package diary

// Patch is a field-set partial update for a diary record. Only non-nil
// fields are written; absent fields are never touched, which is what lets
// the capture path and the enrichment worker update the same record from
// independent execution contexts without losing each other's writes.
//
// An empty patch is a valid no-op: Update implementations must treat it as
// a fast success, not an error.
type Patch struct {
	AudioLink     *string
	Transcription *string
	Summary       *string
	Emotion       *string
	IsPrivate     *bool
}

// IsEmpty reports whether the patch carries no fields.
func (p Patch) IsEmpty() bool {
	return p.AudioLink == nil &&
		p.Transcription == nil &&
		p.Summary == nil &&
		p.Emotion == nil &&
		p.IsPrivate == nil
}

// apply merges the patch into a record in place. Used by the in-memory
// store; the Postgres store translates the patch into a single UPDATE.
func (p Patch) apply(d *Diary) {
	if p.AudioLink != nil {
		d.AudioLink = clonePtr(p.AudioLink)
	}
	if p.Transcription != nil {
		d.Transcription = clonePtr(p.Transcription)
	}
	if p.Summary != nil {
		d.Summary = clonePtr(p.Summary)
	}
	if p.Emotion != nil {
		d.Emotion = clonePtr(p.Emotion)
	}
	if p.IsPrivate != nil {
		d.IsPrivate = *p.IsPrivate
	}
}

// String returns the patch's field names for logging. Values are omitted
// so transcription text never ends up in logs.
func (p Patch) String() string {
	fields := ""
	add := func(name string) {
		if fields != "" {
			fields += ","
		}
		fields += name
	}
	if p.AudioLink != nil {
		add("audio_link")
	}
	if p.Transcription != nil {
		add("transcription")
	}
	if p.Summary != nil {
		add("summary")
	}
	if p.Emotion != nil {
		add("emotion")
	}
	if p.IsPrivate != nil {
		add("is_private")
	}
	if fields == "" {
		return "(empty)"
	}
	return fields
}

// StringPtr is a convenience helper for building patches.
func StringPtr(s string) *string { return &s }

// BoolPtr is a convenience helper for building patches.
func BoolPtr(b bool) *bool { return &b }
