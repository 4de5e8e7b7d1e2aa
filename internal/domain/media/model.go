package media

import (
	"time"
)

// Record is one uploaded audio/video file and its derived text.
//
// TranscribedText is set exactly when Status is StatusCompleted, and the
// summary fields are only populated once a completed transcription exists.
type Record struct {
	ID                  string
	OwnerID             string
	StoragePath         string
	Filename            string
	OriginalFilename    string
	ContentType         string
	Size                int64
	UploadedAt          time.Time
	Status              Status
	Progress            int
	ErrorMessage        *string
	TranscribedText     *string
	SummaryStatus       SummaryStatus
	SummaryText         *string
	SummaryErrorMessage *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// StatusUpdate is a write to the transcription stage fields.
type StatusUpdate struct {
	Status          Status
	Progress        *int
	ErrorMessage    *string
	TranscribedText *string
}

// SummaryUpdate is a write to the summarization stage fields.
type SummaryUpdate struct {
	Status       SummaryStatus
	Text         *string
	ErrorMessage *string
}

// ApplyStatus mutates r the way every Repository implementation must.
// Completed always ends at progress 100 with the text; error always ends at
// progress 0. A completed record is terminal: the write is ignored and
// ApplyStatus reports false.
func (r *Record) ApplyStatus(u StatusUpdate, now time.Time) bool {
	if r.Status == StatusCompleted {
		return false
	}
	r.Status = u.Status
	if u.Progress != nil {
		r.Progress = clampProgress(*u.Progress)
	}
	r.ErrorMessage = nil
	r.TranscribedText = nil

	switch u.Status {
	case StatusCompleted:
		r.Progress = 100
		r.TranscribedText = cloneString(u.TranscribedText)
	case StatusError:
		r.Progress = 0
		r.ErrorMessage = cloneString(u.ErrorMessage)
	}

	if u.Status != StatusCompleted {
		r.SummaryStatus = SummaryNone
		r.SummaryText = nil
		r.SummaryErrorMessage = nil
	}
	r.UpdatedAt = now
	return true
}

// ApplyProgress moves progress forward while a transcription is running.
// It reports false when the write was ignored.
func (r *Record) ApplyProgress(progress int, now time.Time) bool {
	progress = clampProgress(progress)
	if r.Status != StatusProcessing || progress < r.Progress {
		return false
	}
	r.Progress = progress
	r.UpdatedAt = now
	return true
}

// ApplySummary mutates r the way every Repository implementation must.
func (r *Record) ApplySummary(u SummaryUpdate, now time.Time) {
	r.SummaryStatus = u.Status
	r.SummaryText = nil
	r.SummaryErrorMessage = nil

	switch u.Status {
	case SummaryCompleted:
		r.SummaryText = cloneString(u.Text)
	case SummaryError:
		r.SummaryErrorMessage = cloneString(u.ErrorMessage)
	}
	r.UpdatedAt = now
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.ErrorMessage = cloneString(r.ErrorMessage)
	out.TranscribedText = cloneString(r.TranscribedText)
	out.SummaryText = cloneString(r.SummaryText)
	out.SummaryErrorMessage = cloneString(r.SummaryErrorMessage)
	return &out
}

// HasTranscript reports whether usable transcribed text is stored.
func (r *Record) HasTranscript() bool {
	return r.TranscribedText != nil && *r.TranscribedText != ""
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
