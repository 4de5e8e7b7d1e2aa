package media

import (
	"errors"
)

// Status is the transcription stage of a Record.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusReady      Status = "ready"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// ValidTransitions lists the allowed moves of the transcription stage.
// processing -> processing covers a retried attempt; completed is terminal.
var ValidTransitions = map[Status][]Status{
	StatusUploading:  {StatusReady, StatusError},
	StatusReady:      {StatusProcessing, StatusError},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusError},
	StatusError:      {StatusProcessing, StatusReady},
	StatusCompleted:  {},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := ValidTransitions[s]
	return ok
}

// CanTransitionTo reports whether s may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// SummaryStatus is the summarization stage of a Record. SummaryNone means
// summarization was never requested.
type SummaryStatus string

const (
	SummaryNone       SummaryStatus = ""
	SummaryProcessing SummaryStatus = "processing"
	SummaryCompleted  SummaryStatus = "completed"
	SummaryError      SummaryStatus = "error"
)

// IsValid reports whether s is a known summary status, including SummaryNone.
func (s SummaryStatus) IsValid() bool {
	switch s {
	case SummaryNone, SummaryProcessing, SummaryCompleted, SummaryError:
		return true
	}
	return false
}

var (
	ErrAlreadyProcessing  = errors.New("file is already being processed")
	ErrAlreadyTranscribed = errors.New("file has already been transcribed")
	ErrNotTranscribed     = errors.New("file must be transcribed before summarization")
	ErrNoTranscribedText  = errors.New("no transcribed text available")
	ErrAlreadySummarizing = errors.New("summarization is already in progress")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrQueueUnavailable   = errors.New("job queue unavailable")
)

// CheckTranscribable enforces the preconditions for starting a transcription.
func CheckTranscribable(r *Record) error {
	switch r.Status {
	case StatusProcessing:
		return ErrAlreadyProcessing
	case StatusCompleted:
		return ErrAlreadyTranscribed
	case StatusReady, StatusError:
		return nil
	}
	return ErrInvalidTransition
}

// CheckSummarizable enforces the preconditions for starting a summarization.
func CheckSummarizable(r *Record) error {
	if r.Status != StatusCompleted {
		return ErrNotTranscribed
	}
	if !r.HasTranscript() {
		return ErrNoTranscribedText
	}
	if r.SummaryStatus == SummaryProcessing {
		return ErrAlreadySummarizing
	}
	return nil
}
