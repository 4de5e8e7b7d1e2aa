package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusReady, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusError, StatusProcessing, true},
		{StatusUploading, StatusReady, true},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusError, false},
		{StatusReady, StatusCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.False(t, Status("uploaded").IsValid())
}

func TestCheckTranscribable(t *testing.T) {
	assert.NoError(t, CheckTranscribable(&Record{Status: StatusReady}))
	assert.NoError(t, CheckTranscribable(&Record{Status: StatusError}))
	assert.ErrorIs(t, CheckTranscribable(&Record{Status: StatusProcessing}), ErrAlreadyProcessing)
	assert.ErrorIs(t, CheckTranscribable(&Record{Status: StatusCompleted}), ErrAlreadyTranscribed)
	assert.ErrorIs(t, CheckTranscribable(&Record{Status: StatusUploading}), ErrInvalidTransition)
}

func TestCheckSummarizable(t *testing.T) {
	text := "hello world"
	empty := ""

	assert.ErrorIs(t, CheckSummarizable(&Record{Status: StatusReady, Progress: 100}), ErrNotTranscribed)
	assert.ErrorIs(t, CheckSummarizable(&Record{Status: StatusCompleted}), ErrNoTranscribedText)
	assert.ErrorIs(t, CheckSummarizable(&Record{Status: StatusCompleted, TranscribedText: &empty}), ErrNoTranscribedText)
	assert.ErrorIs(t, CheckSummarizable(&Record{Status: StatusCompleted, TranscribedText: &text, SummaryStatus: SummaryProcessing}), ErrAlreadySummarizing)
	assert.NoError(t, CheckSummarizable(&Record{Status: StatusCompleted, TranscribedText: &text}))
	assert.NoError(t, CheckSummarizable(&Record{Status: StatusCompleted, TranscribedText: &text, SummaryStatus: SummaryError}))
}

func TestApplyStatusKeepsTextOnlyWhenCompleted(t *testing.T) {
	now := time.Now()
	r := &Record{Status: StatusProcessing, Progress: 95}

	r.ApplyStatus(StatusUpdate{Status: StatusCompleted, TranscribedText: Ptr("hello")}, now)
	assert.Equal(t, 100, r.Progress)
	assert.Equal(t, "hello", *r.TranscribedText)
	assert.Nil(t, r.ErrorMessage)

	r.ApplySummary(SummaryUpdate{Status: SummaryCompleted, Text: Ptr("sum")}, now)
	assert.Equal(t, "sum", *r.SummaryText)

	r.ApplyStatus(StatusUpdate{Status: StatusProcessing, Progress: Ptr(5)}, now)
	assert.Equal(t, StatusCompleted, r.Status)
}

func TestApplyStatusKeepsCompletedRecord(t *testing.T) {
	now := time.Now()
	r := &Record{
		Status:          StatusCompleted,
		Progress:        100,
		TranscribedText: Ptr("original transcript"),
		SummaryStatus:   SummaryCompleted,
		SummaryText:     Ptr("summary"),
	}

	assert.False(t, r.ApplyStatus(StatusUpdate{Status: StatusProcessing, Progress: Ptr(5)}, now))
	assert.False(t, r.ApplyStatus(StatusUpdate{Status: StatusError, ErrorMessage: Ptr("Service unavailable")}, now))

	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 100, r.Progress)
	assert.Equal(t, "original transcript", *r.TranscribedText)
	assert.Equal(t, SummaryCompleted, r.SummaryStatus)
	assert.Equal(t, "summary", *r.SummaryText)
	assert.Nil(t, r.ErrorMessage)
}

func TestApplyStatusRetryClearsPreviousError(t *testing.T) {
	r := &Record{Status: StatusError, ErrorMessage: Ptr("Service unavailable")}

	assert.True(t, r.ApplyStatus(StatusUpdate{Status: StatusProcessing, Progress: Ptr(5)}, time.Now()))
	assert.Nil(t, r.ErrorMessage)
	assert.Nil(t, r.TranscribedText)
	assert.Equal(t, 5, r.Progress)
}

func TestApplyStatusErrorResetsProgress(t *testing.T) {
	r := &Record{Status: StatusProcessing, Progress: 60}
	r.ApplyStatus(StatusUpdate{Status: StatusError, Progress: Ptr(40), ErrorMessage: Ptr("Service unavailable")}, time.Now())

	assert.Equal(t, 0, r.Progress)
	assert.Equal(t, "Service unavailable", *r.ErrorMessage)
}

func TestApplyProgressIsMonotonic(t *testing.T) {
	now := time.Now()
	r := &Record{Status: StatusProcessing, Progress: 25}

	assert.True(t, r.ApplyProgress(30, now))
	assert.False(t, r.ApplyProgress(20, now))
	assert.Equal(t, 30, r.Progress)
	assert.True(t, r.ApplyProgress(130, now))
	assert.Equal(t, 100, r.Progress)

	done := &Record{Status: StatusCompleted, Progress: 100}
	assert.False(t, done.ApplyProgress(100, now))
}

func TestApplySummaryClearsStaleFields(t *testing.T) {
	r := &Record{Status: StatusCompleted, SummaryStatus: SummaryError, SummaryErrorMessage: Ptr("boom")}
	r.ApplySummary(SummaryUpdate{Status: SummaryProcessing}, time.Now())

	assert.Equal(t, SummaryProcessing, r.SummaryStatus)
	assert.Nil(t, r.SummaryErrorMessage)
	assert.Nil(t, r.SummaryText)
}
