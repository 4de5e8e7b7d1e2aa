package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/janhq/transcription-api/internal/config"
	"github.com/janhq/transcription-api/internal/domain/retry"
)

func TestJobOptions(t *testing.T) {
	cfg := &config.Config{
		JobMaxAttempts:                3,
		JobBackoffDelay:               5 * time.Second,
		SummarizationRemoveOnComplete: false,
	}

	transcription, summarization := jobOptions(cfg)

	assert.True(t, transcription.RemoveOnComplete)
	assert.False(t, transcription.RemoveOnFail)
	assert.Equal(t, 3, transcription.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, transcription.Retry.InitialDelay)
	assert.Equal(t, retry.BackoffExponential, transcription.Retry.BackoffStrategy)

	assert.False(t, summarization.RemoveOnComplete)
	assert.Equal(t, transcription.Retry, summarization.Retry)

	cfg.SummarizationRemoveOnComplete = true
	_, summarization = jobOptions(cfg)
	assert.True(t, summarization.RemoveOnComplete)
}
