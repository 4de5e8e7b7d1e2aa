package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/infrastructure/database/entities"
)

func TestJobEntityMapping(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j, err := newJob("job_1", job.TypeTranscription, "med_1", "u1", payload(), job.DefaultOptions(), now)
	require.NoError(t, err)
	j.LastError = "boom"

	back := toDomain(toEntity(j))
	assert.Equal(t, j.ID, back.ID)
	assert.Equal(t, j.Options, back.Options)
	assert.Equal(t, "boom", back.LastError)
	assert.JSONEq(t, string(j.Payload), string(back.Payload))
}

func TestFailureOutcome(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := &job.Job{Options: job.DefaultOptions(), AttemptsMade: 2}

	state, runAt := failureOutcome(j, errors.New("down"), now)
	assert.Equal(t, job.StateDelayed, state)
	assert.Equal(t, now.Add(10*time.Second), runAt)

	j.AttemptsMade = 3
	state, _ = failureOutcome(j, errors.New("down"), now)
	assert.Equal(t, job.StateFailed, state)
}

func TestHoldsLease(t *testing.T) {
	lease := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)
	later := lease.Add(time.Minute)
	reserved := &job.Job{ID: "job_1", State: job.StateActive, LockedUntil: &lease}

	assert.True(t, holdsLease(&job.Job{State: job.StateActive, LockedUntil: &lease}, reserved))
	assert.False(t, holdsLease(&job.Job{State: job.StateActive, LockedUntil: &later}, reserved), "re-reserved by another worker")
	assert.False(t, holdsLease(&job.Job{State: job.StateWaiting}, reserved), "recovered after the lease expired")
	assert.False(t, holdsLease(&job.Job{State: job.StateCompleted}, reserved))
	assert.False(t, holdsLease(&job.Job{State: job.StateActive, LockedUntil: &lease}, &job.Job{ID: "job_1"}))
}

func TestLeasedScopesWritesToReservedLease(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=jan dbname=jan"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	lease := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)
	j := &job.Job{ID: "job_1", LockedUntil: &lease}

	stmt := leased(db.Model(&entities.Job{}), j).Updates(map[string]any{"state": string(job.StateCompleted)}).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, "id = $")
	assert.Contains(t, sql, "state = $")
	assert.Contains(t, sql, "locked_until = $")
	assert.Contains(t, stmt.Vars, "job_1")
	assert.Contains(t, stmt.Vars, string(job.StateActive))
	assert.Contains(t, stmt.Vars, lease)
}
