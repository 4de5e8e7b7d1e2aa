package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/domain/retry"
)

var (
	// ErrJobNotFound is returned by Get for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrLeaseLost is returned by Complete and Fail when the job is no longer
	// active under the lease it was reserved with.
	ErrLeaseLost = errors.New("job lease lost")
)

// Queue is a durable, at-least-once job queue partitioned by job type.
type Queue interface {
	// Enqueue records a job; a nil error means it will eventually run.
	Enqueue(ctx context.Context, jobType job.Type, recordID, ownerID string, payload any, opts job.Options) (*job.Job, error)

	// Reserve claims the oldest ready job of the type, marks it active, counts
	// the attempt and leases it until now+lease. It returns (nil, nil) when idle.
	Reserve(ctx context.Context, jobType job.Type, lease time.Duration) (*job.Job, error)

	// Complete finishes an active job, removing it when RemoveOnComplete is set.
	// j must carry the lease returned by Reserve.
	Complete(ctx context.Context, j *job.Job) error

	// Fail records a failed attempt. The job is delayed for a retry or moved to
	// failed, and the resulting state is returned. Like Complete it only acts
	// while j still holds its lease.
	Fail(ctx context.Context, j *job.Job, cause error) (job.State, error)

	Get(ctx context.Context, id string) (*job.Job, error)

	// Counts returns the number of jobs per state for one type.
	Counts(ctx context.Context, jobType job.Type) (map[job.State]int64, error)

	// RecoverStalled returns expired active jobs to waiting, or fails them
	// when their attempts are used up.
	RecoverStalled(ctx context.Context) (int64, error)

	// PruneCompleted deletes completed jobs finished before olderThan. Failed
	// jobs are never pruned.
	PruneCompleted(ctx context.Context, olderThan time.Time) (int64, error)
}

// newJob builds an unsaved job in the waiting state.
func newJob(id string, jobType job.Type, recordID, ownerID string, payload any, opts job.Options, now time.Time) (*job.Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("job type is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	if !opts.Retry.BackoffStrategy.IsValid() {
		opts.Retry.BackoffStrategy = retry.BackoffExponential
	}
	return &job.Job{
		ID:        id,
		Type:      jobType,
		RecordID:  recordID,
		OwnerID:   ownerID,
		Payload:   raw,
		Options:   opts,
		State:     job.StateWaiting,
		RunAt:     now,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// holdsLease reports whether stored is still active under the lease of reserved.
func holdsLease(stored, reserved *job.Job) bool {
	if stored.State != job.StateActive || stored.LockedUntil == nil || reserved.LockedUntil == nil {
		return false
	}
	return stored.LockedUntil.Equal(*reserved.LockedUntil)
}

// failureOutcome decides what a failed attempt turns into.
func failureOutcome(j *job.Job, cause error, now time.Time) (job.State, time.Time) {
	if j.Options.Retry.ShouldRetry(j.AttemptsMade, cause) {
		return job.StateDelayed, now.Add(j.Options.Retry.CalculateDelay(j.AttemptsMade))
	}
	return job.StateFailed, now
}

func errorText(cause error) string {
	if cause == nil {
		return "unknown error"
	}
	return cause.Error()
}
