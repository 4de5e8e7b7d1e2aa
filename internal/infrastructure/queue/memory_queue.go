package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/utils/idgen"
)

// MemoryQueue implements Queue in process memory for single-process deployments and tests.
// Jobs do not survive a restart.
type MemoryQueue struct {
	mu    sync.Mutex
	jobs  map[string]*job.Job
	order []string
	now   func() time.Time
	log   zerolog.Logger
}

func NewMemoryQueue(log zerolog.Logger) *MemoryQueue {
	return &MemoryQueue{
		jobs: make(map[string]*job.Job),
		now:  func() time.Time { return time.Now().UTC() },
		log:  log.With().Str("component", "memory-queue").Logger(),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, jobType job.Type, recordID, ownerID string, payload any, opts job.Options) (*job.Job, error) {
	j, err := newJob(idgen.NewJobID(), jobType, recordID, ownerID, payload, opts, q.now())
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	q.jobs[j.ID] = j
	q.order = append(q.order, j.ID)
	q.mu.Unlock()

	return j.Clone(), nil
}

func (q *MemoryQueue) Reserve(_ context.Context, jobType job.Type, lease time.Duration) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var next *job.Job
	for _, id := range q.order {
		j := q.jobs[id]
		if j == nil || j.Type != jobType || j.RunAt.After(now) {
			continue
		}
		if j.State != job.StateWaiting && j.State != job.StateDelayed {
			continue
		}
		if next == nil || j.RunAt.Before(next.RunAt) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}

	lockedUntil := now.Add(lease)
	next.State = job.StateActive
	next.AttemptsMade++
	next.LockedUntil = &lockedUntil
	next.StartedAt = &now
	next.UpdatedAt = now
	return next.Clone(), nil
}

func (q *MemoryQueue) Complete(_ context.Context, j *job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[j.ID]
	if !ok {
		return ErrJobNotFound
	}
	if !holdsLease(stored, j) {
		return ErrLeaseLost
	}
	if stored.Options.RemoveOnComplete {
		q.remove(j.ID)
		return nil
	}

	now := q.now()
	stored.State = job.StateCompleted
	stored.LockedUntil = nil
	stored.FinishedAt = &now
	stored.UpdatedAt = now
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, j *job.Job, cause error) (job.State, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[j.ID]
	if !ok {
		return "", ErrJobNotFound
	}
	if !holdsLease(stored, j) {
		return "", ErrLeaseLost
	}

	now := q.now()
	state, runAt := failureOutcome(stored, cause, now)
	if state == job.StateFailed && stored.Options.RemoveOnFail {
		q.remove(j.ID)
		return state, nil
	}

	stored.State = state
	stored.RunAt = runAt
	stored.LastError = errorText(cause)
	stored.LockedUntil = nil
	stored.UpdatedAt = now
	if state == job.StateFailed {
		stored.FinishedAt = &now
	}

	j.State = stored.State
	j.RunAt = stored.RunAt
	j.LastError = stored.LastError
	return state, nil
}

func (q *MemoryQueue) Get(_ context.Context, id string) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

func (q *MemoryQueue) Counts(_ context.Context, jobType job.Type) (map[job.State]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[job.State]int64, len(job.States()))
	for _, state := range job.States() {
		counts[state] = 0
	}
	for _, j := range q.jobs {
		if j.Type == jobType {
			counts[j.State]++
		}
	}
	return counts, nil
}

func (q *MemoryQueue) RecoverStalled(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var recovered int64
	for _, j := range q.jobs {
		if j.State != job.StateActive || j.LockedUntil == nil || j.LockedUntil.After(now) {
			continue
		}
		j.LockedUntil = nil
		j.UpdatedAt = now
		if j.AttemptsMade >= j.Options.Retry.MaxAttempts {
			j.State = job.StateFailed
			j.LastError = "job stalled more than allowable limit"
			j.FinishedAt = &now
		} else {
			j.State = job.StateWaiting
			j.RunAt = now
		}
		recovered++
	}
	if recovered > 0 {
		q.log.Warn().Int64("count", recovered).Msg("recovered stalled jobs")
	}
	return recovered, nil
}

func (q *MemoryQueue) PruneCompleted(_ context.Context, olderThan time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pruned int64
	for id, j := range q.jobs {
		if j.State == job.StateCompleted && j.FinishedAt != nil && j.FinishedAt.Before(olderThan) {
			q.remove(id)
			pruned++
		}
	}
	return pruned, nil
}

// remove must be called with mu held.
func (q *MemoryQueue) remove(id string) {
	delete(q.jobs, id)
	for i, candidate := range q.order {
		if candidate == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}
