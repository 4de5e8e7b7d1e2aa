package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/domain/retry"
	"github.com/janhq/transcription-api/internal/infrastructure/database/entities"
	"github.com/janhq/transcription-api/internal/utils/idgen"
)

// PostgresQueue implements Queue on the jobs table. Workers in any number of
// processes claim rows with FOR UPDATE SKIP LOCKED.
type PostgresQueue struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

// NewPostgresQueue creates a new PostgreSQL-backed job queue.
func NewPostgresQueue(db *gorm.DB, log zerolog.Logger) *PostgresQueue {
	return &PostgresQueue{
		db:  db,
		log: log.With().Str("component", "postgres-queue").Logger(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, jobType job.Type, recordID, ownerID string, payload any, opts job.Options) (*job.Job, error) {
	j, err := newJob(idgen.NewJobID(), jobType, recordID, ownerID, payload, opts, q.now())
	if err != nil {
		return nil, err
	}

	entity := toEntity(j)
	if err := q.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	return j, nil
}

// Reserve fetches the next ready job using FOR UPDATE SKIP LOCKED.
func (q *PostgresQueue) Reserve(ctx context.Context, jobType job.Type, lease time.Duration) (*job.Job, error) {
	var reserved *job.Job

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := q.now()

		var entity entities.Job
		err := tx.Raw(
			`SELECT * FROM jobs
			 WHERE type = ? AND state IN (?, ?) AND run_at <= ?
			 ORDER BY run_at ASC, created_at ASC
			 LIMIT 1 FOR UPDATE SKIP LOCKED`,
			string(jobType), string(job.StateWaiting), string(job.StateDelayed), now,
		).Scan(&entity).Error
		if err != nil {
			return err
		}
		if entity.ID == "" {
			return nil // No jobs available
		}

		// Postgres keeps microseconds; the lease is compared again in Complete and Fail.
		lockedUntil := now.Add(lease).Truncate(time.Microsecond)
		if err := tx.Model(&entities.Job{}).Where("id = ?", entity.ID).Updates(map[string]any{
			"state":         string(job.StateActive),
			"attempts_made": gorm.Expr("attempts_made + 1"),
			"locked_until":  lockedUntil,
			"started_at":    now,
			"updated_at":    now,
		}).Error; err != nil {
			return err
		}

		entity.State = string(job.StateActive)
		entity.AttemptsMade++
		entity.LockedUntil = &lockedUntil
		entity.StartedAt = &now
		entity.UpdatedAt = now
		reserved = toDomain(entity)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reserve %s job: %w", jobType, err)
	}
	return reserved, nil
}

// leased scopes a write to the row while j still holds the lease it was reserved with.
func leased(db *gorm.DB, j *job.Job) *gorm.DB {
	db = db.Where("id = ? AND state = ?", j.ID, string(job.StateActive))
	if j.LockedUntil != nil {
		db = db.Where("locked_until = ?", *j.LockedUntil)
	}
	return db
}

func (q *PostgresQueue) Complete(ctx context.Context, j *job.Job) error {
	db := q.db.WithContext(ctx)
	if j.Options.RemoveOnComplete {
		result := leased(db, j).Delete(&entities.Job{})
		if result.Error != nil {
			return fmt.Errorf("remove completed job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrLeaseLost
		}
		return nil
	}

	now := q.now()
	result := leased(db.Model(&entities.Job{}), j).Updates(map[string]any{
		"state":        string(job.StateCompleted),
		"locked_until": nil,
		"finished_at":  now,
		"updated_at":   now,
	})
	if result.Error != nil {
		return fmt.Errorf("mark completed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (q *PostgresQueue) Fail(ctx context.Context, j *job.Job, cause error) (job.State, error) {
	now := q.now()
	state, runAt := failureOutcome(j, cause, now)
	db := q.db.WithContext(ctx)

	if state == job.StateFailed && j.Options.RemoveOnFail {
		result := leased(db, j).Delete(&entities.Job{})
		if result.Error != nil {
			return "", fmt.Errorf("remove failed job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return "", ErrLeaseLost
		}
		return state, nil
	}

	updates := map[string]any{
		"state":        string(state),
		"run_at":       runAt,
		"last_error":   errorText(cause),
		"locked_until": nil,
		"updated_at":   now,
	}
	if state == job.StateFailed {
		updates["finished_at"] = now
	}

	result := leased(db.Model(&entities.Job{}), j).Updates(updates)
	if result.Error != nil {
		return "", fmt.Errorf("mark failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", ErrLeaseLost
	}

	j.State = state
	j.RunAt = runAt
	j.LastError = errorText(cause)
	return state, nil
}

func (q *PostgresQueue) Get(ctx context.Context, id string) (*job.Job, error) {
	var entity entities.Job
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return toDomain(entity), nil
}

func (q *PostgresQueue) Counts(ctx context.Context, jobType job.Type) (map[job.State]int64, error) {
	var rows []struct {
		State string
		Count int64
	}
	err := q.db.WithContext(ctx).
		Model(&entities.Job{}).
		Select("state, COUNT(*) AS count").
		Where("type = ?", string(jobType)).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count %s jobs: %w", jobType, err)
	}

	counts := make(map[job.State]int64, len(job.States()))
	for _, state := range job.States() {
		counts[state] = 0
	}
	for _, row := range rows {
		counts[job.State(row.State)] = row.Count
	}
	return counts, nil
}

func (q *PostgresQueue) RecoverStalled(ctx context.Context) (int64, error) {
	now := q.now()
	var recovered int64

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exhausted := tx.Model(&entities.Job{}).
			Where("state = ? AND locked_until < ? AND attempts_made >= max_attempts", string(job.StateActive), now).
			Updates(map[string]any{
				"state":        string(job.StateFailed),
				"last_error":   "job stalled more than allowable limit",
				"locked_until": nil,
				"finished_at":  now,
				"updated_at":   now,
			})
		if exhausted.Error != nil {
			return exhausted.Error
		}

		requeued := tx.Model(&entities.Job{}).
			Where("state = ? AND locked_until < ?", string(job.StateActive), now).
			Updates(map[string]any{
				"state":        string(job.StateWaiting),
				"run_at":       now,
				"locked_until": nil,
				"updated_at":   now,
			})
		if requeued.Error != nil {
			return requeued.Error
		}

		recovered = exhausted.RowsAffected + requeued.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recover stalled jobs: %w", err)
	}
	if recovered > 0 {
		q.log.Warn().Int64("count", recovered).Msg("recovered stalled jobs")
	}
	return recovered, nil
}

func (q *PostgresQueue) PruneCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	result := q.db.WithContext(ctx).
		Where("state = ? AND finished_at < ?", string(job.StateCompleted), olderThan).
		Delete(&entities.Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune completed jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func toEntity(j *job.Job) entities.Job {
	var lastError *string
	if j.LastError != "" {
		lastError = &j.LastError
	}
	return entities.Job{
		ID:                j.ID,
		Type:              string(j.Type),
		RecordID:          j.RecordID,
		OwnerID:           j.OwnerID,
		Payload:           datatypes.JSON(j.Payload),
		State:             string(j.State),
		AttemptsMade:      j.AttemptsMade,
		MaxAttempts:       j.Options.Retry.MaxAttempts,
		BackoffStrategy:   string(j.Options.Retry.BackoffStrategy),
		BackoffDelayMS:    j.Options.Retry.InitialDelay.Milliseconds(),
		BackoffMaxDelayMS: j.Options.Retry.MaxDelay.Milliseconds(),
		RemoveOnComplete:  j.Options.RemoveOnComplete,
		RemoveOnFail:      j.Options.RemoveOnFail,
		LastError:         lastError,
		RunAt:             j.RunAt,
		LockedUntil:       j.LockedUntil,
		StartedAt:         j.StartedAt,
		FinishedAt:        j.FinishedAt,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}

func toDomain(entity entities.Job) *job.Job {
	j := &job.Job{
		ID:       entity.ID,
		Type:     job.Type(entity.Type),
		RecordID: entity.RecordID,
		OwnerID:  entity.OwnerID,
		Payload:  []byte(entity.Payload),
		Options: job.Options{
			Retry: retry.Policy{
				MaxAttempts:     entity.MaxAttempts,
				InitialDelay:    time.Duration(entity.BackoffDelayMS) * time.Millisecond,
				MaxDelay:        time.Duration(entity.BackoffMaxDelayMS) * time.Millisecond,
				BackoffStrategy: retry.BackoffType(entity.BackoffStrategy),
			},
			RemoveOnComplete: entity.RemoveOnComplete,
			RemoveOnFail:     entity.RemoveOnFail,
		},
		State:        job.State(entity.State),
		AttemptsMade: entity.AttemptsMade,
		RunAt:        entity.RunAt,
		LockedUntil:  entity.LockedUntil,
		StartedAt:    entity.StartedAt,
		FinishedAt:   entity.FinishedAt,
		CreatedAt:    entity.CreatedAt,
		UpdatedAt:    entity.UpdatedAt,
	}
	if entity.LastError != nil {
		j.LastError = *entity.LastError
	}
	return j
}
