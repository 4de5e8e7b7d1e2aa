package media

import (
	"context"
	"io"

	"github.com/janhq/transcription-api/internal/domain/job"
)

// Repository persists media records. Lookups and updates of an unknown id
// return (nil, nil); callers decide whether that matters.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	FindByID(ctx context.Context, id string) (*Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Record, error)
	// UpdateStatus never rewrites a completed record; it returns it unchanged.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*Record, error)
	// UpdateProgress only moves progress forward while the record is processing.
	// An ignored write returns the current record unchanged.
	UpdateProgress(ctx context.Context, id string, progress int) (*Record, error)
	UpdateSummary(ctx context.Context, id string, update SummaryUpdate) (*Record, error)
	Delete(ctx context.Context, id string) error
}

// Storage holds the uploaded bytes. Delete of a missing key returns an error
// matching fs.ErrNotExist.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// Enqueuer accepts background jobs. A nil error means the job is durably recorded.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType job.Type, recordID, ownerID string, payload any, opts job.Options) (*job.Job, error)
}

// Locker serializes work on one key, across processes when backed by Redis.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
