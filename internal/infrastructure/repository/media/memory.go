package media

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/janhq/transcription-api/internal/domain/media"
	"github.com/janhq/transcription-api/internal/utils/platformerrors"
)

// MemoryRepository keeps records in process memory. It backs single-process
// deployments and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.Record
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*domain.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(ctx context.Context, record *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.ID]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"media file already exists", nil, "")
	}
	r.records[record.ID] = record.Clone()
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[id].Clone(), nil
}

func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Record, 0)
	for _, record := range r.records {
		if record.OwnerID == ownerID {
			out = append(out, record.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id string, update domain.StatusUpdate) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	record.ApplyStatus(update, r.now())
	return record.Clone(), nil
}

func (r *MemoryRepository) UpdateProgress(_ context.Context, id string, progress int) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	record.ApplyProgress(progress, r.now())
	return record.Clone(), nil
}

func (r *MemoryRepository) UpdateSummary(_ context.Context, id string, update domain.SummaryUpdate) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	record.ApplySummary(update, r.now())
	return record.Clone(), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}
