package media

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/janhq/transcription-api/internal/domain/media"
	"github.com/janhq/transcription-api/internal/utils/platformerrors"
)

func seed(t *testing.T, repo *MemoryRepository, id, owner string, uploaded time.Time) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &domain.Record{
		ID:         id,
		OwnerID:    owner,
		Status:     domain.StatusReady,
		UploadedAt: uploaded,
	}))
}

func TestMemoryRepositoryMissingRecordIsNil(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	got, err := repo.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	updated, err := repo.UpdateStatus(ctx, "missing", domain.StatusUpdate{Status: domain.StatusProcessing})
	require.NoError(t, err)
	assert.Nil(t, updated)

	updated, err = repo.UpdateProgress(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Nil(t, updated)

	updated, err = repo.UpdateSummary(ctx, "missing", domain.SummaryUpdate{Status: domain.SummaryProcessing})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	seed(t, repo, "med_1", "u1", time.Now())

	got, err := repo.FindByID(context.Background(), "med_1")
	require.NoError(t, err)
	got.Status = domain.StatusError

	again, err := repo.FindByID(context.Background(), "med_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, again.Status)
}

func TestMemoryRepositoryListByOwnerNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Now()
	seed(t, repo, "med_a", "u1", base)
	seed(t, repo, "med_b", "u1", base.Add(time.Minute))
	seed(t, repo, "med_c", "u2", base.Add(2*time.Minute))

	list, err := repo.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "med_b", list[0].ID)
	assert.Equal(t, "med_a", list[1].ID)
}

func TestMemoryRepositoryProgressNeverRegresses(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seed(t, repo, "med_1", "u1", time.Now())

	_, err := repo.UpdateStatus(ctx, "med_1", domain.StatusUpdate{Status: domain.StatusProcessing, Progress: domain.Ptr(5)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 10; p <= 85; p += 5 {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, _ = repo.UpdateProgress(ctx, "med_1", p)
		}(p)
	}
	wg.Wait()

	got, err := repo.FindByID(ctx, "med_1")
	require.NoError(t, err)
	assert.Equal(t, 85, got.Progress)

	stale, err := repo.UpdateProgress(ctx, "med_1", 40)
	require.NoError(t, err)
	assert.Equal(t, 85, stale.Progress)
}

func TestMemoryRepositoryProgressIgnoredAfterCompletion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seed(t, repo, "med_1", "u1", time.Now())

	_, err := repo.UpdateStatus(ctx, "med_1", domain.StatusUpdate{Status: domain.StatusCompleted, TranscribedText: domain.Ptr("done")})
	require.NoError(t, err)

	got, err := repo.UpdateProgress(ctx, "med_1", 90)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
}

func TestMemoryRepositoryNeverRewritesCompletedRecord(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seed(t, repo, "med_1", "u1", time.Now())

	_, err := repo.UpdateStatus(ctx, "med_1", domain.StatusUpdate{Status: domain.StatusCompleted, TranscribedText: domain.Ptr("original transcript")})
	require.NoError(t, err)
	_, err = repo.UpdateSummary(ctx, "med_1", domain.SummaryUpdate{Status: domain.SummaryCompleted, Text: domain.Ptr("summary")})
	require.NoError(t, err)

	got, err := repo.UpdateStatus(ctx, "med_1", domain.StatusUpdate{Status: domain.StatusError, ErrorMessage: domain.Ptr("Service unavailable")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "original transcript", *got.TranscribedText)
	assert.Equal(t, "summary", *got.SummaryText)
	assert.Nil(t, got.ErrorMessage)
}

func TestMemoryRepositoryDelete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seed(t, repo, "med_1", "u1", time.Now())

	require.NoError(t, repo.Delete(ctx, "med_1"))
	require.NoError(t, repo.Delete(ctx, "med_1"))

	got, err := repo.FindByID(ctx, "med_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRepositoryRejectsDuplicateID(t *testing.T) {
	repo := NewMemoryRepository()
	seed(t, repo, "med_1", "u1", time.Now())

	err := repo.Create(context.Background(), &domain.Record{ID: "med_1", OwnerID: "u2"})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))

	got, err := repo.FindByID(context.Background(), "med_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)
}
