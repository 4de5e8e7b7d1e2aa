package media_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/domain/media"
	"github.com/janhq/transcription-api/internal/domain/notification"
	"github.com/janhq/transcription-api/internal/infrastructure/lock"
	"github.com/janhq/transcription-api/internal/infrastructure/queue"
	mediarepo "github.com/janhq/transcription-api/internal/infrastructure/repository/media"
	"github.com/janhq/transcription-api/internal/infrastructure/storage"
	"github.com/janhq/transcription-api/internal/utils/platformerrors"
)

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, job.Type, string, string, any, job.Options) (*job.Job, error) {
	return nil, errors.New("connection refused")
}

type captured struct {
	mu     sync.Mutex
	events []notification.Event
}

func (c *captured) EmitToOwner(_ context.Context, _ string, ev notification.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

type harness struct {
	svc     *media.Service
	repo    *mediarepo.MemoryRepository
	queue   *queue.MemoryQueue
	storage *storage.LocalStorage
	events  *captured
}

func newHarness(t *testing.T, enqueuer media.Enqueuer) *harness {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	h := &harness{
		repo:    mediarepo.NewMemoryRepository(),
		queue:   queue.NewMemoryQueue(zerolog.Nop()),
		storage: store,
		events:  &captured{},
	}
	if enqueuer == nil {
		enqueuer = h.queue
	}
	h.svc = media.NewService(media.ServiceConfig{
		MaxUploadBytes:       1 << 20,
		TranscriptionOptions: job.DefaultOptions(),
		SummarizationOptions: job.DefaultOptions(),
	}, h.repo, store, enqueuer, lock.NewLocalLocker(), h.events, zerolog.Nop())
	return h
}

var mp3Bytes = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 64)...)

func (h *harness) upload(t *testing.T, owner string) *media.Record {
	t.Helper()
	record, err := h.svc.Upload(context.Background(), media.UploadInput{
		OwnerID:     owner,
		Filename:    "meeting.MP3",
		ContentType: "audio/mpeg",
		Size:        int64(len(mp3Bytes)),
		Body:        bytes.NewReader(mp3Bytes),
	})
	require.NoError(t, err)
	return record
}

func errorType(t *testing.T, err error) platformerrors.ErrorType {
	t.Helper()
	pe := platformerrors.GetPlatformError(err)
	require.NotNil(t, pe, "expected a platform error, got %v", err)
	return pe.Type
}

func TestUploadCreatesReadyRecord(t *testing.T) {
	h := newHarness(t, nil)
	record := h.upload(t, "user-1")

	assert.Equal(t, media.StatusReady, record.Status)
	assert.Equal(t, 0, record.Progress)
	assert.Equal(t, "audio/mpeg", record.ContentType)
	assert.Equal(t, "meeting.MP3", record.OriginalFilename)
	assert.Equal(t, record.ID+".mp3", record.Filename)
	assert.Equal(t, "media/user-1/"+record.ID+".mp3", record.StoragePath)
	assert.Equal(t, int64(len(mp3Bytes)), record.Size)

	rc, _, err := h.storage.Download(context.Background(), record.StoragePath)
	require.NoError(t, err)
	_ = rc.Close()
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.Upload(ctx, media.UploadInput{OwnerID: "u", Filename: "a.mp3"})
	assert.Equal(t, platformerrors.ErrorTypeValidation, errorType(t, err))

	text := []byte("just some plain text, definitely not audio")
	_, err = h.svc.Upload(ctx, media.UploadInput{OwnerID: "u", Filename: "a.mp3", ContentType: "audio/mpeg", Size: int64(len(text)), Body: bytes.NewReader(text)})
	assert.Equal(t, platformerrors.ErrorTypeValidation, errorType(t, err))

	_, err = h.svc.Upload(ctx, media.UploadInput{OwnerID: "u", Filename: "a.mp3", Size: 2 << 20, Body: bytes.NewReader(mp3Bytes)})
	assert.Equal(t, platformerrors.ErrorTypeTooLarge, errorType(t, err))
	assert.Contains(t, platformerrors.GetPlatformError(err).Message, "Maximum size is 1MB")
}

func TestUploadEnforcesLimitOnUnderstatedSize(t *testing.T) {
	h := newHarness(t, nil)
	big := append(append([]byte{}, mp3Bytes...), bytes.Repeat([]byte{0}, 1<<20)...)

	_, err := h.svc.Upload(context.Background(), media.UploadInput{
		OwnerID: "u", Filename: "a.mp3", Size: 10, Body: bytes.NewReader(big),
	})
	assert.Equal(t, platformerrors.ErrorTypeTooLarge, errorType(t, err))

	records, err := h.svc.List(context.Background(), "u")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOwnershipChecks(t *testing.T) {
	h := newHarness(t, nil)
	record := h.upload(t, "user-1")
	ctx := context.Background()

	_, err := h.svc.Get(ctx, "user-2", record.ID)
	assert.Equal(t, platformerrors.ErrorTypeForbidden, errorType(t, err))
	assert.Equal(t, "You do not have permission to view this file", platformerrors.GetPlatformError(err).Message)

	_, err = h.svc.Get(ctx, "user-1", "med_missing")
	assert.Equal(t, platformerrors.ErrorTypeNotFound, errorType(t, err))

	_, err = h.svc.Transcribe(ctx, "user-2", record.ID)
	assert.Equal(t, platformerrors.ErrorTypeForbidden, errorType(t, err))
}

func TestTranscribeMarksProcessingAndEnqueues(t *testing.T) {
	h := newHarness(t, nil)
	record := h.upload(t, "user-1")
	ctx := context.Background()

	updated, err := h.svc.Transcribe(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusProcessing, updated.Status)
	assert.Equal(t, 0, updated.Progress)

	counts, err := h.queue.Counts(ctx, job.TypeTranscription)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[job.StateWaiting])

	reserved, err := h.queue.Reserve(ctx, job.TypeTranscription, time.Minute)
	require.NoError(t, err)
	var payload job.TranscriptionPayload
	require.NoError(t, reserved.Decode(&payload))
	assert.Equal(t, record.ID, payload.RecordID)
	assert.Equal(t, "user-1", payload.OwnerID)
	assert.Equal(t, record.StoragePath, payload.StoragePath)

	require.Len(t, h.events.events, 1)
	assert.Equal(t, "processing", h.events.events[0].FileStatus.Status)

	_, err = h.svc.Transcribe(ctx, "user-1", record.ID)
	assert.Equal(t, platformerrors.ErrorTypeValidation, errorType(t, err))
	assert.ErrorIs(t, err, media.ErrAlreadyProcessing)
}

func TestTranscribeRejectsCompleted(t *testing.T) {
	h := newHarness(t, nil)
	record := h.upload(t, "user-1")
	_, err := h.repo.UpdateStatus(context.Background(), record.ID, media.StatusUpdate{Status: media.StatusCompleted, TranscribedText: media.Ptr("done")})
	require.NoError(t, err)

	_, err = h.svc.Transcribe(context.Background(), "user-1", record.ID)
	assert.ErrorIs(t, err, media.ErrAlreadyTranscribed)
}

func TestTranscribeRevertsWhenQueueUnavailable(t *testing.T) {
	h := newHarness(t, failingQueue{})
	record := h.upload(t, "user-1")
	ctx := context.Background()

	_, err := h.svc.Transcribe(ctx, "user-1", record.ID)
	assert.Equal(t, platformerrors.ErrorTypeUnavailable, errorType(t, err))
	assert.ErrorIs(t, err, media.ErrQueueUnavailable)

	stored, err := h.repo.FindByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, media.StatusReady, stored.Status)
	assert.Empty(t, h.events.events)
}

func TestConcurrentTranscribeEnqueuesOnce(t *testing.T) {
	h := newHarness(t, nil)
	record := h.upload(t, "user-1")
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.Transcribe(ctx, "user-1", record.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	counts, err := h.queue.Counts(ctx, job.TypeTranscription)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[job.StateWaiting])
}

func TestSummarizeGuards(t *testing.T) {
	h := newHarness(t, nil)
	record := h.upload(t, "user-1")
	ctx := context.Background()

	_, err := h.svc.Summarize(ctx, "user-1", record.ID)
	assert.ErrorIs(t, err, media.ErrNotTranscribed)
	assert.Equal(t, platformerrors.ErrorTypeValidation, errorType(t, err))

	_, err = h.repo.UpdateStatus(ctx, record.ID, media.StatusUpdate{Status: media.StatusCompleted, TranscribedText: media.Ptr("transcript")})
	require.NoError(t, err)

	updated, err := h.svc.Summarize(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, media.SummaryProcessing, updated.SummaryStatus)

	_, err = h.svc.Summarize(ctx, "user-1", record.ID)
	assert.ErrorIs(t, err, media.ErrAlreadySummarizing)

	counts, err := h.queue.Counts(ctx, job.TypeSummarization)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[job.StateWaiting])
}

func TestSummarizeRevertsWhenQueueUnavailable(t *testing.T) {
	h := newHarness(t, failingQueue{})
	record := h.upload(t, "user-1")
	ctx := context.Background()
	_, err := h.repo.UpdateStatus(ctx, record.ID, media.StatusUpdate{Status: media.StatusCompleted, TranscribedText: media.Ptr("transcript")})
	require.NoError(t, err)

	_, err = h.svc.Summarize(ctx, "user-1", record.ID)
	assert.Equal(t, platformerrors.ErrorTypeUnavailable, errorType(t, err))

	stored, err := h.repo.FindByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, media.SummaryNone, stored.SummaryStatus)
}

func TestUpdateStatus(t *testing.T) {
	h := newHarness(t, nil)
	record := h.upload(t, "user-1")
	ctx := context.Background()

	_, err := h.svc.UpdateStatus(ctx, "user-1", record.ID, media.StatusChange{Status: "bogus"})
	assert.Equal(t, platformerrors.ErrorTypeValidation, errorType(t, err))
	assert.Equal(t, "Invalid status value", platformerrors.GetPlatformError(err).Message)

	_, err = h.svc.UpdateStatus(ctx, "user-1", record.ID, media.StatusChange{Status: "processing", Progress: media.Ptr(101)})
	assert.Equal(t, platformerrors.ErrorTypeValidation, errorType(t, err))

	_, err = h.svc.UpdateStatus(ctx, "user-1", record.ID, media.StatusChange{Status: "completed"})
	assert.Equal(t, platformerrors.ErrorTypeValidation, errorType(t, err))

	updated, err := h.svc.UpdateStatus(ctx, "user-1", record.ID, media.StatusChange{Status: "processing", Progress: media.Ptr(40)})
	require.NoError(t, err)
	assert.Equal(t, 40, updated.Progress)

	updated, err = h.svc.UpdateStatus(ctx, "user-1", record.ID, media.StatusChange{Status: "completed", TranscribedText: media.Ptr("text")})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)

	_, err = h.svc.UpdateStatus(ctx, "user-1", record.ID, media.StatusChange{Status: "processing"})
	assert.Equal(t, platformerrors.ErrorTypeConflict, errorType(t, err))
	assert.ErrorIs(t, err, media.ErrInvalidTransition)

	require.Len(t, h.events.events, 2)
	assert.Equal(t, "completed", h.events.events[1].FileStatus.Status)
}

func TestTranscriptionAndSummaryViews(t *testing.T) {
	h := newHarness(t, nil)
	record := h.upload(t, "user-1")
	ctx := context.Background()

	view, err := h.svc.Transcription(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Transcription has not been started yet", view.Message)
	assert.Nil(t, view.Text)

	_, err = h.repo.UpdateStatus(ctx, record.ID, media.StatusUpdate{Status: media.StatusProcessing, Progress: media.Ptr(30)})
	require.NoError(t, err)
	view, err = h.svc.Transcription(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Transcription is in progress", view.Message)
	assert.Equal(t, 30, view.Progress)

	_, err = h.repo.UpdateStatus(ctx, record.ID, media.StatusUpdate{Status: media.StatusError, ErrorMessage: media.Ptr("Service unavailable")})
	require.NoError(t, err)
	view, err = h.svc.Transcription(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Service unavailable", view.Message)

	empty := h.upload(t, "user-1")
	_, err = h.repo.UpdateStatus(ctx, empty.ID, media.StatusUpdate{Status: media.StatusCompleted})
	require.NoError(t, err)
	_, err = h.svc.Transcription(ctx, "user-1", empty.ID)
	assert.Equal(t, platformerrors.ErrorTypeInternal, errorType(t, err))

	_, err = h.repo.UpdateStatus(ctx, record.ID, media.StatusUpdate{Status: media.StatusCompleted, TranscribedText: media.Ptr("hello")})
	require.NoError(t, err)
	view, err = h.svc.Transcription(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", *view.Text)

	summary, err := h.svc.Summary(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summarization has not been started yet", summary.Message)

	_, err = h.repo.UpdateSummary(ctx, record.ID, media.SummaryUpdate{Status: media.SummaryCompleted, Text: media.Ptr("short")})
	require.NoError(t, err)
	summary, err = h.svc.Summary(ctx, "user-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, "short", *summary.Text)
}

func TestDeleteReportsMissingFile(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first := h.upload(t, "user-1")
	result, err := h.svc.Delete(ctx, "user-1", first.ID)
	require.NoError(t, err)
	assert.True(t, result.FileDeleted)

	second := h.upload(t, "user-1")
	require.NoError(t, h.storage.Delete(ctx, second.StoragePath))
	result, err = h.svc.Delete(ctx, "user-1", second.ID)
	require.NoError(t, err)
	assert.False(t, result.FileDeleted)

	_, err = h.svc.Get(ctx, "user-1", second.ID)
	assert.Equal(t, platformerrors.ErrorTypeNotFound, errorType(t, err))
}
