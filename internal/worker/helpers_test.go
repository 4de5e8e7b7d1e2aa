package worker

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/janhq/transcription-api/internal/domain/media"
	"github.com/janhq/transcription-api/internal/domain/notification"
	mediarepo "github.com/janhq/transcription-api/internal/infrastructure/repository/media"
	"github.com/janhq/transcription-api/internal/infrastructure/storage"
)

type recordedEvent struct {
	owner string
	event notification.Event
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) EmitToOwner(_ context.Context, ownerID string, ev notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{owner: ownerID, event: ev})
}

func (r *eventRecorder) all() []notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.Event, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.event)
	}
	return out
}

func (r *eventRecorder) last() notification.Event {
	all := r.all()
	return all[len(all)-1]
}

type fixture struct {
	repo    *mediarepo.MemoryRepository
	storage *storage.LocalStorage
	events  *eventRecorder
	record  *media.Record
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewLocalStorage(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Upload(ctx, "media/user-1/med_1.mp3", bytes.NewReader([]byte("ID3 fake audio")), 14, "audio/mpeg"))

	repo := mediarepo.NewMemoryRepository()
	now := time.Now().UTC()
	record := &media.Record{
		ID:               "med_1",
		OwnerID:          "user-1",
		StoragePath:      "media/user-1/med_1.mp3",
		Filename:         "med_1.mp3",
		OriginalFilename: "meeting.mp3",
		ContentType:      "audio/mpeg",
		Size:             14,
		UploadedAt:       now,
		Status:           media.StatusReady,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, repo.Create(ctx, record))

	return &fixture{repo: repo, storage: store, events: &eventRecorder{}, record: record}
}

func (f *fixture) load(t *testing.T) *media.Record {
	t.Helper()
	record, err := f.repo.FindByID(context.Background(), f.record.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record
}

func (f *fixture) markTranscribed(t *testing.T, text string) {
	t.Helper()
	_, err := f.repo.UpdateStatus(context.Background(), f.record.ID, media.StatusUpdate{
		Status:          media.StatusCompleted,
		TranscribedText: media.Ptr(text),
	})
	require.NoError(t, err)
}
