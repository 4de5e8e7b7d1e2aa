package media

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	domain "github.com/janhq/transcription-api/internal/domain/media"
)

func TestEntityMappingRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	record := &domain.Record{
		ID:               "med_1",
		OwnerID:          "u1",
		StoragePath:      "media/u1/med_1.mp3",
		Filename:         "med_1.mp3",
		OriginalFilename: "talk.mp3",
		ContentType:      "audio/mpeg",
		Size:             42,
		UploadedAt:       now,
		Status:           domain.StatusCompleted,
		Progress:         100,
		TranscribedText:  domain.Ptr("hello"),
		SummaryStatus:    domain.SummaryCompleted,
		SummaryText:      domain.Ptr("hi"),
	}

	entity := toEntity(record)
	assert.Equal(t, "completed", *entity.SummaryStatus)

	back := toDomain(entity)
	assert.Equal(t, record, back)
}

func TestEntityMappingWithoutSummary(t *testing.T) {
	entity := toEntity(&domain.Record{ID: "med_1", Status: domain.StatusReady})
	assert.Nil(t, entity.SummaryStatus)
	assert.Equal(t, domain.SummaryNone, toDomain(entity).SummaryStatus)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("connection reset")))
}
