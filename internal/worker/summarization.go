package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/domain/media"
	"github.com/janhq/transcription-api/internal/domain/notification"
	"github.com/janhq/transcription-api/internal/domain/retry"
)

// Summarizer condenses a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// SummarizationHandler executes summarization jobs.
type SummarizationHandler struct {
	repo        media.Repository
	client      Summarizer
	notifier    notification.Emitter
	callTimeout time.Duration
	log         zerolog.Logger
}

var _ job.Handler = (*SummarizationHandler)(nil)

func NewSummarizationHandler(
	repo media.Repository,
	client Summarizer,
	notifier notification.Emitter,
	callTimeout time.Duration,
	log zerolog.Logger,
) *SummarizationHandler {
	if callTimeout <= 0 {
		callTimeout = 5 * time.Minute
	}
	return &SummarizationHandler{
		repo:        repo,
		client:      client,
		notifier:    notifier,
		callTimeout: callTimeout,
		log:         log.With().Str("component", "summarization-handler").Logger(),
	}
}

func (h *SummarizationHandler) Handle(ctx context.Context, j *job.Job) error {
	var payload job.SummarizationPayload
	if err := j.Decode(&payload); err != nil {
		return retry.Permanent(err)
	}
	if payload.RecordID == "" {
		payload.RecordID = j.RecordID
	}
	if payload.OwnerID == "" {
		payload.OwnerID = j.OwnerID
	}
	log := h.log.With().Str("record_id", payload.RecordID).Str("job_id", j.ID).Logger()

	record, err := h.repo.FindByID(ctx, payload.RecordID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if record == nil {
		return retry.Permanent(errors.New("File not found"))
	}
	if !record.HasTranscript() {
		return h.fail(ctx, payload.OwnerID, record.ID, retry.Permanent(errors.New("No transcribed text available")))
	}
	transcript := *record.TranscribedText

	record, err = h.repo.UpdateSummary(ctx, record.ID, media.SummaryUpdate{Status: media.SummaryProcessing})
	if err != nil {
		return fmt.Errorf("mark summary processing: %w", err)
	}
	if record == nil {
		return retry.Permanent(errors.New("File not found"))
	}
	h.notifier.EmitToOwner(ctx, payload.OwnerID, media.SummaryStatusEvent(record))

	callCtx, cancel := context.WithTimeout(ctx, h.callTimeout)
	summary, err := h.client.Summarize(callCtx, transcript)
	cancel()
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &timeoutError{stage: "Summarization", after: h.callTimeout, err: err}
		}
		log.Warn().Err(err).Msg("summarization call failed")
		return h.fail(ctx, payload.OwnerID, record.ID, err)
	}

	done, err := h.repo.UpdateSummary(context.WithoutCancel(ctx), record.ID, media.SummaryUpdate{
		Status: media.SummaryCompleted,
		Text:   media.Ptr(summary),
	})
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	if done == nil {
		log.Warn().Msg("record deleted while summarizing, skipping notification")
		return nil
	}
	h.notifier.EmitToOwner(ctx, payload.OwnerID, media.SummaryStatusEvent(done))

	log.Info().Int("chars", len(summary)).Msg("summarization completed")
	return nil
}

func (h *SummarizationHandler) fail(ctx context.Context, ownerID, recordID string, err error) error {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = "Summarization failed"
	}

	updated, updateErr := h.repo.UpdateSummary(context.WithoutCancel(ctx), recordID, media.SummaryUpdate{
		Status:       media.SummaryError,
		ErrorMessage: media.Ptr(message),
	})
	if updateErr != nil {
		h.log.Error().Err(updateErr).Str("record_id", recordID).Msg("failed to store summarization error")
	}
	if updated != nil {
		h.notifier.EmitToOwner(context.WithoutCancel(ctx), ownerID, media.SummaryStatusEvent(updated))
	}
	return err
}
