package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/domain/media"
	"github.com/janhq/transcription-api/internal/domain/notification"
	"github.com/janhq/transcription-api/internal/domain/retry"
)

// Progress checkpoints reported around the transcription call.
const (
	progressStarted     = 5
	progressTickStep    = 5
	progressTickCeiling = 85
)

var (
	preparationCheckpoints = []int{10, 15, 20, 25}
	finishingCheckpoints   = []int{90, 95}
)

// Transcriber converts media bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename, contentType string, media io.Reader) (string, error)
}

type TranscriptionConfig struct {
	CallTimeout  time.Duration
	TickInterval time.Duration
}

// TranscriptionHandler executes transcription jobs.
type TranscriptionHandler struct {
	repo     media.Repository
	storage  media.Storage
	client   Transcriber
	notifier notification.Emitter
	cfg      TranscriptionConfig
	log      zerolog.Logger
}

var _ job.Handler = (*TranscriptionHandler)(nil)

func NewTranscriptionHandler(
	repo media.Repository,
	storage media.Storage,
	client Transcriber,
	notifier notification.Emitter,
	cfg TranscriptionConfig,
	log zerolog.Logger,
) *TranscriptionHandler {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Minute
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	return &TranscriptionHandler{
		repo:     repo,
		storage:  storage,
		client:   client,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "transcription-handler").Logger(),
	}
}

func (h *TranscriptionHandler) Handle(ctx context.Context, j *job.Job) error {
	var payload job.TranscriptionPayload
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
	if record.Status == media.StatusCompleted {
		log.Info().Msg("record already transcribed, skipping redelivered job")
		return nil
	}

	record, err = h.repo.UpdateStatus(ctx, record.ID, media.StatusUpdate{
		Status:   media.StatusProcessing,
		Progress: media.Ptr(progressStarted),
	})
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if record == nil {
		return retry.Permanent(errors.New("File not found"))
	}
	if record.Status != media.StatusProcessing {
		log.Info().Str("status", string(record.Status)).Msg("record completed concurrently, skipping redelivered job")
		return nil
	}
	h.notifier.EmitToOwner(ctx, payload.OwnerID, media.FileStatusEvent(record))

	for _, checkpoint := range preparationCheckpoints {
		h.reportProgress(ctx, payload.OwnerID, record.ID, checkpoint)
	}

	storagePath := record.StoragePath
	if storagePath == "" {
		storagePath = payload.StoragePath
	}
	body, contentType, err := h.storage.Download(ctx, storagePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = retry.Permanent(fmt.Errorf("media file is missing from storage: %w", err))
		}
		return h.fail(ctx, payload.OwnerID, record.ID, err)
	}
	defer body.Close()
	if contentType == "" {
		contentType = record.ContentType
	}

	filename := record.OriginalFilename
	if filename == "" {
		filename = payload.OriginalFilename
	}

	ticker := startProgressTicker(ctx, h.cfg.TickInterval, preparationCheckpoints[len(preparationCheckpoints)-1],
		progressTickStep, progressTickCeiling, func(tickCtx context.Context, p int) {
			h.reportProgress(tickCtx, payload.OwnerID, record.ID, p)
		})

	callCtx, cancel := context.WithTimeout(ctx, h.cfg.CallTimeout)
	text, err := h.client.Transcribe(callCtx, filename, contentType, body)
	cancel()
	ticker.Stop()

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			// Worker shutdown; the job is requeued by stalled recovery.
			return err
		}
		log.Warn().Err(err).Msg("transcription call failed")
		return h.fail(ctx, payload.OwnerID, record.ID, h.describe(err))
	}

	for _, checkpoint := range finishingCheckpoints {
		h.reportProgress(ctx, payload.OwnerID, record.ID, checkpoint)
	}

	done, err := h.repo.UpdateStatus(context.WithoutCancel(ctx), record.ID, media.StatusUpdate{
		Status:          media.StatusCompleted,
		Progress:        media.Ptr(100),
		TranscribedText: media.Ptr(text),
	})
	if err != nil {
		return fmt.Errorf("store transcription: %w", err)
	}
	if done == nil {
		log.Warn().Msg("record deleted while transcribing, skipping notification")
		return nil
	}
	h.notifier.EmitToOwner(ctx, payload.OwnerID, media.FileStatusEvent(done))

	log.Info().Int("chars", len(text)).Msg("transcription completed")
	return nil
}

// reportProgress stores a checkpoint and notifies only when it was accepted.
func (h *TranscriptionHandler) reportProgress(ctx context.Context, ownerID, recordID string, progress int) {
	updated, err := h.repo.UpdateProgress(ctx, recordID, progress)
	if err != nil {
		h.log.Warn().Err(err).Str("record_id", recordID).Int("progress", progress).Msg("failed to store progress")
		return
	}
	if updated == nil || updated.Progress != progress || updated.Status != media.StatusProcessing {
		return
	}
	h.notifier.EmitToOwner(ctx, ownerID, notification.NewFileProgress(recordID, progress))
}

// fail records the error on the record, notifies and returns err for the queue.
func (h *TranscriptionHandler) fail(ctx context.Context, ownerID, recordID string, err error) error {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = "Transcription failed"
	}

	updated, updateErr := h.repo.UpdateStatus(context.WithoutCancel(ctx), recordID, media.StatusUpdate{
		Status:       media.StatusError,
		Progress:     media.Ptr(0),
		ErrorMessage: media.Ptr(message),
	})
	if updateErr != nil {
		h.log.Error().Err(updateErr).Str("record_id", recordID).Msg("failed to store transcription error")
	}
	if updated != nil && updated.Status == media.StatusError {
		h.notifier.EmitToOwner(context.WithoutCancel(ctx), ownerID, media.FileStatusEvent(updated))
	}
	return err
}

// describe rewrites a call timeout into a readable message and keeps everything else.
func (h *TranscriptionHandler) describe(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &timeoutError{stage: "Transcription", after: h.cfg.CallTimeout, err: err}
	}
	return err
}

type timeoutError struct {
	stage string
	after time.Duration
	err   error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.stage, e.after)
}

func (e *timeoutError) Unwrap() error { return e.err }
