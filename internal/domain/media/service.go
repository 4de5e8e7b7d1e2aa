package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/domain/notification"
	"github.com/janhq/transcription-api/internal/utils/idgen"
	"github.com/janhq/transcription-api/internal/utils/platformerrors"
)

// AllowedContentTypes are the upload formats the transcription service accepts.
var AllowedContentTypes = []string{
	"audio/mpeg",
	"audio/wav",
	"audio/x-wav",
	"video/mp4",
	"audio/mp4",
	"audio/x-m4a",
}

const sniffLen = 3072

// ServiceConfig tunes the orchestration service.
type ServiceConfig struct {
	MaxUploadBytes       int64
	TranscriptionOptions job.Options
	SummarizationOptions job.Options
}

// Service orchestrates uploads, stage transitions and job submission.
type Service struct {
	cfg      ServiceConfig
	repo     Repository
	storage  Storage
	queue    Enqueuer
	locker   Locker
	notifier notification.Emitter
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(
	cfg ServiceConfig,
	repo Repository,
	storage Storage,
	queue Enqueuer,
	locker Locker,
	notifier notification.Emitter,
	log zerolog.Logger,
) *Service {
	if notifier == nil {
		notifier = notification.Nop
	}
	return &Service{
		cfg:      cfg,
		repo:     repo,
		storage:  storage,
		queue:    queue,
		locker:   locker,
		notifier: notifier,
		log:      log.With().Str("component", "media-service").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UploadInput describes an incoming file.
type UploadInput struct {
	OwnerID     string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Upload validates and stores a file, then creates its record in the ready state.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Record, error) {
	if in.Size == 0 || in.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "No file uploaded", nil, "")
	}
	if in.Size > s.cfg.MaxUploadBytes {
		return nil, s.tooLarge(ctx)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to read upload", err, "")
	}
	head = head[:n]
	if n == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "No file uploaded", nil, "")
	}

	contentType, ok := detectContentType(head, in.ContentType)
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"Invalid file type. Only mp3, wav, mp4 and m4a files are allowed", nil, "")
	}

	id := idgen.NewMediaID()
	original := filepath.Base(strings.ReplaceAll(in.Filename, "\\", "/"))
	filename := id + strings.ToLower(filepath.Ext(original))
	key := path.Join("media", safeSegment(in.OwnerID), filename)

	body := &countingReader{r: io.LimitReader(io.MultiReader(bytes.NewReader(head), in.Body), s.cfg.MaxUploadBytes+1)}
	if err := s.storage.Upload(ctx, key, body, in.Size, contentType); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to store file", err, "")
	}
	if body.n > s.cfg.MaxUploadBytes {
		s.removeFile(ctx, key)
		return nil, s.tooLarge(ctx)
	}

	now := s.now()
	record := &Record{
		ID:               id,
		OwnerID:          in.OwnerID,
		StoragePath:      key,
		Filename:         filename,
		OriginalFilename: original,
		ContentType:      contentType,
		Size:             body.n,
		UploadedAt:       now,
		Status:           StatusReady,
		Progress:         0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.removeFile(ctx, key)
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to save file record")
	}

	s.log.Info().
		Str("file_id", id).
		Str("owner_id", in.OwnerID).
		Str("content_type", contentType).
		Int64("bytes", body.n).
		Msg("file uploaded")

	return record, nil
}

// List returns the owner's records, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Record, error) {
	records, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list files")
	}
	return records, nil
}

// Get returns a record the caller owns.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Record, error) {
	return s.owned(ctx, ownerID, id, "view this file")
}

// DeleteResult reports what Delete removed.
type DeleteResult struct {
	FileDeleted bool
}

// Delete removes the record, and the stored file when it still exists.
func (s *Service) Delete(ctx context.Context, ownerID, id string) (*DeleteResult, error) {
	record, err := s.owned(ctx, ownerID, id, "delete this file")
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{FileDeleted: true}
	if err := s.storage.Delete(ctx, record.StoragePath); err != nil {
		result.FileDeleted = false
		event := s.log.Warn().Err(err).Str("file_id", id).Str("path", record.StoragePath)
		if errors.Is(err, fs.ErrNotExist) {
			event.Msg("stored file already missing")
		} else {
			event.Msg("failed to delete stored file")
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete file record")
	}

	s.log.Info().Str("file_id", id).Bool("file_deleted", result.FileDeleted).Msg("file deleted")
	return result, nil
}

// StatusChange is a caller-requested write to the transcription stage.
type StatusChange struct {
	Status          string
	Progress        *int
	ErrorMessage    *string
	TranscribedText *string
}

// UpdateStatus applies a manual status change after checking the transition.
func (s *Service) UpdateStatus(ctx context.Context, ownerID, id string, change StatusChange) (*Record, error) {
	target := Status(change.Status)
	if !target.IsValid() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "Invalid status value", nil, "")
	}
	if change.Progress != nil && (*change.Progress < 0 || *change.Progress > 100) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "Progress must be between 0 and 100", nil, "")
	}
	if target == StatusCompleted && (change.TranscribedText == nil || *change.TranscribedText == "") {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "transcribedText is required when status is completed", nil, "")
	}

	release, err := s.lock(ctx, id, job.TypeTranscription)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := s.owned(ctx, ownerID, id, "update this file")
	if err != nil {
		return nil, err
	}
	if !record.Status.CanTransitionTo(target) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
			fmt.Sprintf("Cannot change status from %s to %s", record.Status, target), ErrInvalidTransition, "")
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusUpdate{
		Status:          target,
		Progress:        change.Progress,
		ErrorMessage:    change.ErrorMessage,
		TranscribedText: change.TranscribedText,
	})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update file status")
	}
	if updated == nil {
		return nil, s.notFound(ctx)
	}

	s.notifier.EmitToOwner(ctx, ownerID, FileStatusEvent(updated))
	return updated, nil
}

// Transcribe marks the record processing and submits a transcription job.
// A record that is already processing or completed is rejected.
func (s *Service) Transcribe(ctx context.Context, ownerID, id string) (*Record, error) {
	release, err := s.lock(ctx, id, job.TypeTranscription)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := s.owned(ctx, ownerID, id, "transcribe this file")
	if err != nil {
		return nil, err
	}
	if err := CheckTranscribable(record); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, err.Error(), err, "")
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusUpdate{Status: StatusProcessing, Progress: Ptr(0)})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update file status")
	}
	if updated == nil {
		return nil, s.notFound(ctx)
	}

	payload := job.TranscriptionPayload{
		RecordID:         id,
		OwnerID:          record.OwnerID,
		StoragePath:      record.StoragePath,
		OriginalFilename: record.OriginalFilename,
	}
	queued, err := s.queue.Enqueue(ctx, job.TypeTranscription, id, record.OwnerID, payload, s.cfg.TranscriptionOptions)
	if err != nil {
		s.log.Error().Err(err).Str("file_id", id).Msg("enqueue transcription failed, reverting status")
		if _, revertErr := s.repo.UpdateStatus(ctx, id, StatusUpdate{
			Status:       record.Status,
			Progress:     Ptr(record.Progress),
			ErrorMessage: record.ErrorMessage,
		}); revertErr != nil {
			s.log.Error().Err(revertErr).Str("file_id", id).Msg("failed to revert file status")
		}
		return nil, s.queueUnavailable(ctx, err)
	}

	s.log.Info().Str("file_id", id).Str("job_id", queued.ID).Msg("transcription started")
	s.notifier.EmitToOwner(ctx, record.OwnerID, FileStatusEvent(updated))
	return updated, nil
}

// Summarize marks the summary processing and submits a summarization job.
func (s *Service) Summarize(ctx context.Context, ownerID, id string) (*Record, error) {
	release, err := s.lock(ctx, id, job.TypeSummarization)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := s.owned(ctx, ownerID, id, "summarize this file")
	if err != nil {
		return nil, err
	}
	if err := CheckSummarizable(record); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, err.Error(), err, "")
	}

	updated, err := s.repo.UpdateSummary(ctx, id, SummaryUpdate{Status: SummaryProcessing})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update summary status")
	}
	if updated == nil {
		return nil, s.notFound(ctx)
	}

	payload := job.SummarizationPayload{RecordID: id, OwnerID: record.OwnerID}
	queued, err := s.queue.Enqueue(ctx, job.TypeSummarization, id, record.OwnerID, payload, s.cfg.SummarizationOptions)
	if err != nil {
		s.log.Error().Err(err).Str("file_id", id).Msg("enqueue summarization failed, reverting status")
		if _, revertErr := s.repo.UpdateSummary(ctx, id, SummaryUpdate{
			Status:       record.SummaryStatus,
			Text:         record.SummaryText,
			ErrorMessage: record.SummaryErrorMessage,
		}); revertErr != nil {
			s.log.Error().Err(revertErr).Str("file_id", id).Msg("failed to revert summary status")
		}
		return nil, s.queueUnavailable(ctx, err)
	}

	s.log.Info().Str("file_id", id).Str("job_id", queued.ID).Msg("summarization started")
	s.notifier.EmitToOwner(ctx, record.OwnerID, SummaryStatusEvent(updated))
	return updated, nil
}

// TranscriptionView is what callers see of the transcription stage.
type TranscriptionView struct {
	FileID           string
	OriginalFilename string
	Status           Status
	Progress         int
	Message          string
	Text             *string
}

// Transcription reports the transcription stage, including the text once completed.
func (s *Service) Transcription(ctx context.Context, ownerID, id string) (*TranscriptionView, error) {
	record, err := s.owned(ctx, ownerID, id, "view this transcription")
	if err != nil {
		return nil, err
	}

	view := &TranscriptionView{
		FileID:           record.ID,
		OriginalFilename: record.OriginalFilename,
		Status:           record.Status,
		Progress:         record.Progress,
	}
	switch record.Status {
	case StatusCompleted:
		if !record.HasTranscript() {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "Transcription text not available", nil, "")
		}
		view.Text = record.TranscribedText
	case StatusProcessing:
		view.Message = "Transcription is in progress"
	case StatusError:
		view.Message = "Transcription failed"
		if record.ErrorMessage != nil && *record.ErrorMessage != "" {
			view.Message = *record.ErrorMessage
		}
	default:
		view.Message = "Transcription has not been started yet"
	}
	return view, nil
}

// SummaryView is what callers see of the summarization stage.
type SummaryView struct {
	FileID           string
	OriginalFilename string
	Status           SummaryStatus
	Message          string
	Text             *string
}

// Summary reports the summarization stage, including the text once completed.
func (s *Service) Summary(ctx context.Context, ownerID, id string) (*SummaryView, error) {
	record, err := s.owned(ctx, ownerID, id, "view this summary")
	if err != nil {
		return nil, err
	}

	view := &SummaryView{
		FileID:           record.ID,
		OriginalFilename: record.OriginalFilename,
		Status:           record.SummaryStatus,
	}
	switch record.SummaryStatus {
	case SummaryCompleted:
		if record.SummaryText == nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "Summary text not available", nil, "")
		}
		view.Text = record.SummaryText
	case SummaryProcessing:
		view.Message = "Summarization is in progress"
	case SummaryError:
		view.Message = "Summarization failed"
		if record.SummaryErrorMessage != nil && *record.SummaryErrorMessage != "" {
			view.Message = *record.SummaryErrorMessage
		}
	default:
		view.Message = "Summarization has not been started yet"
	}
	return view, nil
}

func (s *Service) owned(ctx context.Context, ownerID, id, action string) (*Record, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load file")
	}
	if record == nil {
		return nil, s.notFound(ctx)
	}
	if record.OwnerID != ownerID {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"You do not have permission to "+action, nil, "")
	}
	return record, nil
}

func (s *Service) lock(ctx context.Context, id string, stage job.Type) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, fmt.Sprintf("media:%s:%s", id, stage))
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
			"Another request is already changing this file", err, "")
	}
	return release, nil
}

func (s *Service) removeFile(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn().Err(err).Str("path", key).Msg("failed to clean up stored file")
	}
}

func (s *Service) notFound(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "File not found", nil, "")
}

func (s *Service) tooLarge(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeTooLarge,
		fmt.Sprintf("File too large. Maximum size is %dMB", s.cfg.MaxUploadBytes>>20), nil, "")
}

func (s *Service) queueUnavailable(ctx context.Context, err error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnavailable,
		"Job queue is unavailable, please retry", fmt.Errorf("%w: %w", ErrQueueUnavailable, err), "")
}

// FileStatusEvent builds the fileStatusUpdate event for a record.
func FileStatusEvent(r *Record) notification.Event {
	return notification.NewFileStatus(notification.FileStatus{
		FileID:          r.ID,
		Status:          string(r.Status),
		Progress:        Ptr(r.Progress),
		ErrorMessage:    r.ErrorMessage,
		TranscribedText: r.TranscribedText,
	})
}

// SummaryStatusEvent builds the summaryStatusUpdate event for a record.
func SummaryStatusEvent(r *Record) notification.Event {
	return notification.NewSummaryStatus(notification.SummaryStatus{
		FileID:              r.ID,
		SummaryStatus:       string(r.SummaryStatus),
		SummaryText:         r.SummaryText,
		SummaryErrorMessage: r.SummaryErrorMessage,
		OriginalFilename:    r.OriginalFilename,
	})
}

// detectContentType sniffs the upload and falls back to the declared type
// only when the bytes are not recognized at all.
func detectContentType(head []byte, declared string) (string, bool) {
	detected := mimetype.Detect(head)
	for _, allowed := range AllowedContentTypes {
		if detected.Is(allowed) {
			return allowed, true
		}
	}

	if !detected.Is("application/octet-stream") {
		return "", false
	}
	parsed, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", false
	}
	for _, allowed := range AllowedContentTypes {
		if parsed == allowed {
			return allowed, true
		}
	}
	return "", false
}

func safeSegment(v string) string {
	v = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.TrimSpace(v))
	if v == "" {
		return "anonymous"
	}
	return v
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
