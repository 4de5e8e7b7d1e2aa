package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/janhq/transcription-api/internal/config"
	domain "github.com/janhq/transcription-api/internal/domain/media"
	"github.com/janhq/transcription-api/internal/infrastructure/auth"
	"github.com/janhq/transcription-api/internal/infrastructure/metrics"
	"github.com/janhq/transcription-api/internal/interfaces/httpserver/requests"
	"github.com/janhq/transcription-api/internal/interfaces/httpserver/responses"
	"github.com/janhq/transcription-api/internal/utils/platformerrors"
)

// MediaService is the slice of the media domain the HTTP layer needs.
type MediaService interface {
	Upload(ctx context.Context, in domain.UploadInput) (*domain.Record, error)
	List(ctx context.Context, ownerID string) ([]*domain.Record, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Record, error)
	Delete(ctx context.Context, ownerID, id string) (*domain.DeleteResult, error)
	UpdateStatus(ctx context.Context, ownerID, id string, change domain.StatusChange) (*domain.Record, error)
	Transcribe(ctx context.Context, ownerID, id string) (*domain.Record, error)
	Summarize(ctx context.Context, ownerID, id string) (*domain.Record, error)
	Transcription(ctx context.Context, ownerID, id string) (*domain.TranscriptionView, error)
	Summary(ctx context.Context, ownerID, id string) (*domain.SummaryView, error)
}

// MediaHandler serves the /v1/media endpoints.
type MediaHandler struct {
	cfg      *config.Config
	service  MediaService
	validate *validator.Validate
	log      zerolog.Logger
}

func NewMediaHandler(cfg *config.Config, service MediaService, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		cfg:      cfg,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With().Str("handler", "media").Logger(),
	}
}

// Upload stores a multipart "file" and creates its record.
func (h *MediaHandler) Upload(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	// Leave room for the multipart envelope around the file part.
	limit := h.cfg.MaxMediaBytes + (1 << 20)
	if c.Request.ContentLength > limit {
		h.rejectTooLarge(c)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectTooLarge(c)
			return
		}
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "No file uploaded")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		responses.HandleError(c, err, "failed to read upload")
		return
	}
	defer file.Close()

	record, err := h.service.Upload(c.Request.Context(), domain.UploadInput{
		OwnerID:     ownerID,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		metrics.RecordUpload(declaredType(fileHeader.Header.Get("Content-Type")), "rejected", 0)
		responses.HandleError(c, err, "failed to upload file")
		return
	}
	metrics.RecordUpload(record.ContentType, "success", record.Size)

	c.JSON(http.StatusCreated, responses.FileResponse{
		Message: "File uploaded successfully",
		File:    responses.NewRecordPayload(record),
	})
}

func (h *MediaHandler) List(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	records, err := h.service.List(c.Request.Context(), ownerID)
	if err != nil {
		responses.HandleError(c, err, "failed to list files")
		return
	}
	c.JSON(http.StatusOK, responses.NewFileListResponse(records))
}

func (h *MediaHandler) Get(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	record, err := h.service.Get(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get file")
		return
	}
	c.JSON(http.StatusOK, responses.FileResponse{File: responses.NewRecordPayload(record)})
}

func (h *MediaHandler) Delete(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	result, err := h.service.Delete(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to delete file")
		return
	}
	c.JSON(http.StatusOK, responses.DeleteResponse{
		Message:     "File deleted successfully",
		FileDeleted: result.FileDeleted,
	})
}

// UpdateStatus is the manual status-update boundary.
func (h *MediaHandler) UpdateStatus(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req requests.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, statusValidationMessage(err))
		return
	}

	record, err := h.service.UpdateStatus(c.Request.Context(), ownerID, c.Param("id"), domain.StatusChange{
		Status:          req.Status,
		Progress:        req.Progress,
		ErrorMessage:    req.ErrorMessage,
		TranscribedText: req.TranscribedText,
	})
	if err != nil {
		responses.HandleError(c, err, "failed to update file status")
		return
	}
	c.JSON(http.StatusOK, responses.FileResponse{
		Message: "File status updated successfully",
		File:    responses.NewRecordPayload(record),
	})
}

func (h *MediaHandler) Transcribe(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	record, err := h.service.Transcribe(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to start transcription")
		return
	}
	c.JSON(http.StatusOK, responses.FileResponse{
		Message: "Transcription started",
		File:    responses.NewRecordPayload(record),
	})
}

func (h *MediaHandler) Transcription(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	view, err := h.service.Transcription(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get transcription")
		return
	}
	c.JSON(http.StatusOK, responses.NewTranscriptionResponse(view))
}

func (h *MediaHandler) Summarize(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	record, err := h.service.Summarize(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to start summarization")
		return
	}
	c.JSON(http.StatusOK, responses.FileResponse{
		Message: "Summarization started",
		File:    responses.NewRecordPayload(record),
	})
}

func (h *MediaHandler) Summary(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}
	view, err := h.service.Summary(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get summary")
		return
	}
	c.JSON(http.StatusOK, responses.NewSummaryResponse(view))
}

func statusValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "Progress":
			return "Progress must be between 0 and 100"
		case "ErrorMessage":
			return "errorMessage is too long"
		}
	}
	return "Invalid status value"
}

func (h *MediaHandler) rejectTooLarge(c *gin.Context) {
	metrics.RecordUpload("other", "rejected", 0)
	responses.HandleNewError(c, platformerrors.ErrorTypeTooLarge,
		fmt.Sprintf("File too large. Maximum size is %dMB", h.cfg.MaxMediaBytes>>20))
}

func requireOwner(c *gin.Context) (string, bool) {
	ownerID, ok := auth.OwnerID(c)
	if !ok {
		responses.HandleNewError(c, platformerrors.ErrorTypeUnauthorized, "Authentication required")
		return "", false
	}
	return ownerID, true
}

// declaredType bounds the metric label to the accepted formats.
func declaredType(contentType string) string {
	for _, allowed := range domain.AllowedContentTypes {
		if contentType == allowed {
			return allowed
		}
	}
	return "other"
}
