package media

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/janhq/transcription-api/internal/domain/media"
	"github.com/janhq/transcription-api/internal/infrastructure/database/entities"
	"github.com/janhq/transcription-api/internal/utils/platformerrors"
)

// PostgresRepository persists records in the media_files table.
type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, record *domain.Record) error {
	entity := toEntity(record)
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		if isUniqueViolation(err) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"media file already exists", err, "")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabase,
			"failed to create media file", err, "")
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*domain.Record, error) {
	var entity entities.MediaFile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabase,
			"failed to get media file", err, "")
	}
	return toDomain(entity), nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Record, error) {
	var rows []entities.MediaFile
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("uploaded_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabase,
			"failed to list media files", err, "")
	}

	out := make([]*domain.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomain(row))
	}
	return out, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) (*domain.Record, error) {
	return r.mutate(ctx, id, func(record *domain.Record, now time.Time) bool {
		return record.ApplyStatus(update, now)
	})
}

func (r *PostgresRepository) UpdateProgress(ctx context.Context, id string, progress int) (*domain.Record, error) {
	return r.mutate(ctx, id, func(record *domain.Record, now time.Time) bool {
		return record.ApplyProgress(progress, now)
	})
}

func (r *PostgresRepository) UpdateSummary(ctx context.Context, id string, update domain.SummaryUpdate) (*domain.Record, error) {
	return r.mutate(ctx, id, func(record *domain.Record, now time.Time) bool {
		record.ApplySummary(update, now)
		return true
	})
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entities.MediaFile{}).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabase,
			"failed to delete media file", err, "")
	}
	return nil
}

// mutate loads the row under a row lock, applies fn and writes back the stage
// fields when fn reports a change. A missing row yields (nil, nil).
func (r *PostgresRepository) mutate(ctx context.Context, id string, fn func(*domain.Record, time.Time) bool) (*domain.Record, error) {
	var result *domain.Record

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entity entities.MediaFile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&entity).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		record := toDomain(entity)
		if !fn(record, time.Now().UTC()) {
			result = record
			return nil
		}

		updated := toEntity(record)
		if err := tx.Model(&entities.MediaFile{}).Where("id = ?", id).Updates(map[string]any{
			"status":                updated.Status,
			"progress":              updated.Progress,
			"error_message":         updated.ErrorMessage,
			"transcribed_text":      updated.TranscribedText,
			"summary_status":        updated.SummaryStatus,
			"summary_text":          updated.SummaryText,
			"summary_error_message": updated.SummaryErrorMessage,
			"updated_at":            record.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabase,
			"failed to update media file", err, "")
	}
	return result, nil
}

func toEntity(record *domain.Record) entities.MediaFile {
	var summaryStatus *string
	if record.SummaryStatus != domain.SummaryNone {
		s := string(record.SummaryStatus)
		summaryStatus = &s
	}
	return entities.MediaFile{
		ID:                  record.ID,
		OwnerID:             record.OwnerID,
		StoragePath:         record.StoragePath,
		Filename:            record.Filename,
		OriginalFilename:    record.OriginalFilename,
		ContentType:         record.ContentType,
		Size:                record.Size,
		UploadedAt:          record.UploadedAt,
		Status:              string(record.Status),
		Progress:            record.Progress,
		ErrorMessage:        record.ErrorMessage,
		TranscribedText:     record.TranscribedText,
		SummaryStatus:       summaryStatus,
		SummaryText:         record.SummaryText,
		SummaryErrorMessage: record.SummaryErrorMessage,
		CreatedAt:           record.CreatedAt,
		UpdatedAt:           record.UpdatedAt,
	}
}

func toDomain(entity entities.MediaFile) *domain.Record {
	record := &domain.Record{
		ID:                  entity.ID,
		OwnerID:             entity.OwnerID,
		StoragePath:         entity.StoragePath,
		Filename:            entity.Filename,
		OriginalFilename:    entity.OriginalFilename,
		ContentType:         entity.ContentType,
		Size:                entity.Size,
		UploadedAt:          entity.UploadedAt,
		Status:              domain.Status(entity.Status),
		Progress:            entity.Progress,
		ErrorMessage:        entity.ErrorMessage,
		TranscribedText:     entity.TranscribedText,
		SummaryText:         entity.SummaryText,
		SummaryErrorMessage: entity.SummaryErrorMessage,
		CreatedAt:           entity.CreatedAt,
		UpdatedAt:           entity.UpdatedAt,
	}
	if entity.SummaryStatus != nil {
		record.SummaryStatus = domain.SummaryStatus(*entity.SummaryStatus)
	}
	return record
}
