package entities

import "time"

// MediaFile is the persisted form of a media record.
type MediaFile struct {
	ID                  string    `gorm:"type:varchar(40);primaryKey"`
	OwnerID             string    `gorm:"type:varchar(128);not null;index:idx_media_files_owner_uploaded,priority:1"`
	StoragePath         string    `gorm:"type:varchar(512);not null"`
	Filename            string    `gorm:"type:varchar(255);not null"`
	OriginalFilename    string    `gorm:"type:varchar(255);not null"`
	ContentType         string    `gorm:"type:varchar(64);not null"`
	Size                int64     `gorm:"not null"`
	UploadedAt          time.Time `gorm:"not null;index:idx_media_files_owner_uploaded,priority:2,sort:desc"`
	Status              string    `gorm:"type:varchar(16);not null;default:ready"`
	Progress            int       `gorm:"not null;default:0"`
	ErrorMessage        *string   `gorm:"type:text"`
	TranscribedText     *string   `gorm:"type:text"`
	SummaryStatus       *string   `gorm:"type:varchar(16)"`
	SummaryText         *string   `gorm:"type:text"`
	SummaryErrorMessage *string   `gorm:"type:text"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (MediaFile) TableName() string {
	return "media_files"
}
