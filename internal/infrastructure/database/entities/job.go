package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Job is a row of the jobs table backing the durable queue.
type Job struct {
	ID                string         `gorm:"type:varchar(40);primaryKey"`
	Type              string         `gorm:"type:varchar(32);not null;index:idx_jobs_ready,priority:1"`
	RecordID          string         `gorm:"type:varchar(40);not null;index"`
	OwnerID           string         `gorm:"type:varchar(128);not null"`
	Payload           datatypes.JSON `gorm:"type:jsonb;not null"`
	State             string         `gorm:"type:varchar(16);not null;index:idx_jobs_ready,priority:2"`
	AttemptsMade      int            `gorm:"not null;default:0"`
	MaxAttempts       int            `gorm:"not null"`
	BackoffStrategy   string         `gorm:"type:varchar(16);not null"`
	BackoffDelayMS    int64          `gorm:"column:backoff_delay_ms;not null"`
	BackoffMaxDelayMS int64          `gorm:"column:backoff_max_delay_ms;not null;default:0"`
	RemoveOnComplete  bool           `gorm:"not null;default:false"`
	RemoveOnFail      bool           `gorm:"not null;default:false"`
	LastError         *string        `gorm:"type:text"`
	RunAt             time.Time      `gorm:"not null;index:idx_jobs_ready,priority:3"`
	LockedUntil       *time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}
