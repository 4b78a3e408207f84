package models

import "github.com/google/uuid"

type PublishStatus string

const (
	PublishStatusPending   PublishStatus = "pending"
	PublishStatusCompleted PublishStatus = "completed"
	PublishStatusFailed    PublishStatus = "failed"
)

// PublishRecord tracks one attempt to push a processed video to an external
// platform. Publishing is a downstream step, never part of the core pipeline.
type PublishRecord struct {
	Base
	JobID           uuid.UUID     `gorm:"type:uuid;not null;index" json:"job_id"`
	Platform        string        `gorm:"type:varchar(50);not null" json:"platform"`
	ExternalVideoID string        `gorm:"type:varchar(255)" json:"external_video_id,omitempty"`
	ExternalURL     string        `gorm:"type:text" json:"external_url,omitempty"`
	Status          PublishStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ErrorMessage    string        `gorm:"type:text" json:"error_message,omitempty"`
}

func (PublishRecord) TableName() string {
	return "publish_records"
}
