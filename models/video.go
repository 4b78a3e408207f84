package models

import (
	"github.com/google/uuid"
)

type Video struct {
	Base
	UserID           uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	OriginalFilename string    `gorm:"not null" json:"original_filename"`
	StoragePath      string    `gorm:"not null;uniqueIndex" json:"storage_path"`
	ContentType      string    `gorm:"not null" json:"content_type"`
	SizeBytes        int64     `gorm:"not null" json:"size_bytes"`
}

func (Video) TableName() string {
	return "videos"
}
