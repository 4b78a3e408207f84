package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// VideoMetadata holds everything the pipeline produced for one job. Every
// field is independently optional: stages run independently and a partial run
// persists whatever it managed to compute.
type VideoMetadata struct {
	Base
	JobID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"job_id"`

	Title       *string        `gorm:"type:text" json:"title,omitempty"`
	Description *string        `gorm:"type:text" json:"description,omitempty"`
	Tags        datatypes.JSON `gorm:"type:jsonb" json:"tags,omitempty"`
	Chapters    datatypes.JSON `gorm:"type:jsonb" json:"chapters,omitempty"`

	Transcript    *string        `gorm:"type:text" json:"transcript,omitempty"`
	TranscriptRef *string        `gorm:"type:text" json:"transcript_ref,omitempty"`
	SubtitleRefs  datatypes.JSON `gorm:"type:jsonb" json:"subtitle_refs,omitempty"`
	ThumbnailRef  *string        `gorm:"type:text" json:"thumbnail_ref,omitempty"`

	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Resolution      *string  `gorm:"type:varchar(32)" json:"resolution,omitempty"`
	Format          *string  `gorm:"type:varchar(64)" json:"format,omitempty"`

	ShowNotes *string `gorm:"type:text" json:"show_notes,omitempty"`
}

func (VideoMetadata) TableName() string {
	return "video_metadata"
}

// Chapter is one entry of the Chapters document.
type Chapter struct {
	Title        string  `json:"title"`
	StartSeconds float64 `json:"start_seconds"`
}
