package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobStatus is the closed set of job lifecycle states. Anything else coming off
// the wire or out of the database is a schema violation, not a fifth state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted without an
// explicit external reset.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func ParseJobStatus(raw string) (JobStatus, error) {
	s := JobStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unrecognized job status %q", raw)
	}
	return s, nil
}

// Pipeline stage names recorded in VideoJob.ProcessingStages.
const (
	StageExtraction   = "extraction"
	StageAIGeneration = "ai_generation"
)

// VideoJob is one execution attempt of the processing pipeline for a video.
// A video may accumulate several jobs over time (reprocessing); each job is
// mutated exclusively by the orchestrator.
type VideoJob struct {
	Base
	VideoID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"video_id"`
	Status           JobStatus      `gorm:"type:varchar(20);not null;index;default:'PENDING'" json:"status"`
	ProcessingStages datatypes.JSON `gorm:"type:jsonb" json:"processing_stages"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message,omitempty"`

	Video    Video          `gorm:"foreignKey:VideoID" json:"video,omitempty"`
	Metadata *VideoMetadata `gorm:"foreignKey:JobID" json:"metadata,omitempty"`
}

func (VideoJob) TableName() string {
	return "video_jobs"
}

// Stages decodes the processing_stages document. A missing document is an
// empty map: no stage has been attempted yet.
func (j *VideoJob) Stages() (map[string]bool, error) {
	stages := map[string]bool{}
	if len(j.ProcessingStages) == 0 {
		return stages, nil
	}
	if err := json.Unmarshal(j.ProcessingStages, &stages); err != nil {
		return nil, fmt.Errorf("decode processing_stages: %w", err)
	}
	return stages, nil
}
