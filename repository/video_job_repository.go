package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/echo-labs/echo/models"
)

type VideoJobRepository interface {
	BaseRepository[models.VideoJob]
	CreateJob(videoID uuid.UUID) (*models.VideoJob, error)
	GetForUser(jobID, userID uuid.UUID) (*models.VideoJob, error)
	GetJobsForUser(userID uuid.UUID, statuses []models.JobStatus) ([]*models.VideoJob, error)
	TryTransition(jobID uuid.UUID, from, to models.JobStatus) (bool, error)
	UpdateStageProgress(jobID uuid.UUID, stage string, succeeded bool) error
	MarkTerminal(jobID uuid.UUID, status models.JobStatus, errorMessage string) error
}

type VideoJobRepositoryImpl struct {
	*BaseRepositoryImpl[models.VideoJob]
}

func NewVideoJobRepository(db *gorm.DB) VideoJobRepository {
	return &VideoJobRepositoryImpl{
		BaseRepositoryImpl: NewBaseRepository[models.VideoJob](db),
	}
}

func (r *VideoJobRepositoryImpl) CreateJob(videoID uuid.UUID) (*models.VideoJob, error) {
	job := &models.VideoJob{
		VideoID: videoID,
		Status:  models.JobStatusPending,
	}
	if err := r.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetForUser loads one job with its video and metadata, filtered by the owner
// of the underlying video. A job belonging to someone else is indistinguishable
// from a job that does not exist.
func (r *VideoJobRepositoryImpl) GetForUser(jobID, userID uuid.UUID) (*models.VideoJob, error) {
	var job models.VideoJob
	err := r.db.
		Joins("JOIN videos ON videos.id = video_jobs.video_id").
		Where("video_jobs.id = ? AND videos.user_id = ?", jobID, userID).
		Preload("Video").
		Preload("Metadata").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetJobsForUser is the polling query: jobs visible to the user with status in
// the given set, video and metadata eager-loaded in the same round trip.
func (r *VideoJobRepositoryImpl) GetJobsForUser(userID uuid.UUID, statuses []models.JobStatus) ([]*models.VideoJob, error) {
	query := r.db.
		Joins("JOIN videos ON videos.id = video_jobs.video_id").
		Where("videos.user_id = ?", userID)
	if len(statuses) > 0 {
		query = query.Where("video_jobs.status IN ?", statuses)
	}

	var jobs []*models.VideoJob
	err := query.
		Preload("Video").
		Preload("Metadata").
		Order("video_jobs.created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	return jobs, nil
}

// TryTransition applies "SET status=to WHERE id=? AND status=from" and reports
// whether a row changed. False means a concurrent actor already moved the job;
// this conditional write is the only locking mechanism in the pipeline.
func (r *VideoJobRepositoryImpl) TryTransition(jobID uuid.UUID, from, to models.JobStatus) (bool, error) {
	if !from.Valid() || !to.Valid() {
		return false, fmt.Errorf("%w: transition %s -> %s", models.ErrInvalidState, from, to)
	}
	res := r.db.Model(&models.VideoJob{}).
		Where("id = ? AND status = ?", jobID, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition job %s: %w", jobID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpdateStageProgress merges one stage flag into processing_stages. The jsonb
// concatenation keeps the write atomic and purely additive: prior keys are
// never removed.
func (r *VideoJobRepositoryImpl) UpdateStageProgress(jobID uuid.UUID, stage string, succeeded bool) error {
	patch, err := json.Marshal(map[string]bool{stage: succeeded})
	if err != nil {
		return err
	}
	res := r.db.Model(&models.VideoJob{}).
		Where("id = ?", jobID).
		Update("processing_stages",
			gorm.Expr("COALESCE(processing_stages, '{}'::jsonb) || ?::jsonb", string(patch)))
	if res.Error != nil {
		return fmt.Errorf("failed to update stage progress: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkTerminal writes the final status. ErrInvalidState on a job that is
// already terminal: terminal states are immutable without an external reset.
// The error message is coupled to the status here, not left to callers:
// FAILED requires one, COMPLETED clears it.
func (r *VideoJobRepositoryImpl) MarkTerminal(jobID uuid.UUID, status models.JobStatus, errorMessage string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", models.ErrInvalidState, status)
	}
	if status == models.JobStatusFailed && errorMessage == "" {
		return fmt.Errorf("%w: FAILED requires an error message", models.ErrInvalidState)
	}
	if status == models.JobStatusCompleted {
		errorMessage = ""
	}

	res := r.db.Model(&models.VideoJob{}).
		Where("id = ? AND status NOT IN ?", jobID,
			[]models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed}).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finalize job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&models.VideoJob{}).Where("id = ?", jobID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.ErrNotFound
		}
		return fmt.Errorf("%w: job %s is already terminal", models.ErrInvalidState, jobID)
	}
	return nil
}
