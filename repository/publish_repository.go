package repository

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/echo-labs/echo/models"
)

type PublishRepository interface {
	BaseRepository[models.PublishRecord]
	CreateRecord(jobID uuid.UUID, platform string) (*models.PublishRecord, error)
	GetByJobID(jobID uuid.UUID, limit, offset int) ([]*models.PublishRecord, error)
	UpdateResult(id uuid.UUID, status models.PublishStatus, externalID, externalURL, errorMessage string) error
}

type PublishRepositoryImpl struct {
	*BaseRepositoryImpl[models.PublishRecord]
}

func NewPublishRepository(db *gorm.DB) PublishRepository {
	return &PublishRepositoryImpl{
		BaseRepositoryImpl: NewBaseRepository[models.PublishRecord](db),
	}
}

func (r *PublishRepositoryImpl) CreateRecord(jobID uuid.UUID, platform string) (*models.PublishRecord, error) {
	record := &models.PublishRecord{
		JobID:    jobID,
		Platform: platform,
		Status:   models.PublishStatusPending,
	}
	if err := r.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create publish record: %w", err)
	}
	return record, nil
}

func (r *PublishRepositoryImpl) GetByJobID(jobID uuid.UUID, limit, offset int) ([]*models.PublishRecord, error) {
	var records []*models.PublishRecord
	err := r.db.Where("job_id = ?", jobID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}

func (r *PublishRepositoryImpl) UpdateResult(id uuid.UUID, status models.PublishStatus, externalID, externalURL, errorMessage string) error {
	return r.db.Model(&models.PublishRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":            status,
		"external_video_id": externalID,
		"external_url":      externalURL,
		"error_message":     errorMessage,
	}).Error
}
