package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/echo-labs/echo/models"
)

type VideoRepository interface {
	BaseRepository[models.Video]
	CreateVideo(userID uuid.UUID, filename, storagePath, contentType string, sizeBytes int64) (*models.Video, error)
	GetByUserID(userID uuid.UUID, limit, offset int) ([]*models.Video, error)
	GetForUser(id, userID uuid.UUID) (*models.Video, error)
	CountByUserID(userID uuid.UUID) (int64, error)
}

type VideoRepositoryImpl struct {
	*BaseRepositoryImpl[models.Video]
}

func NewVideoRepository(db *gorm.DB) VideoRepository {
	return &VideoRepositoryImpl{
		BaseRepositoryImpl: NewBaseRepository[models.Video](db),
	}
}

// CreateVideo records an uploaded video. The storage path carries a unique
// index, so a second upload to the same path surfaces as ErrConflict.
func (r *VideoRepositoryImpl) CreateVideo(userID uuid.UUID, filename, storagePath, contentType string, sizeBytes int64) (*models.Video, error) {
	video := &models.Video{
		UserID:           userID,
		OriginalFilename: filename,
		StoragePath:      storagePath,
		ContentType:      contentType,
		SizeBytes:        sizeBytes,
	}
	if err := r.db.Create(video).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("storage path %q already recorded: %w", storagePath, models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to save video record: %w", err)
	}
	return video, nil
}

func (r *VideoRepositoryImpl) GetByUserID(userID uuid.UUID, limit, offset int) ([]*models.Video, error) {
	var videos []*models.Video
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&videos).Error
	if err != nil {
		return nil, err
	}
	return videos, nil
}

func (r *VideoRepositoryImpl) GetForUser(id, userID uuid.UUID) (*models.Video, error) {
	var video models.Video
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&video).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &video, nil
}

func (r *VideoRepositoryImpl) CountByUserID(userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&models.Video{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
