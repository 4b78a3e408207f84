package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/echo-labs/echo/models"
	"github.com/echo-labs/echo/publisher"
	"github.com/echo-labs/echo/queue"
	"github.com/echo-labs/echo/repository"
	"github.com/echo-labs/echo/storage"
)

type VideoService interface {
	Upload(ctx context.Context, userID uuid.UUID, filename, contentType string, data []byte) (*models.Video, *models.VideoJob, error)
	ListVideos(userID uuid.UUID, page, pageSize int) ([]*models.Video, int64, error)
	GetVideoURL(ctx context.Context, userID, videoID uuid.UUID, expiry time.Duration) (string, error)
	DeleteVideo(ctx context.Context, userID, videoID uuid.UUID) error

	ListJobs(userID uuid.UUID, statuses []models.JobStatus) ([]*models.VideoJob, error)
	GetJob(jobID, userID uuid.UUID) (*models.VideoJob, error)
	RequestProcessing(ctx context.Context, jobID, userID uuid.UUID) error
	PublishJob(ctx context.Context, jobID, userID uuid.UUID) (*models.PublishRecord, error)
}

type VideoServiceImpl struct {
	videos    repository.VideoRepository
	jobs      repository.VideoJobRepository
	metadata  repository.VideoMetadataRepository
	publishes repository.PublishRepository
	store     storage.BlobStore
	producer  queue.JobProducer
	publisher publisher.Publisher
	platform  string
	logger    *logrus.Logger
}

func NewVideoService(
	videos repository.VideoRepository,
	jobs repository.VideoJobRepository,
	metadata repository.VideoMetadataRepository,
	publishes repository.PublishRepository,
	store storage.BlobStore,
	producer queue.JobProducer,
	pub publisher.Publisher,
	platform string,
	logger *logrus.Logger,
) VideoService {
	return &VideoServiceImpl{
		videos:    videos,
		jobs:      jobs,
		metadata:  metadata,
		publishes: publishes,
		store:     store,
		producer:  producer,
		publisher: pub,
		platform:  platform,
		logger:    logger,
	}
}

// Upload persists the blob first, then the Video record, then a PENDING job,
// and finally hands the job id to the queue. A video record only ever exists
// for a blob that made it to storage.
func (s *VideoServiceImpl) Upload(ctx context.Context, userID uuid.UUID, filename, contentType string, data []byte) (*models.Video, *models.VideoJob, error) {
	ext := filepath.Ext(filename)
	storagePath := fmt.Sprintf("%s/videos/%s%s", userID, uuid.New(), ext)

	if _, err := s.store.Put(ctx, storagePath, data, contentType); err != nil {
		return nil, nil, fmt.Errorf("failed to store upload: %w", err)
	}

	video, err := s.videos.CreateVideo(userID, filename, storagePath, contentType, int64(len(data)))
	if err != nil {
		// Best effort: don't leave an orphaned blob behind a failed record.
		if rmErr := s.store.Remove(ctx, storagePath); rmErr != nil {
			s.logger.WithError(rmErr).Warn("failed to clean up orphaned upload")
		}
		return nil, nil, err
	}

	job, err := s.jobs.CreateJob(video.ID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.producer.EnqueueJob(ctx, job.ID); err != nil {
		// The job stays PENDING; an explicit process request can pick it up.
		s.logger.WithError(err).WithField("job_id", job.ID).Error("failed to enqueue job")
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"video_id": video.ID,
		"job_id":   job.ID,
		"size":     len(data),
	}).Info("video uploaded and queued")

	return video, job, nil
}

func (s *VideoServiceImpl) ListVideos(userID uuid.UUID, page, pageSize int) ([]*models.Video, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	total, err := s.videos.CountByUserID(userID)
	if err != nil {
		return nil, 0, err
	}
	videos, err := s.videos.GetByUserID(userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

func (s *VideoServiceImpl) GetVideoURL(ctx context.Context, userID, videoID uuid.UUID, expiry time.Duration) (string, error) {
	video, err := s.videos.GetForUser(videoID, userID)
	if err != nil {
		return "", err
	}
	return s.store.URLFor(ctx, video.StoragePath, expiry)
}

func (s *VideoServiceImpl) DeleteVideo(ctx context.Context, userID, videoID uuid.UUID) error {
	video, err := s.videos.GetForUser(videoID, userID)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, video.StoragePath); err != nil {
		return fmt.Errorf("failed to remove stored video: %w", err)
	}
	return s.videos.Delete(video.ID)
}

func (s *VideoServiceImpl) ListJobs(userID uuid.UUID, statuses []models.JobStatus) ([]*models.VideoJob, error) {
	return s.jobs.GetJobsForUser(userID, statuses)
}

func (s *VideoServiceImpl) GetJob(jobID, userID uuid.UUID) (*models.VideoJob, error) {
	return s.jobs.GetForUser(jobID, userID)
}

// RequestProcessing is the explicit start/retry entry. It only enqueues; the
// worker's conditional transition decides who actually runs the job, so a
// duplicate request is harmless there. Rejecting non-PENDING jobs here keeps
// the API response honest without racing the worker.
func (s *VideoServiceImpl) RequestProcessing(ctx context.Context, jobID, userID uuid.UUID) error {
	job, err := s.jobs.GetForUser(jobID, userID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, models.ErrConflict)
	}
	return s.producer.EnqueueJob(ctx, jobID)
}

// PublishJob is the downstream publishing step: only COMPLETED jobs with a
// title qualify. The external call's outcome lands in a PublishRecord either
// way.
func (s *VideoServiceImpl) PublishJob(ctx context.Context, jobID, userID uuid.UUID) (*models.PublishRecord, error) {
	job, err := s.jobs.GetForUser(jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("job %s is %s, only COMPLETED jobs can be published: %w", jobID, job.Status, models.ErrConflict)
	}
	if job.Metadata == nil || job.Metadata.Title == nil {
		return nil, fmt.Errorf("job %s has no generated title: %w", jobID, models.ErrConflict)
	}

	record, err := s.publishes.CreateRecord(jobID, s.platform)
	if err != nil {
		return nil, err
	}

	videoURL, err := s.store.URLFor(ctx, job.Video.StoragePath, time.Hour)
	if err != nil {
		s.failPublish(record, err)
		return record, nil
	}

	meta := publisher.VideoMeta{Title: *job.Metadata.Title}
	if job.Metadata.Description != nil {
		meta.Description = *job.Metadata.Description
	}
	if len(job.Metadata.Tags) > 0 {
		var tags []string
		if err := json.Unmarshal(job.Metadata.Tags, &tags); err == nil {
			meta.Tags = tags
		}
	}

	externalID, externalURL, err := s.publisher.Publish(ctx, videoURL, meta)
	if err != nil {
		s.failPublish(record, err)
		return record, nil
	}

	record.Status = models.PublishStatusCompleted
	record.ExternalVideoID = externalID
	record.ExternalURL = externalURL
	if err := s.publishes.UpdateResult(record.ID, record.Status, externalID, externalURL, ""); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":      jobID,
		"external_id": externalID,
	}).Info("video published")
	return record, nil
}

func (s *VideoServiceImpl) failPublish(record *models.PublishRecord, cause error) {
	s.logger.WithError(cause).WithField("job_id", record.JobID).Warn("publish failed")
	record.Status = models.PublishStatusFailed
	record.ErrorMessage = shortReason(cause)
	if err := s.publishes.UpdateResult(record.ID, record.Status, "", "", record.ErrorMessage); err != nil {
		s.logger.WithError(err).Error("failed to record publish failure")
	}
}
