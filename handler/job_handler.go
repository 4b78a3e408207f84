package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/echo-labs/echo/middleware"
	"github.com/echo-labs/echo/models"
	"github.com/echo-labs/echo/service"
)

type JobHandler struct {
	videos service.VideoService
	logger *logrus.Logger
}

func NewJobHandler(videos service.VideoService, logger *logrus.Logger) *JobHandler {
	return &JobHandler{videos: videos, logger: logger}
}

// ListJobs handles GET /api/jobs?status=PENDING,PROCESSING. An unrecognized
// status value is a 400, not silently ignored.
func (h *JobHandler) ListJobs(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var statuses []models.JobStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := models.ParseJobStatus(strings.TrimSpace(part))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			statuses = append(statuses, status)
		}
	}

	jobs, err := h.videos.ListJobs(userID, statuses)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetJob handles GET /api/jobs/:id — the composite status snapshot.
func (h *JobHandler) GetJob(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.videos.GetJob(jobID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// RequestProcessing handles POST /api/jobs/:id/process — the explicit
// start/retry entry point.
func (h *JobHandler) RequestProcessing(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if err := h.videos.RequestProcessing(c.Request.Context(), jobID, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "job queued for processing"})
}

// PublishJob handles POST /api/jobs/:id/publish.
func (h *JobHandler) PublishJob(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	record, err := h.videos.PublishJob(c.Request.Context(), jobID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
