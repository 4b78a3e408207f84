package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/echo-labs/echo/middleware"
	"github.com/echo-labs/echo/models"
	"github.com/echo-labs/echo/service"
)

type VideoHandler struct {
	videos service.VideoService
	logger *logrus.Logger
}

func NewVideoHandler(videos service.VideoService, logger *logrus.Logger) *VideoHandler {
	return &VideoHandler{videos: videos, logger: logger}
}

// UploadVideo handles POST /api/videos (multipart field "video").
func (h *VideoHandler) UploadVideo(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	fileHeader, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video file is required", "detail": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.WithError(err).Error("failed to read upload body")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	video, job, err := h.videos.Upload(c.Request.Context(), userID, fileHeader.Filename, contentType, data)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "video uploaded and queued for processing",
		"video_id": video.ID,
		"job_id":   job.ID,
	})
}

// ListVideos handles GET /api/videos?page=&page_size=.
func (h *VideoHandler) ListVideos(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	videos, total, err := h.videos.ListVideos(userID, page, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos, "total": total})
}

// GetVideoURL handles GET /api/videos/:id/url.
func (h *VideoHandler) GetVideoURL(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	url, err := h.videos.GetVideoURL(c.Request.Context(), userID, videoID, time.Hour)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in_seconds": 3600})
}

// DeleteVideo handles DELETE /api/videos/:id.
func (h *VideoHandler) DeleteVideo(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	if err := h.videos.DeleteVideo(c.Request.Context(), userID, videoID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "video deleted"})
}

// respondError maps the error taxonomy onto HTTP statuses. Internal detail
// goes to the logs, never into the response body.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidState):
		logger.WithError(err).Error("invariant violation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		logger.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
