package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/echo-labs/echo/handler"
	"github.com/echo-labs/echo/middleware"
	ginMetrics "github.com/echo-labs/echo/pkg/metrics/gin"
)

func Setup(videoHandler *handler.VideoHandler, jobHandler *handler.JobHandler, jwtSecret string) *gin.Engine {
	r := gin.Default()
	r.Use(ginMetrics.PrometheusMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	api := r.Group("/api")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		api.POST("/videos", videoHandler.UploadVideo)
		api.GET("/videos", videoHandler.ListVideos)
		api.GET("/videos/:id/url", videoHandler.GetVideoURL)
		api.DELETE("/videos/:id", videoHandler.DeleteVideo)

		api.GET("/jobs", jobHandler.ListJobs)
		api.GET("/jobs/:id", jobHandler.GetJob)
		api.POST("/jobs/:id/process", jobHandler.RequestProcessing)
		api.POST("/jobs/:id/publish", jobHandler.PublishJob)
	}

	return r
}
