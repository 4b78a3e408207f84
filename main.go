package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/echo-labs/echo/ai"
	"github.com/echo-labs/echo/config"
	"github.com/echo-labs/echo/database"
	"github.com/echo-labs/echo/handler"
	"github.com/echo-labs/echo/media"
	"github.com/echo-labs/echo/pkg/metrics"
	"github.com/echo-labs/echo/publisher"
	"github.com/echo-labs/echo/queue"
	"github.com/echo-labs/echo/repository"
	"github.com/echo-labs/echo/router"
	"github.com/echo-labs/echo/service"
	"github.com/echo-labs/echo/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	metrics.StartMetricsServer(cfg.Server.MetricsPort)
	logger.Infof("metrics server started on :%s", cfg.Server.MetricsPort)

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatalf("failed to init database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatalf("auto migrate failed: %v", err)
	}

	store, err := storage.NewMinIOStore(&cfg.MinIO)
	if err != nil {
		logger.Fatalf("failed to init blob store: %v", err)
	}

	videoRepo := repository.NewVideoRepository(db)
	jobRepo := repository.NewVideoJobRepository(db)
	metadataRepo := repository.NewVideoMetadataRepository(db)
	publishRepo := repository.NewPublishRepository(db)

	extractor := media.NewFFmpegExtractor(&cfg.Media)
	generator := ai.NewOpenAIGenerator(&cfg.OpenAI, logger)
	pub := publisher.NewHTTPPublisher(&cfg.Publish, cfg.Pipeline.PublishTimeout)

	orchestrator := service.NewOrchestrator(jobRepo, videoRepo, metadataRepo, store, extractor, generator, cfg, logger)

	producer := queue.NewProducer(&cfg.Kafka)
	defer producer.Close()

	videoService := service.NewVideoService(videoRepo, jobRepo, metadataRepo, publishRepo, store, producer, pub, cfg.Publish.Platform, logger)

	ctx, cancel := context.WithCancel(context.Background())
	consumer := queue.NewConsumer(&cfg.Kafka, cfg.Pipeline.Workers,
		func(ctx context.Context, jobID uuid.UUID) error {
			return orchestrator.StartProcessing(ctx, jobID)
		}, logger)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Run(ctx)
	}()

	videoHandler := handler.NewVideoHandler(videoService, logger)
	jobHandler := handler.NewJobHandler(videoService, logger)
	r := router.Setup(videoHandler, jobHandler, cfg.Server.JWTSecret)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}
	go func() {
		logger.Infof("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}

	// Stop consuming; in-flight jobs finish their current stage and are
	// finalized as cancelled at the next stage boundary.
	cancel()
	select {
	case <-consumerDone:
	case <-time.After(60 * time.Second):
		logger.Warn("consumer did not drain in time")
	}
}
