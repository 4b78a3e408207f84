package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/echo-labs/echo/config"
	"github.com/echo-labs/echo/models"
	"github.com/echo-labs/echo/pkg/metrics"
)

// JobHandler runs one job to a terminal state.
type JobHandler func(ctx context.Context, jobID uuid.UUID) error

// Consumer reads job ids from the processing topic and dispatches them to a
// bounded pool of workers. Delivery is at-least-once: a redelivered job loses
// the conditional PENDING -> PROCESSING transition and is dropped as a
// conflict, so duplicates cause no second pipeline run.
type Consumer struct {
	reader  *kafka.Reader
	handler JobHandler
	workers int
	logger  *logrus.Logger
}

func NewConsumer(cfg *config.KafkaConfig, workers int, handler JobHandler, logger *logrus.Logger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{cfg.Broker},
			Topic:   cfg.Topic,
			GroupID: cfg.GroupID,
		}),
		handler: handler,
		workers: workers,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs to finish.
func (c *Consumer) Run(ctx context.Context) {
	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			c.logger.WithError(err).Error("error reading job message")
			metrics.KafkaMessagesTotal.WithLabelValues("consume", "error").Inc()
			continue
		}
		metrics.KafkaMessagesTotal.WithLabelValues("consume", "ok").Inc()

		var payload JobMessage
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			c.logger.WithError(err).Warn("discarding malformed job message")
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(jobID uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()
			c.process(ctx, jobID)
		}(payload.JobID)
	}

	wg.Wait()
	if err := c.reader.Close(); err != nil {
		c.logger.WithError(err).Warn("error closing kafka reader")
	}
}

func (c *Consumer) process(ctx context.Context, jobID uuid.UUID) {
	log := c.logger.WithField("job_id", jobID)
	err := c.handler(ctx, jobID)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrConflict):
		// Redelivery or concurrent start; exactly one run owns the job.
		log.Info("job already claimed, skipping")
	case errors.Is(err, models.ErrNotFound):
		log.Warn("job message references unknown job")
	default:
		log.WithError(err).Error("job processing failed unexpectedly")
	}
}
