package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/echo-labs/echo/config"
	"github.com/echo-labs/echo/pkg/metrics"
)

// JobMessage is the queue payload: just the job id. The worker reloads all
// state from the repository, so the message carries no job data that could
// go stale.
type JobMessage struct {
	JobID uuid.UUID `json:"job_id"`
}

type JobProducer interface {
	EnqueueJob(ctx context.Context, jobID uuid.UUID) error
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg *config.KafkaConfig) *Producer {
	return &Producer{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers: []string{cfg.Broker},
			Topic:   cfg.Topic,
		}),
	}
}

func (p *Producer) EnqueueJob(ctx context.Context, jobID uuid.UUID) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(jobID.String()),
		Value: body,
	})
	if err != nil {
		metrics.KafkaMessagesTotal.WithLabelValues("produce", "error").Inc()
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	metrics.KafkaMessagesTotal.WithLabelValues("produce", "ok").Inc()
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
