package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// TaskStatusChanged is emitted when a task reaches a terminal state.
type TaskStatusChanged struct {
	TaskID  uuid.UUID `json:"task_id"`
	OwnerID uuid.UUID `json:"owner_id"`
	Status  string    `json:"status"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher delivers lifecycle events to interested consumers. Delivery is
// best effort; the task pipeline never depends on it.
type Publisher interface {
	Publish(ctx context.Context, event TaskStatusChanged) error
}

// KafkaPublisher writes task events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event TaskStatusChanged) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TaskID.String()),
		Value: data,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop is used when no broker is configured and in tests.
type Noop struct{}

func (Noop) Publish(context.Context, TaskStatusChanged) error { return nil }
