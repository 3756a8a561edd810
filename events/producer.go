package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"figurineForge/models"
)

// TaskEvent is emitted on every lifecycle transition worth announcing:
// submitted, succeeded, failed, timed_out.
type TaskEvent struct {
	TaskID     string            `json:"task_id"`
	OwnerID    string            `json:"owner_id"`
	Status     models.TaskStatus `json:"status"`
	Progress   int               `json:"progress"`
	ModelURL   string            `json:"model_url,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type Publisher interface {
	PublishTaskEvent(ctx context.Context, event *TaskEvent) error
	Close() error
}

type producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p, topic: topic}, nil
}

func (p *producer) PublishTaskEvent(ctx context.Context, event *TaskEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.TaskID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
