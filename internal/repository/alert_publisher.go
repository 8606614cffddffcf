package repository

import (
	"context"
	"fmt"

	"FinGuard/internal/domain/models"
	"FinGuard/internal/domain/repository"
)

// Publisher is the part of pkg/kafka.Producer the alert sink needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaAlertSink publishes alerts as JSON events keyed by alert type.
type KafkaAlertSink struct {
	producer Publisher
	topic    string
}

var _ repository.AlertSink = (*KafkaAlertSink)(nil)

func NewKafkaAlertSink(producer Publisher, topic string) *KafkaAlertSink {
	return &KafkaAlertSink{producer: producer, topic: topic}
}

func (s *KafkaAlertSink) Name() string { return "kafka" }

func (s *KafkaAlertSink) Deliver(ctx context.Context, a models.AlertRecord) error {
	if err := s.producer.Publish(ctx, s.topic, []byte(a.Type), a); err != nil {
		return fmt.Errorf("publish alert %s to %s: %w", a.ID, s.topic, err)
	}
	return nil
}
