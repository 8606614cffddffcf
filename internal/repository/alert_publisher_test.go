package repository

import (
	"context"
	"errors"
	"testing"

	"FinGuard/internal/domain/models"
)

type capturePublisher struct {
	topic string
	key   []byte
	value interface{}
	err   error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func TestKafkaAlertSinkKeysByType(t *testing.T) {
	p := &capturePublisher{}
	s := NewKafkaAlertSink(p, "finguard.alerts")
	a := models.AlertRecord{ID: "1", Type: "drift", Severity: models.AlertCritical}

	if err := s.Deliver(context.Background(), a); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if p.topic != "finguard.alerts" || string(p.key) != "drift" {
		t.Fatalf("topic=%q key=%q", p.topic, p.key)
	}
	if got, ok := p.value.(models.AlertRecord); !ok || got.ID != "1" {
		t.Fatalf("value = %#v", p.value)
	}

	p.err = errors.New("broker down")
	if err := s.Deliver(context.Background(), a); !errors.Is(err, p.err) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}
