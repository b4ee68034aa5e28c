package repository

import (
	"context"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

type producer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher implements EventPublisher for Kafka. Events are keyed by
// family (or type) so one family stays ordered on one partition.
type KafkaPublisher struct {
	producer producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) domrepo.EventPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.SignalEvent) error {
	key := ev.Family
	if key == "" {
		key = ev.Type
	}
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:     []byte(key),
		Value:   ev,
		Headers: map[string]string{"type": ev.Type},
	}})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops events; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.SignalEvent) error { return nil }
func (NopPublisher) Close() error                                    { return nil }
