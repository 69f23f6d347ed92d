package repository

import (
	"context"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	pkgkafka "SMCScan/pkg/kafka"
)

// KafkaBarPublisher implements BarPublisher for Kafka. Messages are keyed by
// symbol so each symbol's bars stay ordered within one partition.
type KafkaBarPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaBarPublisher(producer *pkgkafka.Producer, topic string) *KafkaBarPublisher {
	return &KafkaBarPublisher{producer: producer, topic: topic}
}

func (p *KafkaBarPublisher) Publish(ctx context.Context, b *models.Bar) error {
	return p.producer.Publish(ctx, p.topic, []byte(b.Symbol), b)
}

func (p *KafkaBarPublisher) PublishBatch(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(bars))
	for i, b := range bars {
		msgs[i] = pkgkafka.Message{Key: []byte(b.Symbol), Value: b}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaBarPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// SetupEvent is the payload on the setups topic.
type SetupEvent struct {
	ID    string       `json:"id"`
	Score float64      `json:"score"`
	Setup models.Setup `json:"setup"`
}

// KafkaSetupPublisher emits journaled setups to downstream consumers.
type KafkaSetupPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSetupPublisher(producer *pkgkafka.Producer, topic string) *KafkaSetupPublisher {
	return &KafkaSetupPublisher{producer: producer, topic: topic}
}

func (p *KafkaSetupPublisher) PublishSetup(ctx context.Context, id string, setup models.Setup, score float64) error {
	return p.producer.Publish(ctx, p.topic, []byte(setup.Symbol), SetupEvent{ID: id, Score: score, Setup: setup})
}

var _ domrepo.BarPublisher = (*KafkaBarPublisher)(nil)
