package kafkastream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/example/wb-order-pipeline/internal/domain"
)

// Publisher пишет заказы в топик с ключом order_uid: все версии одного
// заказа попадают в одну партицию и читаются по порядку.
type Publisher struct {
	w *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (p *Publisher) Publish(ctx context.Context, o domain.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.OrderUID, err)
	}
	return p.PublishRaw(ctx, o.OrderUID, b)
}

// PublishRaw — записать готовую полезную нагрузку с заданным ключом.
func (p *Publisher) PublishRaw(ctx context.Context, key string, b []byte) error {
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b}); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.w.Topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

var _ domain.EventPublisher = (*Publisher)(nil)
