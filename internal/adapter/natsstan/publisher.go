package natsstan

import (
	"context"
	"encoding/json"
	"fmt"

	stan "github.com/nats-io/stan.go"

	"github.com/example/wb-order-pipeline/internal/domain"
)

// Publisher публикует заказы в канал NATS Streaming в том же JSON-виде,
// в каком их принимает подписчик.
type Publisher struct {
	conn    stan.Conn
	subject string
}

func NewPublisher(conn stan.Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

func (p *Publisher) Publish(_ context.Context, o domain.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.OrderUID, err)
	}
	return p.PublishRaw(b)
}

// PublishRaw — опубликовать готовую полезную нагрузку как есть.
func (p *Publisher) PublishRaw(b []byte) error {
	if err := p.conn.Publish(p.subject, b); err != nil {
		return fmt.Errorf("stan publish to %s: %w", p.subject, err)
	}
	return nil
}

var _ domain.EventPublisher = (*Publisher)(nil)
