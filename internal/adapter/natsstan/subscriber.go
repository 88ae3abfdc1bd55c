package natsstan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	stan "github.com/nats-io/stan.go"

	"github.com/example/wb-order-pipeline/internal/domain"
)

// Subscriber — durable queue-подписка NATS Streaming с ручным подтверждением.
// Неподтверждённое сообщение сервер доставит повторно по истечении AckWait.
type Subscriber struct {
	Conn           stan.Conn
	Subject        string
	QueueGroup     string
	Durable        string
	AckWait        time.Duration
	Workers        int
	HandlerTimeout time.Duration
	Logger         *slog.Logger
}

func (s *Subscriber) Consume(ctx context.Context, handler domain.MessageHandler) error {
	log := s.logger()
	if s.Conn == nil {
		return errors.New("stan: subscriber has no connection")
	}

	var (
		mu       sync.Mutex
		closing  bool
		inflight sync.WaitGroup
	)
	onMsg := func(m *stan.Msg) {
		mu.Lock()
		if closing {
			// не подтверждаем: сообщение достанется следующему запуску
			mu.Unlock()
			return
		}
		inflight.Add(1)
		mu.Unlock()
		defer inflight.Done()
		s.handle(ctx, m, handler)
	}

	workers := max(s.Workers, 1)
	subs := make([]stan.Subscription, 0, workers)
	for i := 0; i < workers; i++ {
		sub, err := s.Conn.QueueSubscribe(s.Subject, s.QueueGroup, onMsg,
			stan.DurableName(s.Durable),
			stan.SetManualAckMode(),
			stan.AckWait(s.ackWait()),
			stan.DeliverAllAvailable())
		if err != nil {
			for _, prev := range subs {
				_ = prev.Close()
			}
			return fmt.Errorf("stan subscribe: %w", err)
		}
		subs = append(subs, sub)
	}
	log.Info("stan consumer started",
		slog.String("subject", s.Subject),
		slog.String("queue_group", s.QueueGroup),
		slog.Int("workers", workers))

	<-ctx.Done()

	mu.Lock()
	closing = true
	mu.Unlock()
	// подписки живы, пока начатые сообщения не подтверждены:
	// Ack на закрытой подписке возвращает ErrBadSubscription
	inflight.Wait()
	// Close, а не Unsubscribe: durable-позиция группы должна сохраниться
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			log.Warn("stan subscription close failed", slog.String("error", err.Error()))
		}
	}
	log.Info("stan consumer stopped")
	return nil
}

func (s *Subscriber) handle(ctx context.Context, m *stan.Msg, handler domain.MessageHandler) {
	// отмена ctx не должна обрывать уже начатую обработку
	hCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.handlerTimeout())
	defer cancel()
	if err := handler(hCtx, m.Data); err != nil {
		// не подтверждаем, даём сообщению переотправиться
		s.logger().Warn("message left unacknowledged",
			slog.Uint64("sequence", m.Sequence),
			slog.Bool("redelivered", m.Redelivered),
			slog.String("error", err.Error()))
		return
	}
	if err := m.Ack(); err != nil {
		s.logger().Error("ack failed",
			slog.Uint64("sequence", m.Sequence),
			slog.String("error", err.Error()))
	}
}

func (s *Subscriber) ackWait() time.Duration {
	if s.AckWait >= time.Second {
		return s.AckWait
	}
	return stan.DefaultAckWait
}

func (s *Subscriber) handlerTimeout() time.Duration {
	if s.HandlerTimeout > 0 {
		return s.HandlerTimeout
	}
	return 5 * time.Second
}

func (s *Subscriber) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

var _ domain.MessageSubscriber = (*Subscriber)(nil)
