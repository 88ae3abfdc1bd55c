package kafkastream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/wb-order-pipeline/internal/domain"
)

// messageReader — часть kafka.Reader, нужная потребителю.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Subscriber читает топик в составе consumer group. Смещение фиксируется
// только после успешной обработки. При ошибке, допускающей повтор, читатель
// закрывается и через RetryBackoff открывается заново с последнего
// зафиксированного смещения, так что сообщение будет прочитано ещё раз.
type Subscriber struct {
	Brokers        []string
	Topic          string
	GroupID        string
	Workers        int
	HandlerTimeout time.Duration
	RetryBackoff   time.Duration
	Logger         *slog.Logger

	newReader func() messageReader
}

func (s *Subscriber) Consume(ctx context.Context, handler domain.MessageHandler) error {
	if len(s.Brokers) == 0 || s.Topic == "" {
		return errors.New("kafka: brokers and topic are required")
	}
	workers := max(s.Workers, 1)
	s.logger().Info("kafka consumer started",
		slog.String("topic", s.Topic),
		slog.String("group_id", s.GroupID),
		slog.Int("workers", workers))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.runWorker(ctx, worker, handler)
		}(i)
	}
	wg.Wait()
	s.logger().Info("kafka consumer stopped")
	return nil
}

func (s *Subscriber) runWorker(ctx context.Context, worker int, handler domain.MessageHandler) {
	log := s.logger().With(slog.Int("worker", worker))
	for ctx.Err() == nil {
		r := s.openReader()
		err := s.drain(ctx, r, handler)
		if cerr := r.Close(); cerr != nil {
			log.Warn("kafka reader close failed", slog.String("error", cerr.Error()))
		}
		if ctx.Err() != nil {
			return
		}
		log.Warn("kafka reader restarting",
			slog.Duration("backoff", s.retryBackoff()),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryBackoff()):
		}
	}
}

// drain обрабатывает сообщения, пока не понадобится переоткрыть читателя.
func (s *Subscriber) drain(ctx context.Context, r messageReader, handler domain.MessageHandler) error {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		if err := s.handle(ctx, r, m, handler); err != nil {
			return err
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, r messageReader, m kafka.Message, handler domain.MessageHandler) error {
	// отмена ctx не должна обрывать уже начатую обработку
	hCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.handlerTimeout())
	defer cancel()
	if err := handler(hCtx, m.Value); err != nil {
		return fmt.Errorf("partition %d offset %d: %w", m.Partition, m.Offset, err)
	}
	if err := r.CommitMessages(hCtx, m); err != nil {
		return fmt.Errorf("commit offset %d: %w", m.Offset, err)
	}
	return nil
}

func (s *Subscriber) openReader() messageReader {
	if s.newReader != nil {
		return s.newReader()
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        s.Brokers,
		Topic:          s.Topic,
		GroupID:        s.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
}

func (s *Subscriber) handlerTimeout() time.Duration {
	if s.HandlerTimeout > 0 {
		return s.HandlerTimeout
	}
	return 5 * time.Second
}

func (s *Subscriber) retryBackoff() time.Duration {
	if s.RetryBackoff > 0 {
		return s.RetryBackoff
	}
	return time.Second
}

func (s *Subscriber) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Ping проверяет, что хотя бы один брокер принимает соединения.
func Ping(ctx context.Context, brokers []string) error {
	var errs []error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	return fmt.Errorf("kafka unreachable: %w", errors.Join(errs...))
}

var _ domain.MessageSubscriber = (*Subscriber)(nil)
