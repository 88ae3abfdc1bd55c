package domain

import (
	"context"
	"time"
)

// OrderRepository — порт для операций персистентности заказов.
type OrderRepository interface {
	// Save атомарно записывает заказ целиком, заменяя прежнюю запись с тем же order_uid.
	Save(ctx context.Context, o Order) error
	// FindByID возвращает ErrNotFound, если заказа нет.
	FindByID(ctx context.Context, id string) (Order, error)
	// ListRecentIDs — идентификаторы от новых к старым; limit <= 0 — без ограничения.
	ListRecentIDs(ctx context.Context, limit int) ([]string, error)
}

// WarmSource — источник для прогрева кэша.
type WarmSource interface {
	FindByID(ctx context.Context, id string) (Order, error)
	ListRecentIDs(ctx context.Context, limit int) ([]string, error)
}

// WarmReport — итог прогрева кэша.
type WarmReport struct {
	Loaded int
	Failed int
	Errors []*CacheWarmError
}

// OrderCache — порт быстрого доступа к заказам (кэш).
type OrderCache interface {
	Get(id string) (Order, bool)
	Put(id string, o Order)
	// PutIfAbsent не перезаписывает уже закэшированное значение.
	PutIfAbsent(id string, o Order) bool
	All() []Order
	Size() int
	WarmLoad(ctx context.Context, src WarmSource, limit int) (WarmReport, error)
}

// MessageHandler обрабатывает одно сообщение. nil — сообщение подтверждается,
// ошибка — сообщение остаётся неподтверждённым и будет доставлено повторно.
type MessageHandler func(ctx context.Context, raw []byte) error

// MessageSubscriber — порт подписчика на входящие сообщения заказов.
type MessageSubscriber interface {
	// Consume блокируется до отмены ctx и завершения обрабатываемых сообщений;
	// ack/повторные доставки реализует адаптер.
	Consume(ctx context.Context, handler MessageHandler) error
}

// EventPublisher — порт публикации событий заказа.
type EventPublisher interface {
	Publish(ctx context.Context, o Order) error
}

// Исходы обработки входящего сообщения.
const (
	OutcomeAcked    = "acked"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeRetry    = "retry"
)

// Metrics — приёмник счётчиков и таймеров конвейера.
type Metrics interface {
	IncIngest(result string)
	IncMessage(outcome string)
	IncCacheLookup(hit bool)
	ObserveStorage(op string, d time.Duration, err error)
	AddWarmLoad(loaded, failed int)
}

// NopMetrics — Metrics, который ничего не делает.
type NopMetrics struct{}

func (NopMetrics) IncIngest(string) {}
func (NopMetrics) IncMessage(string) {}
func (NopMetrics) IncCacheLookup(bool) {}
func (NopMetrics) ObserveStorage(string, time.Duration, error) {}
func (NopMetrics) AddWarmLoad(int, int) {}
