package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/wb-order-pipeline/internal/domain"
)

// Результаты приёма заказа для метрик.
const (
	ingestOK          = "ok"
	ingestInvalid     = "invalid"
	ingestPersistFail = "persistence_error"
)

// IngestOrder — проверить заказ, сохранить его и только после успешной
// фиксации обновить кэш (write-through).
type IngestOrder struct {
	Repo    domain.OrderRepository
	Cache   domain.OrderCache
	Metrics domain.Metrics
}

func (uc IngestOrder) Execute(ctx context.Context, o domain.Order) (domain.Order, error) {
	m := metricsOrNop(uc.Metrics)
	if err := domain.Validate(o); err != nil {
		m.IncIngest(ingestInvalid)
		return domain.Order{}, err
	}
	o = domain.Normalize(o)
	if err := uc.Repo.Save(ctx, o); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			m.IncIngest(ingestInvalid)
			return domain.Order{}, err
		}
		m.IncIngest(ingestPersistFail)
		if !errors.Is(err, domain.ErrPersistence) {
			err = &domain.PersistenceError{Op: "save", Err: err}
		}
		return domain.Order{}, err
	}
	uc.Cache.Put(o.OrderUID, o)
	m.IncIngest(ingestOK)
	return o, nil
}

// GetOrderByID — получить заказ из кэша, при промахе прочитать из хранилища
// и положить в кэш (read-through).
type GetOrderByID struct {
	Repo    domain.OrderRepository
	Cache   domain.OrderCache
	Metrics domain.Metrics
}

func (uc GetOrderByID) Execute(ctx context.Context, id string) (domain.Order, error) {
	m := metricsOrNop(uc.Metrics)
	if o, ok := uc.Cache.Get(id); ok {
		m.IncCacheLookup(true)
		return o, nil
	}
	m.IncCacheLookup(false)

	o, err := uc.Repo.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	// пока шло чтение, приём мог положить более новую версию — её не затираем
	if !uc.Cache.PutIfAbsent(id, o) {
		if cached, ok := uc.Cache.Get(id); ok {
			return cached, nil
		}
	}
	return o, nil
}

// LoadCache — загрузить последние заказы из репозитория в кэш при старте.
type LoadCache struct {
	Repo    domain.OrderRepository
	Cache   domain.OrderCache
	Limit   int
	Metrics domain.Metrics
	Logger  *slog.Logger
}

func (uc LoadCache) Execute(ctx context.Context) (domain.WarmReport, error) {
	log := loggerOrDefault(uc.Logger)
	report, err := uc.Cache.WarmLoad(ctx, uc.Repo, uc.Limit)
	if err != nil {
		return report, err
	}
	// пропускаем битые записи, не прерывая полную загрузку
	for _, werr := range report.Errors {
		log.Warn("skipped order during cache warm-up",
			slog.String("order_uid", werr.OrderUID),
			slog.String("error", werr.Err.Error()))
	}
	metricsOrNop(uc.Metrics).AddWarmLoad(report.Loaded, report.Failed)
	log.Info("cache warmed",
		slog.Int("loaded", report.Loaded),
		slog.Int("failed", report.Failed),
		slog.Int("cache_size", uc.Cache.Size()))
	return report, nil
}

// SubmitTestOrder — принять заказ как обычный и дополнительно опубликовать его.
// Ошибка публикации не откатывает уже зафиксированный заказ.
type SubmitTestOrder struct {
	Ingest    IngestOrder
	Publisher domain.EventPublisher
	Logger    *slog.Logger
}

func (uc SubmitTestOrder) Execute(ctx context.Context, o domain.Order) (domain.Order, error) {
	saved, err := uc.Ingest.Execute(ctx, o)
	if err != nil {
		return domain.Order{}, err
	}
	if uc.Publisher == nil {
		return saved, nil
	}
	if err := uc.Publisher.Publish(ctx, saved); err != nil {
		loggerOrDefault(uc.Logger).Warn("test order publish failed",
			slog.String("order_uid", saved.OrderUID),
			slog.String("error", err.Error()))
	}
	return saved, nil
}

// ProcessIncomingOrder — обработать сообщение потока. Возвращает nil, если
// сообщение нужно подтвердить, и ошибку, если оно должно прийти повторно.
type ProcessIncomingOrder struct {
	Ingest  IngestOrder
	Metrics domain.Metrics
	Logger  *slog.Logger
}

func (uc ProcessIncomingOrder) Execute(ctx context.Context, raw []byte) error {
	log := loggerOrDefault(uc.Logger)
	m := metricsOrNop(uc.Metrics)

	var o domain.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		// poison: подтверждаем, иначе сообщение заблокирует поток
		m.IncMessage(domain.OutcomeRejected)
		log.Warn("rejected malformed message",
			slog.Int("size", len(raw)),
			slog.String("error", err.Error()))
		return nil
	}

	if _, err := uc.Ingest.Execute(ctx, o); err != nil {
		if domain.IsRetryable(err) {
			m.IncMessage(domain.OutcomeRetry)
			log.Error("order not persisted, leaving message for redelivery",
				slog.String("order_uid", o.OrderUID),
				slog.String("error", err.Error()))
			return fmt.Errorf("ingest %s: %w", o.OrderUID, err)
		}
		m.IncMessage(domain.OutcomeInvalid)
		log.Warn("rejected invalid order",
			slog.String("order_uid", o.OrderUID),
			slog.String("error", err.Error()))
		return nil
	}

	m.IncMessage(domain.OutcomeAcked)
	log.Debug("processed order", slog.String("order_uid", o.OrderUID))
	return nil
}

func metricsOrNop(m domain.Metrics) domain.Metrics {
	if m == nil {
		return domain.NopMetrics{}
	}
	return m
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
