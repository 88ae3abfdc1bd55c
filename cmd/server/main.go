package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/wb-order-pipeline/internal/adapter/cache"
	"github.com/example/wb-order-pipeline/internal/adapter/httpapi"
	"github.com/example/wb-order-pipeline/internal/adapter/kafkastream"
	"github.com/example/wb-order-pipeline/internal/adapter/metrics"
	"github.com/example/wb-order-pipeline/internal/adapter/natsstan"
	"github.com/example/wb-order-pipeline/internal/adapter/repo"
	"github.com/example/wb-order-pipeline/internal/config"
	"github.com/example/wb-order-pipeline/internal/domain"
	"github.com/example/wb-order-pipeline/internal/logger"
	"github.com/example/wb-order-pipeline/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel(), cfg.Log.Format, cfg.Log.AddSource, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// stream — выбранный транспорт: подписчик, публикатор и освобождение ресурсов.
type stream struct {
	subscriber domain.MessageSubscriber
	publisher  domain.EventPublisher
	close      func()
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("starting order service",
		slog.String("database_url", cfg.MaskDatabaseURL()),
		slog.String("stream_driver", cfg.Stream.Driver),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.Int("consumer_workers", cfg.Stream.Workers))

	orderCache := cache.NewMemoryOrderCache()
	sink := metrics.NewPrometheus(orderCache.Size)

	pool, err := repo.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if err := repo.EnsureSchema(cfg.Database.URL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	orders := repo.NewPostgresOrderRepo(pool, sink)

	loadCache := usecase.LoadCache{
		Repo:    orders,
		Cache:   orderCache,
		Limit:   cfg.Cache.WarmLimit,
		Metrics: sink,
		Logger:  logger.Component(log, "cache"),
	}
	if _, err := loadCache.Execute(ctx); err != nil {
		// кэш дозаполнится чтениями через хранилище
		log.Error("cache warm-up failed", slog.String("error", err.Error()))
	}

	st, err := openStream(ctx, cfg, logger.Component(log, "stream"))
	if err != nil {
		return err
	}
	defer st.close()

	ingest := usecase.IngestOrder{Repo: orders, Cache: orderCache, Metrics: sink}
	process := usecase.ProcessIncomingOrder{
		Ingest:  ingest,
		Metrics: sink,
		Logger:  logger.Component(log, "consumer"),
	}

	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()
	consumerDone := make(chan error, 1)
	go func() { consumerDone <- st.subscriber.Consume(consumeCtx, process.Execute) }()

	api := httpapi.NewServer(
		usecase.GetOrderByID{Repo: orders, Cache: orderCache, Metrics: sink},
		usecase.SubmitTestOrder{Ingest: ingest, Publisher: st.publisher, Logger: logger.Component(log, "submit")},
		orderCache,
		httpapi.Options{
			WebDir:         cfg.HTTP.WebDir,
			TestOrderRPS:   cfg.HTTP.TestOrderRPS,
			TestOrderBurst: cfg.HTTP.TestOrderBurst,
			Metrics:        sink.Handler(),
			Requests:       sink,
			Logger:         logger.Component(log, "http"),
		},
	)
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: api.Router, ReadHeaderTimeout: 5 * time.Second}
	httpErr := make(chan error, 1)
	go func() {
		log.Info("http listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-consumerDone:
		consumerDone <- err
		runErr = fmt.Errorf("consumer: %w", err)
	case err := <-httpErr:
		runErr = fmt.Errorf("http: %w", err)
	}

	// сначала дожидаемся сообщения в обработке, затем гасим HTTP
	stopConsume()
	if err := <-consumerDone; err != nil && runErr == nil {
		runErr = fmt.Errorf("consumer: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", slog.String("error", err.Error()))
	}
	log.Info("order service stopped")
	return runErr
}

// openStream подключается к брокеру; недоступный брокер — ошибка старта.
func openStream(ctx context.Context, cfg config.Config, log *slog.Logger) (stream, error) {
	sc := cfg.Stream
	switch sc.Driver {
	case config.DriverKafka:
		pingCtx, cancel := context.WithTimeout(ctx, sc.ConnectTimeout)
		defer cancel()
		if err := kafkastream.Ping(pingCtx, sc.Kafka.Brokers); err != nil {
			return stream{}, err
		}
		pub := kafkastream.NewPublisher(sc.Kafka.Brokers, sc.Kafka.Topic)
		return stream{
			subscriber: &kafkastream.Subscriber{
				Brokers:        sc.Kafka.Brokers,
				Topic:          sc.Kafka.Topic,
				GroupID:        sc.Kafka.GroupID,
				Workers:        sc.Workers,
				HandlerTimeout: sc.HandlerTimeout,
				RetryBackoff:   sc.RetryBackoff,
				Logger:         log,
			},
			publisher: pub,
			close: func() {
				if err := pub.Close(); err != nil {
					log.Warn("kafka writer close", slog.String("error", err.Error()))
				}
			},
		}, nil
	default:
		conn, err := natsstan.Dial(sc.STAN.ClusterID, sc.STAN.ClientID, sc.STAN.URL, sc.ConnectTimeout, log)
		if err != nil {
			return stream{}, err
		}
		return stream{
			subscriber: &natsstan.Subscriber{
				Conn:           conn,
				Subject:        sc.STAN.Subject,
				QueueGroup:     sc.STAN.QueueGroup,
				Durable:        sc.STAN.Durable,
				AckWait:        sc.STAN.AckWait,
				Workers:        sc.Workers,
				HandlerTimeout: sc.HandlerTimeout,
				Logger:         log,
			},
			publisher: natsstan.NewPublisher(conn, sc.STAN.Subject),
			close: func() {
				if err := conn.Close(); err != nil {
					log.Warn("stan close", slog.String("error", err.Error()))
				}
			},
		}, nil
	}
}
