package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/example/wb-order-pipeline/internal/adapter/kafkastream"
	"github.com/example/wb-order-pipeline/internal/adapter/natsstan"
	"github.com/example/wb-order-pipeline/internal/config"
	"github.com/example/wb-order-pipeline/internal/logger"
	"github.com/example/wb-order-pipeline/internal/usecase"
)

// rawPublisher — публикатор готовой полезной нагрузки.
type rawPublisher interface {
	publish(ctx context.Context, orderUID string, payload []byte) error
	close()
}

type stanRaw struct {
	p         *natsstan.Publisher
	closeConn func() error
}

func (s stanRaw) publish(_ context.Context, _ string, b []byte) error { return s.p.PublishRaw(b) }
func (s stanRaw) close() { _ = s.closeConn() }

type kafkaRaw struct{ p *kafkastream.Publisher }

func (k kafkaRaw) publish(ctx context.Context, uid string, b []byte) error {
	return k.p.PublishRaw(ctx, uid, b)
}
func (k kafkaRaw) close() { _ = k.p.Close() }

func main() {
	random := flag.Int("random", 0, "publish N generated orders instead of reading stdin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel(), cfg.Log.Format, cfg.Log.AddSource, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, cfg, log, os.Stdin, *random, dial); err != nil {
		log.Error("publisher failed", slog.String("error", err.Error()))
		cancel()
		os.Exit(1)
	}
}

// dialFunc открывает публикатор выбранного транспорта.
type dialFunc func(ctx context.Context, cfg config.Config) (rawPublisher, error)

func run(ctx context.Context, cfg config.Config, log *slog.Logger, in io.Reader, random int, open dialFunc) error {
	payloads, err := collect(in, random)
	if err != nil {
		return fmt.Errorf("prepare payload: %w", err)
	}

	pub, err := open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	defer pub.close()

	for _, p := range payloads {
		if err := pub.publish(ctx, p.uid, p.body); err != nil {
			return fmt.Errorf("publish %s: %w", p.uid, err)
		}
		log.Info("published",
			slog.String("order_uid", p.uid),
			slog.Int("bytes", len(p.body)),
			slog.String("driver", cfg.Stream.Driver))
	}
	return nil
}

type payload struct {
	uid  string
	body []byte
}

// collect — либо n сгенерированных заказов, либо один JSON-документ из r
// без изменений: так можно отправить и заведомо некорректный заказ.
func collect(r io.Reader, n int) ([]payload, error) {
	if n > 0 {
		rnd := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		out := make([]payload, 0, n)
		for i := 0; i < n; i++ {
			o := usecase.GenerateTestOrder(rnd)
			b, err := json.Marshal(o)
			if err != nil {
				return nil, err
			}
			out = append(out, payload{uid: o.OrderUID, body: b})
		}
		return out, nil
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("read json from stdin: %w", err)
	}
	var head struct {
		OrderUID string `json:"order_uid"`
	}
	_ = json.Unmarshal(raw, &head)
	return []payload{{uid: head.OrderUID, body: raw}}, nil
}

func dial(ctx context.Context, cfg config.Config) (rawPublisher, error) {
	sc := cfg.Stream
	if sc.Driver == config.DriverKafka {
		pingCtx, cancel := context.WithTimeout(ctx, sc.ConnectTimeout)
		defer cancel()
		if err := kafkastream.Ping(pingCtx, sc.Kafka.Brokers); err != nil {
			return nil, err
		}
		return kafkaRaw{p: kafkastream.NewPublisher(sc.Kafka.Brokers, sc.Kafka.Topic)}, nil
	}
	clientID := config.GetEnvStr("STAN_PUB_ID", "wb-publisher")
	conn, err := natsstan.Dial(sc.STAN.ClusterID, clientID, sc.STAN.URL, sc.ConnectTimeout, nil)
	if err != nil {
		return nil, err
	}
	return stanRaw{p: natsstan.NewPublisher(conn, sc.STAN.Subject), closeConn: conn.Close}, nil
}
