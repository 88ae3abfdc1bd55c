package natsstan

import (
	"fmt"
	"log/slog"
	"time"

	stan "github.com/nats-io/stan.go"
)

// Dial — соединение с кластером NATS Streaming. Недоступный сервер даёт
// ошибку сразу, без фоновых попыток переподключения; connectWait ограничивает
// ожидание ответа кластера (0 — значение клиента по умолчанию).
func Dial(clusterID, clientID, url string, connectWait time.Duration, log *slog.Logger) (stan.Conn, error) {
	if clientID == "" {
		clientID = fmt.Sprintf("wb-orders-%d", time.Now().UnixNano())
	}
	if log == nil {
		log = slog.Default()
	}
	if connectWait <= 0 {
		connectWait = stan.DefaultConnectWait
	}
	sc, err := stan.Connect(clusterID, clientID, stan.NatsURL(url),
		stan.ConnectWait(connectWait),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			log.Error("stan connection lost", slog.String("error", reason.Error()))
		}))
	if err != nil {
		return nil, fmt.Errorf("stan connect %s: %w", url, err)
	}
	return sc, nil
}
