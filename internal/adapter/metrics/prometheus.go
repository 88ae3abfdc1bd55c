package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/wb-order-pipeline/internal/domain"
)

const namespace = "orders"

// Prometheus — приёмник метрик конвейера с собственным реестром.
type Prometheus struct {
	registry     *prometheus.Registry
	ingests      *prometheus.CounterVec
	messages     *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	storage      *prometheus.HistogramVec
	warmLoaded   prometheus.Counter
	warmFailed   prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheus регистрирует метрики; cacheSize опрашивается при каждом сборе.
func NewPrometheus(cacheSize func() int) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Orders passed to ingestion, by result.",
		}, []string{"result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Stream messages handled, by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Order cache lookups, by hit.",
		}, []string{"hit"}),
		storage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_duration_seconds",
			Help:      "Storage gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		warmLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_warm_loaded_total",
			Help:      "Orders loaded into the cache at startup.",
		}),
		warmFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_warm_failed_total",
			Help:      "Orders skipped during cache warm-up.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.registry.MustRegister(p.ingests, p.messages, p.cacheLookups, p.storage, p.warmLoaded, p.warmFailed,
		p.httpRequests, p.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cacheSize != nil {
		p.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_size",
			Help:      "Orders currently held in the cache.",
		}, func() float64 { return float64(cacheSize()) }))
	}
	return p
}

func (p *Prometheus) IncIngest(result string) {
	p.ingests.WithLabelValues(result).Inc()
}

func (p *Prometheus) IncMessage(outcome string) {
	p.messages.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) IncCacheLookup(hit bool) {
	p.cacheLookups.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func (p *Prometheus) ObserveStorage(op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.storage.WithLabelValues(op, status).Observe(d.Seconds())
}

func (p *Prometheus) AddWarmLoad(loaded, failed int) {
	p.warmLoaded.Add(float64(loaded))
	p.warmFailed.Add(float64(failed))
}

// ObserveHTTPRequest учитывает один HTTP-запрос.
func (p *Prometheus) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler — обработчик /metrics.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

var _ domain.Metrics = (*Prometheus)(nil)
