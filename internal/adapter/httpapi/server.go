package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/example/wb-order-pipeline/internal/domain"
	"github.com/example/wb-order-pipeline/internal/usecase"
)

const maxBodyBytes = 1 << 20

// RequestObserver учитывает обработанные запросы; route — шаблон маршрута mux.
type RequestObserver interface {
	ObserveHTTPRequest(method, route string, status int, d time.Duration)
}

// Options — необязательные части HTTP-сервера.
type Options struct {
	WebDir         string
	TestOrderRPS   float64
	TestOrderBurst int
	Metrics        http.Handler
	Requests       RequestObserver
	Logger         *slog.Logger
}

type Server struct {
	Router   *mux.Router
	UCGet    usecase.GetOrderByID
	UCSubmit usecase.SubmitTestOrder
	Cache    domain.OrderCache

	log      *slog.Logger
	limiter  *rate.Limiter
	requests RequestObserver

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewServer(get usecase.GetOrderByID, submit usecase.SubmitTestOrder, cache domain.OrderCache, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if opts.TestOrderRPS > 0 {
		limit = rate.Limit(opts.TestOrderRPS)
	}
	s := &Server{
		Router:   mux.NewRouter(),
		UCGet:    get,
		UCSubmit: submit,
		Cache:    cache,
		log:      log,
		limiter:  rate.NewLimiter(limit, max(opts.TestOrderBurst, 1)),
		requests: opts.Requests,
		rnd:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	s.Router.Use(s.logRequests)
	s.Router.HandleFunc("/api/order/{id}", s.handleGet).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/orders", s.handleList).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/orders/test", s.handleSubmitTest).Methods(http.MethodPost)
	s.Router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if opts.Metrics != nil {
		s.Router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	if opts.WebDir != "" {
		s.Router.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.WebDir)))
	}
	return s
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, err := s.UCGet.Execute(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type listResponse struct {
	Count  int            `json:"count"`
	Orders []domain.Order `json:"orders"`
}

// handleList — заказы, которые сейчас в кэше, от новых к старым.
func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	orders := s.Cache.All()
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].DateCreated.Equal(orders[j].DateCreated) {
			return orders[i].DateCreated.After(orders[j].DateCreated)
		}
		return orders[i].OrderUID < orders[j].OrderUID
	})
	writeJSON(w, http.StatusOK, listResponse{Count: len(orders), Orders: orders})
}

// handleSubmitTest принимает заказ в теле запроса; пустое тело — случайный заказ.
func (s *Server) handleSubmitTest(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many test orders"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cannot read body"})
		return
	}

	var o domain.Order
	if len(bytes.TrimSpace(body)) == 0 {
		s.rndMu.Lock()
		o = usecase.GenerateTestOrder(s.rnd)
		s.rndMu.Unlock()
	} else if err := json.Unmarshal(body, &o); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed order json: " + err.Error()})
		return
	}

	saved, err := s.UCSubmit.Execute(r.Context(), o)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

type healthResponse struct {
	Status    string `json:"status"`
	CacheSize int    `json:"cache_size"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", CacheSize: s.Cache.Size()})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrPersistence):
		s.log.Error("storage unavailable",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable"})
	default:
		s.log.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		if s.requests != nil {
			s.requests.ObserveHTTPRequest(r.Method, routeTemplate(r), rec.status, elapsed)
		}
		s.log.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", elapsed))
	})
}

// routeTemplate — шаблон вида /api/order/{id}, чтобы идентификаторы не
// попадали в метки метрик.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
