package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wb-order-pipeline/internal/adapter/cache"
	"github.com/example/wb-order-pipeline/internal/domain"
	"github.com/example/wb-order-pipeline/internal/usecase"
)

type stubRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	down   bool
}

func (r *stubRepo) Save(_ context.Context, o domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return &domain.PersistenceError{Op: "save", Err: errors.New("connection refused")}
	}
	r.orders[o.OrderUID] = o.Clone()
	return nil
}

func (r *stubRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return domain.Order{}, &domain.PersistenceError{Op: "find", Err: errors.New("connection refused")}
	}
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *stubRepo) ListRecentIDs(context.Context, int) ([]string, error) { return nil, nil }

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPublisher) Publish(_ context.Context, o domain.Order) error {
	p.mu.Lock()
	p.ids = append(p.ids, o.OrderUID)
	p.mu.Unlock()
	return nil
}

type testEnv struct {
	repo   *stubRepo
	cache  *cache.MemoryOrderCache
	pub    *recordingPublisher
	server *Server
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:  &stubRepo{orders: map[string]domain.Order{}},
		cache: cache.NewMemoryOrderCache(),
		pub:   &recordingPublisher{},
	}
	ingest := usecase.IngestOrder{Repo: env.repo, Cache: env.cache}
	env.server = NewServer(
		usecase.GetOrderByID{Repo: env.repo, Cache: env.cache},
		usecase.SubmitTestOrder{Ingest: ingest, Publisher: env.pub},
		env.cache,
		opts,
	)
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	e.server.Router.ServeHTTP(w, req)
	return w
}

func validOrder(id string) domain.Order {
	return domain.Order{
		OrderUID:    id,
		TrackNumber: "WBILMTESTTRACK",
		Entry:       "WBIL",
		Delivery:    &domain.Delivery{Name: "Test Testov", Phone: "+9720000000", Email: "test@gmail.com"},
		Payment:     &domain.Payment{Transaction: id, Currency: "USD", Amount: 1817},
		Items:       []domain.Item{{ChrtID: 9934930, Price: 453, TotalPrice: 317}},
		DateCreated: time.Date(2021, 11, 26, 6, 22, 19, 0, time.UTC),
	}
}

func TestHandleGet(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.cache.Put("test-order-123", validOrder("test-order-123"))

	tests := []struct {
		name     string
		orderID  string
		down     bool
		wantCode int
	}{
		{name: "existing order", orderID: "test-order-123", wantCode: http.StatusOK},
		{name: "non-existing order", orderID: "non-existent", wantCode: http.StatusNotFound},
		{name: "storage down on miss", orderID: "other", down: true, wantCode: http.StatusServiceUnavailable},
		{name: "storage down on hit", orderID: "test-order-123", down: true, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.repo.mu.Lock()
			env.repo.down = tt.down
			env.repo.mu.Unlock()

			w := env.do(http.MethodGet, "/api/order/"+tt.orderID, "")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestHandleGetReadThrough(t *testing.T) {
	env := newTestEnv(t, Options{})
	require.NoError(t, env.repo.Save(context.Background(), validOrder("db-only")))

	w := env.do(http.MethodGet, "/api/order/db-only", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got domain.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "db-only", got.OrderUID)
	assert.Equal(t, 1, env.cache.Size())
}

func TestHandleSubmitTest(t *testing.T) {
	env := newTestEnv(t, Options{})

	body, err := json.Marshal(validOrder("submitted-1"))
	require.NoError(t, err)
	w := env.do(http.MethodPost, "/api/orders/test", string(body))
	require.Equal(t, http.StatusCreated, w.Code)

	_, cached := env.cache.Get("submitted-1")
	assert.True(t, cached)
	assert.Equal(t, []string{"submitted-1"}, env.pub.ids)
}

func TestHandleSubmitTestRandom(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(http.MethodPost, "/api/orders/test", "")
	require.Equal(t, http.StatusCreated, w.Code)

	var got domain.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotEmpty(t, got.OrderUID)
	assert.NotEmpty(t, got.Items)
	assert.Equal(t, 1, env.cache.Size())
}

func TestHandleSubmitTestErrors(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do(http.MethodPost, "/api/orders/test", `{"order_uid":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/orders/test", `{"order_uid":"no-delivery"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.cache.Size())

	env.repo.down = true
	body, err := json.Marshal(validOrder("while-down"))
	require.NoError(t, err)
	w = env.do(http.MethodPost, "/api/orders/test", string(body))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 0, env.cache.Size())
}

func TestSubmitTestRateLimited(t *testing.T) {
	env := newTestEnv(t, Options{TestOrderRPS: 0.001, TestOrderBurst: 1})

	assert.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/orders/test", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/api/orders/test", "").Code)
}

func TestHandleListAndHealth(t *testing.T) {
	env := newTestEnv(t, Options{})
	older := validOrder("older")
	newer := validOrder("newer")
	newer.DateCreated = older.DateCreated.Add(time.Hour)
	env.cache.Put(older.OrderUID, older)
	env.cache.Put(newer.OrderUID, newer)

	w := env.do(http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "newer", list.Orders[0].OrderUID)
	assert.Equal(t, "older", list.Orders[1].OrderUID)

	w = env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, healthResponse{Status: "ok", CacheSize: 2}, health)
}

func TestMetricsAndStaticRoutes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>orders</h1>"), 0o600))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("orders_cache_size 0\n"))
	})
	env := newTestEnv(t, Options{WebDir: dir, Metrics: metrics})

	w := env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orders_cache_size")

	w = env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "orders")
}

type observedRequest struct {
	method, route string
	status        int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observedRequest
}

func (o *recordingObserver) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	o.seen = append(o.seen, observedRequest{method: method, route: route, status: status})
	o.mu.Unlock()
}

func TestRequestsAreObservedByRoute(t *testing.T) {
	obs := &recordingObserver{}
	env := newTestEnv(t, Options{Requests: obs})
	env.cache.Put("seen-1", validOrder("seen-1"))

	env.do(http.MethodGet, "/api/order/seen-1", "")
	env.do(http.MethodGet, "/api/order/missing", "")
	env.do(http.MethodGet, "/health", "")

	assert.Equal(t, []observedRequest{
		{method: http.MethodGet, route: "/api/order/{id}", status: http.StatusOK},
		{method: http.MethodGet, route: "/api/order/{id}", status: http.StatusNotFound},
		{method: http.MethodGet, route: "/health", status: http.StatusOK},
	}, obs.seen)
}
