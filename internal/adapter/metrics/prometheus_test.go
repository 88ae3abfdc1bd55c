package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wb-order-pipeline/internal/domain"
)

func TestPrometheusCounters(t *testing.T) {
	p := NewPrometheus(func() int { return 7 })

	p.IncIngest("ok")
	p.IncIngest("ok")
	p.IncMessage(domain.OutcomeRetry)
	p.IncCacheLookup(true)
	p.IncCacheLookup(false)
	p.IncCacheLookup(false)
	p.AddWarmLoad(10, 2)
	p.ObserveStorage("save", 5*time.Millisecond, nil)
	p.ObserveStorage("save", 5*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.ingests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.messages.WithLabelValues(domain.OutcomeRetry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues("false")))
	assert.Equal(t, 10.0, testutil.ToFloat64(p.warmLoaded))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.warmFailed))
	assert.Equal(t, 2, testutil.CollectAndCount(p.storage))
}

func TestPrometheusHandlerExposesCacheSize(t *testing.T) {
	p := NewPrometheus(func() int { return 42 })
	rec := httptest.NewRecorder()

	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "orders_cache_size 42")
}

func TestPrometheusHTTPRequests(t *testing.T) {
	p := NewPrometheus(nil)

	p.ObserveHTTPRequest(http.MethodGet, "/api/order/{id}", http.StatusOK, 2*time.Millisecond)
	p.ObserveHTTPRequest(http.MethodGet, "/api/order/{id}", http.StatusOK, 3*time.Millisecond)
	p.ObserveHTTPRequest(http.MethodGet, "/api/order/{id}", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.httpRequests.WithLabelValues(http.MethodGet, "/api/order/{id}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.httpRequests.WithLabelValues(http.MethodGet, "/api/order/{id}", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.httpDuration))
}
