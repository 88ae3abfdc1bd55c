package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/wb-order-pipeline/internal/domain"
)

var errDBDown = errors.New("connection refused")

// memRepo — хранилище в памяти, считающее обращения; умеет имитировать отказ.
type memRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	down   bool

	saves int
	finds int
	lists int
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[string]domain.Order)}
}

func (r *memRepo) setDown(down bool) {
	r.mu.Lock()
	r.down = down
	r.mu.Unlock()
}

func (r *memRepo) Save(_ context.Context, o domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.down {
		return &domain.PersistenceError{Op: "save", Err: errDBDown}
	}
	r.orders[o.OrderUID] = o.Clone()
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	if r.down {
		return domain.Order{}, &domain.PersistenceError{Op: "find", Err: errDBDown}
	}
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *memRepo) ListRecentIDs(_ context.Context, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	if r.down {
		return nil, &domain.PersistenceError{Op: "list recent", Err: errDBDown}
	}
	ids := make([]string, 0, len(r.orders))
	for id := range r.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.orders[ids[i]].DateCreated.After(r.orders[ids[j]].DateCreated)
	})
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *memRepo) stored(id string) (domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	return o, ok
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *memRepo) findCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finds
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.Order
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, o domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, o)
	return nil
}

type countingMetrics struct {
	domain.NopMetrics
	mu       sync.Mutex
	messages map[string]int
	hits     int
	misses   int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{messages: make(map[string]int)}
}

func (m *countingMetrics) IncMessage(outcome string) {
	m.mu.Lock()
	m.messages[outcome]++
	m.mu.Unlock()
}

func (m *countingMetrics) IncCacheLookup(hit bool) {
	m.mu.Lock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
	m.mu.Unlock()
}
